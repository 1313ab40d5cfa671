package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
)

func TestCompareSnapshots(t *testing.T) {
	t.Parallel()

	cfg := models.DefaultStftConfig()
	cfg.RpmBins = []float64{0, 3000}
	cfg.LoadBins = []float64{0, 50}
	table, err := stft.NewTable(cfg)
	require.NoError(t, err)

	before := table.Snapshot()
	table.Set(0, 1, 1.06)
	table.Set(0, 2, 0.96)
	table.Set(0, 3, 1.02)
	after := table.Snapshot()

	diffs, err := CompareSnapshots(before, after)
	require.NoError(t, err)
	require.Len(t, diffs, models.BankCount)

	d := diffs[0]
	assert.Equal(t, models.FuelBank(0), d.Bank)
	assert.Equal(t, 3, d.ChangedCells)
	assert.InDeltaSlice(t, []float64{0, 0.06, -0.04, 0.02}, d.Diff, 1e-12)
	assert.InDelta(t, 0.04/3, d.MeanChange, 1e-12)
	assert.InDelta(t, 0.06, d.MaxIncrease, 1e-12)
	assert.InDelta(t, -0.04, d.MaxDecrease, 1e-12)

	assert.Zero(t, diffs[1].ChangedCells)
	assert.Zero(t, diffs[1].MaxIncrease)
}

func TestCompareSnapshotsGridMismatch(t *testing.T) {
	t.Parallel()

	small, err := stft.NewTable(&models.StftConfig{RpmBins: []float64{0}, LoadBins: []float64{0}})
	require.NoError(t, err)
	big, err := stft.NewTable(models.DefaultStftConfig())
	require.NoError(t, err)

	_, err = CompareSnapshots(small.Snapshot(), big.Snapshot())
	assert.Error(t, err)
}

func TestGetDiffSymbol(t *testing.T) {
	t.Parallel()

	assert.Contains(t, getDiffSymbol(0, 1), "··")
	assert.Contains(t, getDiffSymbol(0.9, 1), "▲▲")
	assert.Contains(t, getDiffSymbol(0.3, 1), "▲ ")
	assert.Contains(t, getDiffSymbol(-0.9, 1), "▼▼")
	assert.Contains(t, getDiffSymbol(-0.3, 1), "▼ ")
	assert.Contains(t, getDiffSymbol(0.05, 1), "·  ")
}

package stft

import (
	"fmt"
	"math"

	"github.com/tosih/motronic-fuel-trim/internal/syncutil"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// Table is the per-bank short-term trim grid. Cells live in one flat slice
// addressed by bank*bins+bin and are allocated once. The correction engine
// is the only writer; everything else reads through Snapshot.
type Table struct {
	mu       syncutil.Mutex
	rpmBins  []float64
	loadBins []float64
	bins     int
	cells    []float64
}

// Snapshot is a point-in-time copy of the table, one row of cells per bank
type Snapshot struct {
	RpmBins  []float64                   `json:"rpmBins"`
	LoadBins []float64                   `json:"loadBins"`
	Banks    [models.BankCount][]float64 `json:"banks"`
}

// NewTable allocates a table sized for cfg with every cell at 1.0
func NewTable(cfg *models.StftConfig) (*Table, error) {
	if err := cfg.ValidateBins(); err != nil {
		return nil, err
	}

	t := &Table{
		rpmBins:  append([]float64(nil), cfg.RpmBins...),
		loadBins: append([]float64(nil), cfg.LoadBins...),
		bins:     cfg.NumBins(),
		cells:    make([]float64, models.BankCount*cfg.NumBins()),
	}
	t.fill(1.0)
	return t, nil
}

// Bins returns the number of cells per bank
func (t *Table) Bins() int {
	return t.bins
}

func (t *Table) index(bank models.FuelBank, bin int) (int, bool) {
	if bank < 0 || int(bank) >= models.BankCount || bin < 0 || bin >= t.bins {
		return 0, false
	}
	return int(bank)*t.bins + bin, true
}

// Get returns the cell for (bank, bin). Out-of-range addresses read as 1.0.
func (t *Table) Get(bank models.FuelBank, bin int) float64 {
	i, ok := t.index(bank, bin)
	if !ok {
		return 1.0
	}
	t.mu.Lock()
	v := t.cells[i]
	t.mu.Unlock()
	return v
}

// Set stores a cell value. Out-of-range addresses are ignored.
func (t *Table) Set(bank models.FuelBank, bin int, v float64) {
	i, ok := t.index(bank, bin)
	if !ok {
		return
	}
	t.mu.Lock()
	t.cells[i] = v
	t.mu.Unlock()
}

// Reset returns every cell to 1.0
func (t *Table) Reset() {
	t.mu.Lock()
	t.fill(1.0)
	t.mu.Unlock()
}

func (t *Table) fill(v float64) {
	for i := range t.cells {
		t.cells[i] = v
	}
}

// Matches reports whether cfg has the bin edges the table was built for
func (t *Table) Matches(cfg *models.StftConfig) bool {
	return cfg != nil && SameEdges(t.rpmBins, cfg.RpmBins) && SameEdges(t.loadBins, cfg.LoadBins)
}

// SameEdges reports whether two bin edge lists are identical
func SameEdges(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Load seeds one bank from values laid out rpmBin*numLoadBins+loadBin
func (t *Table) Load(bank models.FuelBank, values []float64) error {
	if bank < 0 || int(bank) >= models.BankCount {
		return fmt.Errorf("invalid %s", bank)
	}
	if len(values) != t.bins {
		return fmt.Errorf("%s: got %d cells, table has %d", bank, len(values), t.bins)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: cell %d is not finite", bank, i)
		}
	}

	t.mu.Lock()
	copy(t.cells[int(bank)*t.bins:], values)
	t.mu.Unlock()
	return nil
}

// Snapshot copies the table for diagnostics and export
func (t *Table) Snapshot() Snapshot {
	s := Snapshot{
		RpmBins:  append([]float64(nil), t.rpmBins...),
		LoadBins: append([]float64(nil), t.loadBins...),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for b := 0; b < models.BankCount; b++ {
		s.Banks[b] = append([]float64(nil), t.cells[b*t.bins:(b+1)*t.bins]...)
	}
	return s
}

// Rows returns one bank of the snapshot as [rpmBin][loadBin]
func (s Snapshot) Rows(bank models.FuelBank) [][]float64 {
	cols := len(s.LoadBins)
	rows := make([][]float64, len(s.RpmBins))
	for i := range rows {
		rows[i] = s.Banks[bank][i*cols : (i+1)*cols]
	}
	return rows
}

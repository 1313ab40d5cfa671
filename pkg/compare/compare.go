package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/pterm/pterm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
)

// BankDiff summarises how one bank moved between two snapshots
type BankDiff struct {
	Bank         models.FuelBank
	Diff         []float64 // after - before, per cell
	ChangedCells int
	MeanChange   float64 // over changed cells
	MaxIncrease  float64
	MaxDecrease  float64
}

// CompareSnapshots diffs every bank of two snapshots taken from the same grid
func CompareSnapshots(before, after stft.Snapshot) ([]BankDiff, error) {
	if len(before.RpmBins) != len(after.RpmBins) || len(before.LoadBins) != len(after.LoadBins) {
		return nil, fmt.Errorf("snapshots have different grids: %dx%d vs %dx%d",
			len(before.RpmBins), len(before.LoadBins), len(after.RpmBins), len(after.LoadBins))
	}

	diffs := make([]BankDiff, 0, models.BankCount)
	for b := 0; b < models.BankCount; b++ {
		diffs = append(diffs, compareBank(models.FuelBank(b), before.Banks[b], after.Banks[b]))
	}
	return diffs, nil
}

func compareBank(bank models.FuelBank, before, after []float64) BankDiff {
	d := BankDiff{Bank: bank, Diff: make([]float64, len(after))}
	floats.SubTo(d.Diff, after, before)

	var changed []float64
	for _, v := range d.Diff {
		if v != 0 {
			changed = append(changed, v)
		}
	}
	d.ChangedCells = len(changed)
	if len(changed) > 0 {
		d.MeanChange = stat.Mean(changed, nil)
		d.MaxIncrease = math.Max(floats.Max(changed), 0)
		d.MaxDecrease = math.Min(floats.Min(changed), 0)
	}
	return d
}

// DisplayComparison prints statistics and a difference map per bank
func DisplayComparison(before, after stft.Snapshot) {
	pterm.DefaultHeader.WithFullWidth().Println("Trim Table Comparison")

	diffs, err := CompareSnapshots(before, after)
	if err != nil {
		pterm.Error.Println(err)
		return
	}

	for _, d := range diffs {
		pterm.Println()
		pterm.DefaultSection.Printf("Comparing: %s\n", d.Bank)

		total := len(d.Diff)
		pterm.Info.Printf("Changed cells: %d / %d (%.1f%%)\n",
			d.ChangedCells, total, float64(d.ChangedCells)/float64(total)*100)
		pterm.Info.Printf("Average change: %+.4f\n", d.MeanChange)
		pterm.Info.Printf("Max increase: %+.4f\n", d.MaxIncrease)
		pterm.Info.Printf("Max decrease: %+.4f\n", d.MaxDecrease)

		pterm.Println("\nDifference Map (after - before):")
		visualizeDifferences(d.Diff, after)
	}
}

func visualizeDifferences(diff []float64, s stft.Snapshot) {
	var result strings.Builder

	// Find max absolute difference for scaling
	maxAbs := 0.0
	for _, v := range diff {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}

	cols := len(s.LoadBins)
	result.WriteString("   Load → |")
	for _, load := range s.LoadBins {
		result.WriteString(fmt.Sprintf("%-3.0f", load))
	}
	result.WriteString("\n")
	result.WriteString("   RPM ↓  |" + strings.Repeat("-", cols*3) + "\n")

	for i, rpm := range s.RpmBins {
		result.WriteString(fmt.Sprintf("   %5.0f  |", rpm))
		for j := 0; j < cols; j++ {
			result.WriteString(getDiffSymbol(diff[i*cols+j], maxAbs))
		}
		result.WriteString("\n")
	}

	// Legend
	result.WriteString("\nLegend: ")
	result.WriteString(pterm.FgBlue.Sprint("▼▼") + " Large Decrease  ")
	result.WriteString(pterm.FgCyan.Sprint("▼ ") + " Small Decrease  ")
	result.WriteString(pterm.FgGray.Sprint("··") + " No Change  ")
	result.WriteString(pterm.FgYellow.Sprint("▲ ") + " Small Increase  ")
	result.WriteString(pterm.FgRed.Sprint("▲▲") + " Large Increase")

	pterm.DefaultBox.Println(result.String())
}

func getDiffSymbol(val, maxAbs float64) string {
	if val == 0 {
		return pterm.FgGray.Sprint("·· ")
	}

	normalized := val / maxAbs

	if normalized < -0.5 {
		return pterm.FgBlue.Sprint("▼▼ ")
	} else if normalized < -0.1 {
		return pterm.FgCyan.Sprint("▼  ")
	} else if normalized > 0.5 {
		return pterm.FgRed.Sprint("▲▲ ")
	} else if normalized > 0.1 {
		return pterm.FgYellow.Sprint("▲  ")
	}

	return pterm.FgGray.Sprint("·  ")
}

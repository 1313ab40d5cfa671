package renderer

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"gonum.org/v1/gonum/floats"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
	"github.com/tosih/motronic-fuel-trim/pkg/trim"
)

// RenderTable displays one bank of the trim table in a box
func RenderTable(s stft.Snapshot, bank models.FuelBank, displayMode string) {
	min, max := Range(s.Banks[bank])
	title := fmt.Sprintf("STFT %s | %dx%d | Range: %.3f-%.3f",
		bank, len(s.RpmBins), len(s.LoadBins), min, max)

	pterm.DefaultBox.WithTitle(title).WithTitleTopLeft().Println(BuildTableString(s, bank, displayMode, min, max))
}

// Range returns the smallest and largest cell
func Range(cells []float64) (float64, float64) {
	if len(cells) == 0 {
		return 1, 1
	}
	return floats.Min(cells), floats.Max(cells)
}

// BuildTableString lays the bank out with load across and RPM down
func BuildTableString(s stft.Snapshot, bank models.FuelBank, displayMode string, min, max float64) string {
	var result strings.Builder
	rows := s.Rows(bank)

	// Header
	result.WriteString("   Load → |")
	for _, load := range s.LoadBins {
		if displayMode == "values" {
			result.WriteString(fmt.Sprintf("%7.0f", load))
		} else {
			result.WriteString(fmt.Sprintf("%-4.0f", load))
		}
	}
	result.WriteString("\n")

	sep := 7
	if displayMode != "values" {
		sep = 4
	}
	result.WriteString("   RPM ↓  |" + strings.Repeat("-", len(s.LoadBins)*sep) + "\n")

	// Data rows
	for i, rpm := range s.RpmBins {
		result.WriteString(fmt.Sprintf("   %5.0f  |", rpm))
		for _, value := range rows[i] {
			if displayMode == "values" {
				color := getColorStyle(value, min, max)
				result.WriteString(color.Sprintf("%7.3f", value))
			} else if displayMode == "heatmap" {
				result.WriteString(getHeatmapBlock(value, min, max))
			} else {
				symbol := getSymbolForValue(value, min, max)
				result.WriteString(symbol + symbol + symbol + symbol)
			}
		}
		result.WriteString("\n")
	}

	// Legend
	if displayMode == "heatmap" {
		result.WriteString("\n" + getHeatmapLegend())
	} else if displayMode == "symbols" {
		result.WriteString("\nLegend: ")
		result.WriteString(pterm.FgCyan.Sprint("░") + " Fuel removed  ")
		result.WriteString(pterm.FgGreen.Sprint("▒") + " Low  ")
		result.WriteString(pterm.FgYellow.Sprint("▓") + " High  ")
		result.WriteString(pterm.FgRed.Sprint("█") + " Fuel added")
	}

	return result.String()
}

func getHeatmapBlock(value, min, max float64) string {
	if max == min {
		return pterm.BgGray.Sprint("  ")
	}

	normalized := (value - min) / (max - min)

	switch {
	case normalized < 0.2:
		return pterm.NewStyle(pterm.BgBlue, pterm.FgWhite).Sprint("▄▄")
	case normalized < 0.4:
		return pterm.NewStyle(pterm.BgCyan, pterm.FgBlack).Sprint("▄▄")
	case normalized < 0.6:
		return pterm.NewStyle(pterm.BgGreen, pterm.FgBlack).Sprint("▄▄")
	case normalized < 0.8:
		return pterm.NewStyle(pterm.BgYellow, pterm.FgBlack).Sprint("▄▄")
	default:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint("▄▄")
	}
}

func getHeatmapLegend() string {
	var result strings.Builder
	result.WriteString("Heatmap: ")
	result.WriteString(pterm.NewStyle(pterm.BgBlue, pterm.FgWhite).Sprint("▄▄") + " Most removed  ")
	result.WriteString(pterm.NewStyle(pterm.BgCyan, pterm.FgBlack).Sprint("▄▄") + " Removed  ")
	result.WriteString(pterm.NewStyle(pterm.BgGreen, pterm.FgBlack).Sprint("▄▄") + " Neutral  ")
	result.WriteString(pterm.NewStyle(pterm.BgYellow, pterm.FgBlack).Sprint("▄▄") + " Added  ")
	result.WriteString(pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint("▄▄") + " Most added")
	return result.String()
}

func getSymbolForValue(value, min, max float64) string {
	if max == min {
		return pterm.FgGray.Sprint("·")
	}

	normalized := (value - min) / (max - min)

	switch {
	case normalized < 0.25:
		return pterm.FgCyan.Sprint("░")
	case normalized < 0.5:
		return pterm.FgGreen.Sprint("▒")
	case normalized < 0.75:
		return pterm.FgYellow.Sprint("▓")
	default:
		return pterm.FgRed.Sprint("█")
	}
}

func getColorStyle(value, min, max float64) *pterm.Style {
	if max == min {
		return pterm.NewStyle(pterm.FgGray)
	}

	normalized := (value - min) / (max - min)

	switch {
	case normalized < 0.25:
		return pterm.NewStyle(pterm.FgCyan)
	case normalized < 0.5:
		return pterm.NewStyle(pterm.FgGreen)
	case normalized < 0.75:
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgRed)
	}
}

// ShowCalibration displays the calibration parameters in a table
func ShowCalibration(cfg *models.StftConfig) {
	pterm.DefaultHeader.WithFullWidth().Println(cfg.Name)

	data := pterm.TableData{
		{"Parameter", "Value"},
		{"RPM bins", formatEdges(cfg.RpmBins)},
		{"Load bins", formatEdges(cfg.LoadBins)},
		{"Clamp", fmt.Sprintf("%.2f - %.2f", cfg.MinCorrection, cfg.MaxCorrection)},
		{"Startup delay", cfg.StartupDelay.String()},
		{"Min coolant", fmt.Sprintf("%.0f °C", cfg.MinCoolantTemp)},
		{"Min sensor temp", fmt.Sprintf("%.0f °C", cfg.MinSensorTemp)},
		{"Lambda window", fmt.Sprintf("%.2f - %.2f", cfg.MinLambda, cfg.MaxLambda)},
		{"Transient holdoff", cfg.TransientHoldoff.String()},
		{"Tuning holdoff", cfg.TuningHoldoff.String()},
		{"Kp / Ki / deadband", fmt.Sprintf("%.3f / %.3f / %.3f", cfg.Kp, cfg.Ki, cfg.Deadband)},
	}

	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatEdges(edges []float64) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = fmt.Sprintf("%g", e)
	}
	return strings.Join(parts, " ")
}

// RenderStatus prints the last cycle's per-bank outcome
func RenderStatus(cycle int, result models.ClosedLoopFuelResult, status trim.Status) {
	data := pterm.TableData{
		{"Bank", "Sensor", "Bin", "Correction", "State"},
	}
	for b, bs := range status.Banks {
		state := bs.Reason
		if bs.Held {
			state = fmt.Sprintf("held %d (%s)", bs.HeldCycles, bs.Reason)
		}
		data = append(data, []string{
			models.FuelBank(b).String(),
			bs.Sensor.String(),
			fmt.Sprintf("%d", bs.Bin),
			fmt.Sprintf("%.4f", result.Banks[b]),
			state,
		})
	}

	pterm.DefaultSection.Printf("Cycle %d\n", cycle)
	if status.Tuning {
		pterm.Warning.Println("VE tuning session active, trims passed through")
	}
	if status.ConfigError != "" {
		pterm.Error.Println(status.ConfigError)
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

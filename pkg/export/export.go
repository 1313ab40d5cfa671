package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
)

const headerCell = "RPM\\Load"

// ExportTablesToCSV writes one CSV file per bank into exportPath
func ExportTablesToCSV(s stft.Snapshot, exportPath string) error {
	// Create export directory if it doesn't exist
	if err := os.MkdirAll(exportPath, 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	spinner, _ := pterm.DefaultSpinner.Start("Exporting trim tables to CSV...")

	for b := 0; b < models.BankCount; b++ {
		bank := models.FuelBank(b)
		if err := ExportBankToCSV(s, bank, BankFilename(exportPath, bank)); err != nil {
			spinner.Fail(fmt.Sprintf("Failed to export %s", bank))
			return err
		}
	}

	spinner.Success(fmt.Sprintf("Trim tables exported to %s", exportPath))
	return nil
}

// BankFilename is the CSV file name used for a bank
func BankFilename(dir string, bank models.FuelBank) string {
	return filepath.Join(dir, fmt.Sprintf("stft_bank_%d.csv", int(bank)))
}

// ExportBankToCSV writes a single bank
func ExportBankToCSV(s stft.Snapshot, bank models.FuelBank, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Metadata as comments
	writer.Write([]string{fmt.Sprintf("# STFT %s", bank)})
	writer.Write([]string{fmt.Sprintf("# Bank: %d", int(bank))})
	writer.Write([]string{fmt.Sprintf("# Size: %dx%d", len(s.RpmBins), len(s.LoadBins))})
	writer.Write([]string{""})

	header := []string{headerCell}
	for _, load := range s.LoadBins {
		header = append(header, strconv.FormatFloat(load, 'g', -1, 64))
	}
	writer.Write(header)

	for i, row := range s.Rows(bank) {
		record := []string{strconv.FormatFloat(s.RpmBins[i], 'g', -1, 64)}
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', 5, 64))
		}
		writer.Write(record)
	}

	writer.Flush()
	return writer.Error()
}

// BankTable is one bank read back from CSV
type BankTable struct {
	RpmBins  []float64
	LoadBins []float64
	Cells    []float64 // rpmBin*len(LoadBins)+loadBin
}

// ReadBankCSV parses a file written by ExportBankToCSV
func ReadBankCSV(csvFilename string) (*BankTable, error) {
	file, err := os.Open(csvFilename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", csvFilename, err)
	}

	// Find data start
	dataStart := -1
	for i, record := range records {
		if len(record) > 0 && record[0] == headerCell {
			dataStart = i
			break
		}
	}
	if dataStart < 0 {
		return nil, fmt.Errorf("%s: invalid CSV format: couldn't find data header", csvFilename)
	}

	t := &BankTable{}
	for _, cell := range records[dataStart][1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: load bin %q: %w", csvFilename, cell, err)
		}
		t.LoadBins = append(t.LoadBins, v)
	}

	for _, record := range records[dataStart+1:] {
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}
		if len(record) != len(t.LoadBins)+1 {
			return nil, fmt.Errorf("%s: row has %d cells, want %d", csvFilename, len(record)-1, len(t.LoadBins))
		}
		rpm, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: rpm bin %q: %w", csvFilename, record[0], err)
		}
		t.RpmBins = append(t.RpmBins, rpm)
		for _, cell := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: cell %q: %w", csvFilename, cell, err)
			}
			t.Cells = append(t.Cells, v)
		}
	}

	return t, nil
}

// ImportBankFromCSV seeds one bank of table from a CSV file. The file's bins
// must match the calibration and every cell must lie inside the clamp.
func ImportBankFromCSV(csvFilename string, cfg *models.StftConfig, table *stft.Table, bank models.FuelBank) error {
	bt, err := ReadBankCSV(csvFilename)
	if err != nil {
		return err
	}

	if !stft.SameEdges(bt.RpmBins, cfg.RpmBins) || !stft.SameEdges(bt.LoadBins, cfg.LoadBins) {
		return &models.ConfigurationError{
			Field:  "csv",
			Reason: fmt.Sprintf("%s bins do not match calibration %q", filepath.Base(csvFilename), cfg.Name),
		}
	}
	for _, v := range bt.Cells {
		if !(v >= cfg.MinCorrection && v <= cfg.MaxCorrection) {
			return fmt.Errorf("%s: cell %.4f outside clamp %.2f-%.2f",
				filepath.Base(csvFilename), v, cfg.MinCorrection, cfg.MaxCorrection)
		}
	}

	return table.Load(bank, bt.Cells)
}

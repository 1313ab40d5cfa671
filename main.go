package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"github.com/tosih/motronic-fuel-trim/pkg/calibration"
	"github.com/tosih/motronic-fuel-trim/pkg/compare"
	"github.com/tosih/motronic-fuel-trim/pkg/diag"
	"github.com/tosih/motronic-fuel-trim/pkg/export"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/renderer"
	"github.com/tosih/motronic-fuel-trim/pkg/sim"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
	"github.com/tosih/motronic-fuel-trim/pkg/trim"
	"github.com/tosih/motronic-fuel-trim/pkg/web"
)

func main() {
	calibFile := flag.String("calib", "", "Calibration YAML file (default: built-in calibration)")
	saveCalib := flag.String("save-calib", "", "Write the active calibration to a YAML file and exit")
	showConfig := flag.Bool("show-config", false, "Show the active calibration and exit")
	binRpm := flag.Float64("bin-rpm", -1, "Report the STFT bin for this RPM (with -bin-load) and exit")
	binLoad := flag.Float64("bin-load", -1, "Load for -bin-rpm")

	cycles := flag.Int("cycles", 6000, "Control cycles to simulate (0 = until Ctrl+C)")
	seed := flag.Uint64("seed", 1, "Simulator random seed")
	cold := flag.Bool("cold", false, "Simulate a cold start")
	realtime := flag.Bool("realtime", false, "Pace the simulation at the control period")
	statusEvery := flag.Int("status-every", 0, "Print the bank status every N cycles (0 = off)")
	dropoutBank := flag.Int("dropout-bank", 0, "Bank whose sensor drops out")
	dropoutStart := flag.Int("dropout-start", 0, "Cycle at which the sensor dropout starts")
	dropoutCycles := flag.Int("dropout-cycles", 0, "Length of the sensor dropout in cycles")
	tuneStart := flag.Int("tune-start", 0, "Cycle at which a VE tuning session starts")
	tuneCycles := flag.Int("tune-cycles", 0, "Length of the VE tuning session in cycles")

	importDir := flag.String("import", "", "Seed the trim table from CSV files in this directory")
	exportDir := flag.String("export", "", "Export the learned trim table as CSV into this directory")
	display := flag.String("display", "heatmap", "Table display mode: values, heatmap, symbols")
	webMode := flag.Bool("web", false, "Serve the live trim viewer")
	port := flag.Int("port", 8080, "Port for the live trim viewer")
	openBrowser := flag.Bool("browser", false, "Open the viewer in a browser")
	flag.Parse()

	cfg := models.DefaultStftConfig()
	if *calibFile != "" {
		loaded, err := calibration.Load(*calibFile)
		if err != nil {
			pterm.Error.Printf("Failed to load calibration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		pterm.Success.Printf("Calibration loaded: %s\n", cfg.Name)
	}

	switch {
	case *saveCalib != "":
		if err := calibration.Save(*saveCalib, cfg); err != nil {
			pterm.Error.Printf("Failed to save calibration: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Printf("Calibration written to %s\n", *saveCalib)
		return
	case *showConfig:
		renderer.ShowCalibration(cfg)
		return
	case *binRpm >= 0:
		reportBin(*binRpm, *binLoad, cfg)
		return
	}

	table, err := stft.NewTable(cfg)
	if err != nil {
		pterm.Error.Printf("Invalid calibration: %v\n", err)
		os.Exit(1)
	}

	if *importDir != "" {
		for b := 0; b < models.BankCount; b++ {
			bank := models.FuelBank(b)
			if err := export.ImportBankFromCSV(export.BankFilename(*importDir, bank), cfg, table, bank); err != nil {
				pterm.Error.Printf("Failed to import %s: %v\n", bank, err)
				os.Exit(1)
			}
		}
		pterm.Success.Printf("Trim table seeded from %s\n", *importDir)
	}

	faults := diag.NewLog(os.Stderr)
	engine := trim.NewEngine(cfg, table, trim.WithFaults(faults))

	simCfg := sim.DefaultConfig()
	simCfg.Seed = *seed
	simCfg.ColdStart = *cold
	simCfg.DropoutBank = models.FuelBank(*dropoutBank)
	simCfg.DropoutStart = *dropoutStart
	simCfg.DropoutCycles = *dropoutCycles
	simCfg.TuningStart = *tuneStart
	simCfg.TuningCycles = *tuneCycles

	runner := sim.NewRunner(sim.New(simCfg), engine)
	runner.RealTime = *realtime || *webMode

	var viewer *web.Server
	if *webMode {
		viewer = web.NewServer(cfg, table, faults, *port)
		viewer.OpenBrowser = *openBrowser
	}

	before := table.Snapshot()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		spinner, _ := pterm.DefaultSpinner.Start("Running closed-loop fuel trim...")
		err := runner.Run(ctx, *cycles, func(c sim.Cycle) {
			if viewer != nil && c.Number%10 == 0 {
				viewer.Publish(c)
			}
			if *statusEvery > 0 && c.Number%*statusEvery == 0 {
				spinner.UpdateText(fmt.Sprintf("Cycle %d", c.Number))
				renderer.RenderStatus(c.Number, c.Result, c.Status)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success("Simulation finished")
		return nil
	})

	if viewer != nil {
		g.Go(func() error {
			return viewer.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		pterm.Error.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if runner.DecodeErrors > 0 {
		pterm.Warning.Printf("%d CAN frames failed to decode\n", runner.DecodeErrors)
	}
	for _, f := range faults.Active() {
		pterm.Warning.Printf("Active fault %s: %s (x%d)\n", f.Code, f.Message, f.Count)
	}

	after := table.Snapshot()
	for b := 0; b < models.BankCount; b++ {
		renderer.RenderTable(after, models.FuelBank(b), *display)
	}
	compare.DisplayComparison(before, after)

	if *exportDir != "" {
		if err := export.ExportTablesToCSV(after, *exportDir); err != nil {
			pterm.Error.Printf("Export failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func reportBin(rpm, load float64, cfg *models.StftConfig) {
	bin, err := stft.ComputeBin(rpm, load, cfg)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	rpmBin, loadBin := stft.BinCoords(bin, cfg)
	pterm.Info.Printf("RPM %.0f, load %.1f -> bin %d (rpm bin %d, load bin %d)\n",
		rpm, load, bin, rpmBin, loadBin)
}

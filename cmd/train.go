package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opstrata/outage-cli/internal/config"
	"github.com/opstrata/outage-cli/internal/ingest"
	"github.com/opstrata/outage-cli/internal/pipeline"
	"github.com/opstrata/outage-cli/internal/report"
	"github.com/opstrata/outage-cli/internal/trainer"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train an escalation model from an incident export",
	Long: `Runs the full training pipeline on a raw incident export: clean the
rows, derive features, split train/test stratified by class, fit the
preprocessing on the training split, oversample the minority class,
cross-validate a randomized hyperparameter search and evaluate the
winner on the held-out rows. The run, its phases and its metrics are
persisted to the configured store.

Examples:
  # Train on a CSV export with defaults
  outage-cli train --file incidents.csv

  # Reproducible run with a custom grid and 3-fold CV
  outage-cli train --file incidents.xlsx --seed 7 --folds 3 --space grid.yaml

  # Keep the cleaned records alongside the run
  outage-cli train --file incidents.csv --save`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.String("file", "", "path to the incident export, CSV or XLSX (required)")
	addIngestFlags(trainCmd)
	f.Float64("test-fraction", 0, "held-out fraction per class (overrides config)")
	f.Uint64("seed", 0, "random seed (overrides config)")
	f.Int("folds", 0, "cross-validation folds (overrides config)")
	f.Int("candidates", 0, "hyperparameter candidates to sample (overrides config)")
	f.Int("workers", 0, "parallel fold evaluations (overrides config, 0 = all CPUs)")
	f.Int("neighbors", 0, "oversampling neighborhood size (overrides config)")
	f.String("space", "", "YAML file with the hyperparameter grid (overrides config)")
	f.Bool("save", false, "archive the cleaned records with the run")
	f.String("report-dir", "", "directory for report files (overrides config)")
	f.Bool("no-report", false, "skip writing report files")
	_ = trainCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trainCfg := applyTrainOverrides(cmd, cfg.Train)

	merged := *cfg
	merged.Train = trainCfg
	if err := merged.Validate("train"); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	file, _ := cmd.Flags().GetString("file")
	fileOpts, cleanOpts := ingestOptions(cmd)

	res, err := ingest.Load(file, fileOpts, cleanOpts)
	if err != nil {
		return eris.Wrap(err, "load export")
	}

	space := trainer.SearchSpace{}
	if trainCfg.SpaceFile != "" {
		space, err = trainer.LoadSpace(trainCfg.SpaceFile)
		if err != nil {
			return err
		}
	}

	p := pipeline.New(st)
	run, err := p.Run(ctx, res.Records, pipeline.Options{
		Source:       file,
		TestFraction: trainCfg.TestFraction,
		Seed:         trainCfg.Seed,
		Space:        space,
		Candidates:   trainCfg.Candidates,
		Folds:        trainCfg.Folds,
		Workers:      trainCfg.Workers,
		Neighbors:    trainCfg.Neighbors,
		Archive:      trainCfg.Archive,
	})
	if err != nil {
		return eris.Wrap(err, "train")
	}

	if noReport, _ := cmd.Flags().GetBool("no-report"); !noReport {
		dir := cfg.Report.Dir
		if v, _ := cmd.Flags().GetString("report-dir"); v != "" {
			dir = v
		}
		textPath, htmlPath, err := writeReportFiles(run, dir)
		if err != nil {
			return err
		}
		zap.L().Info("reports written",
			zap.String("text", textPath),
			zap.String("html", htmlPath),
		)
	}

	fmt.Print(report.FormatText(run))
	return nil
}

// addIngestFlags registers the export parsing flags shared by train
// and inspect.
func addIngestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("sheet", 0, "xlsx sheet index (overrides config)")
	f.String("sheet-name", "", "xlsx sheet name, wins over --sheet (overrides config)")
	f.String("delimiter", "", "csv delimiter (overrides config)")
	f.String("charset", "", "csv charset, IANA label (overrides config)")
}

// ingestOptions builds parsing options from config with CLI flag
// overrides applied.
func ingestOptions(cmd *cobra.Command) (ingest.FileOptions, ingest.CleanOptions) {
	ic := cfg.Ingest

	if v, _ := cmd.Flags().GetInt("sheet"); v > 0 {
		ic.SheetIndex = v
	}
	if v, _ := cmd.Flags().GetString("sheet-name"); v != "" {
		ic.SheetName = v
	}
	if v, _ := cmd.Flags().GetString("delimiter"); v != "" {
		ic.Delimiter = v
	}
	if v, _ := cmd.Flags().GetString("charset"); v != "" {
		ic.Charset = v
	}

	fileOpts := ingest.FileOptions{
		SheetIndex: ic.SheetIndex,
		SheetName:  ic.SheetName,
		Charset:    ic.Charset,
	}
	if ic.Delimiter != "" {
		fileOpts.Delimiter = []rune(ic.Delimiter)[0]
	}
	return fileOpts, ingest.CleanOptions{TimeLayouts: ic.TimeLayouts}
}

// applyTrainOverrides returns a copy of the base config with CLI flag
// overrides applied.
func applyTrainOverrides(cmd *cobra.Command, base config.TrainConfig) config.TrainConfig {
	c := base

	if cmd.Flags().Changed("test-fraction") {
		c.TestFraction, _ = cmd.Flags().GetFloat64("test-fraction")
	}
	if cmd.Flags().Changed("seed") {
		c.Seed, _ = cmd.Flags().GetUint64("seed")
	}
	if cmd.Flags().Changed("folds") {
		c.Folds, _ = cmd.Flags().GetInt("folds")
	}
	if cmd.Flags().Changed("candidates") {
		c.Candidates, _ = cmd.Flags().GetInt("candidates")
	}
	if cmd.Flags().Changed("workers") {
		c.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("neighbors") {
		c.Neighbors, _ = cmd.Flags().GetInt("neighbors")
	}
	if v, _ := cmd.Flags().GetString("space"); v != "" {
		c.SpaceFile = v
	}
	if v, _ := cmd.Flags().GetBool("save"); v {
		c.Archive = true
	}
	return c
}

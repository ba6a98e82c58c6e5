package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hed1ad/trafficeval/pkg/config"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	return newApp().command()
}

func newApp() *app {
	return &app{cfg: config.Default()}
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trafficeval",
		Short:         "Evaluate volume threshold and isolation forest traffic detectors",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	flags.String("log-level", a.cfg.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", a.cfg.Log.Format, "log format (console, json)")
	flags.Int64("seed", a.cfg.RandomSeed, "random seed for generation and the forest")
	flags.Int("dos-threshold", a.cfg.DoSThreshold, "flag sources with more records than this")
	flags.Float64("contamination", a.cfg.Contamination, "expected fraction of malicious records")
	flags.Int("trees", a.cfg.NumTrees, "number of isolation trees")
	flags.Int("subsample", a.cfg.SubsampleSize, "records drawn to build each tree")
	flags.Int("workers", a.cfg.Workers, "goroutines for tree building and scoring, 0 for GOMAXPROCS")

	cmd.AddCommand(
		newRunCmd(a),
		newGenerateCmd(a),
		newScoreCmd(a),
	)

	return cmd
}

// setup loads the configuration file, applies flag overrides and builds
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = *cfg
	}

	flags := cmd.Flags()
	var err error
	override := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	override("log-level", func() (e error) { a.cfg.Log.Level, e = flags.GetString("log-level"); return })
	override("log-format", func() (e error) { a.cfg.Log.Format, e = flags.GetString("log-format"); return })
	override("seed", func() (e error) { a.cfg.RandomSeed, e = flags.GetInt64("seed"); return })
	override("dos-threshold", func() (e error) { a.cfg.DoSThreshold, e = flags.GetInt("dos-threshold"); return })
	override("contamination", func() (e error) { a.cfg.Contamination, e = flags.GetFloat64("contamination"); return })
	override("trees", func() (e error) { a.cfg.NumTrees, e = flags.GetInt("trees"); return })
	override("subsample", func() (e error) { a.cfg.SubsampleSize, e = flags.GetInt("subsample"); return })
	override("workers", func() (e error) { a.cfg.Workers, e = flags.GetInt("workers"); return })
	override("num-normal", func() (e error) { a.cfg.NumNormal, e = flags.GetInt("num-normal"); return })
	override("num-anomalous", func() (e error) { a.cfg.NumAnomalous, e = flags.GetInt("num-anomalous"); return })
	override("num-dos", func() (e error) { a.cfg.NumDoS, e = flags.GetInt("num-dos"); return })
	override("num-dos-sources", func() (e error) { a.cfg.NumDoSSources, e = flags.GetInt("num-dos-sources"); return })
	override("dataset-csv", func() (e error) { a.cfg.Output.DatasetCSV, e = flags.GetString("dataset-csv"); return })
	override("dataset-pcap", func() (e error) { a.cfg.Output.DatasetPcap, e = flags.GetString("dataset-pcap"); return })
	override("results-csv", func() (e error) { a.cfg.Output.ResultsCSV, e = flags.GetString("results-csv"); return })
	override("report-json", func() (e error) { a.cfg.Output.ReportJSON, e = flags.GetString("report-json"); return })
	override("metrics-file", func() (e error) { a.cfg.Output.MetricsFile, e = flags.GetString("metrics-file"); return })
	override("model-out", func() (e error) { a.cfg.Output.ModelFile, e = flags.GetString("model-out"); return })
	if err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger, err = newLogger(a.cfg.Log)
	return err
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// addGeneratorFlags registers the synthetic population flags on cmd.
func addGeneratorFlags(cmd *cobra.Command, cfg config.Config) {
	flags := cmd.Flags()
	flags.Int("num-normal", cfg.NumNormal, "benign records to generate")
	flags.Int("num-anomalous", cfg.NumAnomalous, "anomalous records to generate")
	flags.Int("num-dos", cfg.NumDoS, "DoS records to generate")
	flags.Int("num-dos-sources", cfg.NumDoSSources, "hosts the DoS records come from")
}

package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dataio "github.com/hed1ad/trafficeval/pkg/io"
	"github.com/hed1ad/trafficeval/pkg/io/csv"
	"github.com/hed1ad/trafficeval/pkg/observability"
	"github.com/hed1ad/trafficeval/pkg/pipeline"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

func newRunCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both detectors on a labeled batch and print the comparison",
		Long: `Run loads a labeled dataset (or generates a synthetic one), runs the
volume threshold rule and the isolation forest over it, and prints
precision, recall, F1 and accuracy for both, together with the relative
improvement of the forest over the rule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.loadLabeled(input)
			if err != nil {
				return err
			}
			return a.run(cmd, records)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&input, "input", "i", "", "labeled CSV dataset; generated when empty")
	flags.String("dataset-csv", "", "write the batch as CSV")
	flags.String("dataset-pcap", "", "write the batch as a pcap capture")
	flags.String("results-csv", "", "write per-record decisions as CSV")
	flags.String("report-json", "", "write the comparison report as JSON")
	flags.String("metrics-file", "", "write Prometheus metrics in textfile format")
	flags.String("model-out", "", "save the fitted forest")
	addGeneratorFlags(cmd, a.cfg)

	return cmd
}

// loadLabeled reads a labeled dataset, or generates one when path is empty.
func (a *app) loadLabeled(path string) ([]traffic.Record, error) {
	if path == "" {
		g, err := traffic.NewGenerator(a.cfg.Generator())
		if err != nil {
			return nil, err
		}
		records := g.Generate()
		a.logger.Info("generated synthetic traffic",
			zap.Int("records", len(records)),
			zap.Int64("seed", a.cfg.RandomSeed),
		)
		return records, nil
	}

	if !dataio.Labeled(path) {
		return nil, fmt.Errorf("%s carries no ground truth labels; use the score command", path)
	}
	return a.load(path)
}

func (a *app) load(path string) ([]traffic.Record, error) {
	src, err := dataio.Open(path)
	if err != nil {
		return nil, err
	}
	records, err := dataio.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.logger.Info("loaded dataset", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

func (a *app) run(cmd *cobra.Command, records []traffic.Record) error {
	reg := prometheus.NewRegistry()
	p, err := pipeline.New(a.cfg,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(observability.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	out, err := p.Run(records)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(out.FlaggedSources) == 0 {
		fmt.Fprintln(w, "[INFO] No DoS Attack detected")
	} else {
		fmt.Fprintln(w, "[ALERT] Potential DoS Attack detected from the following IPs:")
		for _, s := range out.FlaggedSources {
			fmt.Fprintf(w, "- %s with %d packets\n", s.ID, s.Count)
		}
	}
	fmt.Fprintln(w)
	if err := out.Report.Format(w); err != nil {
		return err
	}

	return a.writeOutputs(out, reg)
}

func (a *app) writeOutputs(out *pipeline.Outcome, reg *prometheus.Registry) error {
	o := a.cfg.Output

	for _, path := range []string{o.DatasetCSV, o.DatasetPcap} {
		if path == "" {
			continue
		}
		if err := dataio.Export(path, out.Records); err != nil {
			return err
		}
		a.logger.Info("wrote dataset", zap.String("path", path))
	}

	if o.ResultsCSV != "" {
		if err := writeFile(o.ResultsCSV, func(f *os.File) error {
			return csv.WriteResults(f, out.Records, out.ThresholdResults, out.OutlierResults)
		}); err != nil {
			return err
		}
		a.logger.Info("wrote results", zap.String("path", o.ResultsCSV))
	}

	if o.ReportJSON != "" {
		if err := writeFile(o.ReportJSON, func(f *os.File) error {
			return out.Report.WriteJSON(f)
		}); err != nil {
			return err
		}
		a.logger.Info("wrote report", zap.String("path", o.ReportJSON))
	}

	if o.MetricsFile != "" {
		if err := observability.WriteTextfile(o.MetricsFile, reg); err != nil {
			return err
		}
		a.logger.Info("wrote metrics", zap.String("path", o.MetricsFile))
	}

	if o.ModelFile != "" && len(out.Records) > 0 {
		raw, err := out.Forest.Save()
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.ModelFile, raw, 0o644); err != nil {
			return err
		}
		a.logger.Info("saved model", zap.String("path", o.ModelFile))
	}

	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

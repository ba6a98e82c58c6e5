package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/detectors/iforest"
	"github.com/hed1ad/trafficeval/pkg/io/csv"
	"github.com/hed1ad/trafficeval/pkg/pipeline"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

func newScoreCmd(a *app) *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Flag records of a dataset or capture without evaluating",
		Long: `Score runs both detectors over FILE (CSV dataset or .pcap capture) and
lists the records flagged by either of them. With --model the forest
saved by "run --model-out" is reused instead of being fitted on FILE.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.load(args[0])
			if err != nil {
				return err
			}

			p, err := pipeline.New(a.cfg, pipeline.WithLogger(a.logger))
			if err != nil {
				return err
			}

			var out *pipeline.Outcome
			if modelPath != "" {
				var forest *iforest.IsolationForest
				if forest, err = loadForest(modelPath); err != nil {
					return err
				}
				a.logger.Info("loaded model", zap.String("path", modelPath))
				out, err = p.DetectWith(records, forest)
			} else {
				out, err = p.Detect(records)
			}
			if err != nil {
				return err
			}

			if path := a.cfg.Output.ResultsCSV; path != "" {
				if err := writeFile(path, func(f *os.File) error {
					return csv.WriteResults(f, out.Records, out.ThresholdResults, out.OutlierResults)
				}); err != nil {
					return err
				}
			}

			return printFlagged(cmd, out)
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "forest saved by run --model-out")
	cmd.Flags().String("results-csv", "", "write per-record decisions as CSV")

	return cmd
}

func loadForest(path string) (*iforest.IsolationForest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	forest, err := iforest.New()
	if err != nil {
		return nil, err
	}
	if err := forest.Load(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return forest, nil
}

func printFlagged(cmd *cobra.Command, out *pipeline.Outcome) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tSOURCE\tSIZE\tTHRESHOLD\tOUTLIER\tSCORE")

	for i, r := range out.Records {
		rule, forest := out.ThresholdResults[i], out.OutlierResults[i]
		if rule.Predicted != traffic.Malicious && forest.Predicted != traffic.Malicious {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%.3f\n",
			i, r.SourceID, r.PacketSize, rule.Predicted, forest.Predicted, forest.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(), "\n%d records: %d flagged by threshold, %d by isolation forest\n",
		len(out.Records), detectors.Flagged(out.ThresholdResults), detectors.Flagged(out.OutlierResults))
	return err
}

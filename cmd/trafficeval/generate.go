package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dataio "github.com/hed1ad/trafficeval/pkg/io"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate FILE...",
		Short: "Write a labeled synthetic traffic dataset",
		Long: `Generate writes one synthetic batch to every FILE. Files ending in .pcap
are written as captures, anything else as CSV with the columns
timestamp, source_id, packet_size and ground_truth_label.`,
		Example: "  trafficeval generate --num-dos 500 traffic.csv traffic.pcap",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := traffic.NewGenerator(a.cfg.Generator())
			if err != nil {
				return err
			}
			records := g.Generate()

			for _, path := range args {
				if err := dataio.Export(path, records); err != nil {
					return err
				}
				a.logger.Info("wrote dataset", zap.String("path", path), zap.Int("records", len(records)))
			}

			counts := traffic.CountBySource(records)
			var malicious int
			for _, r := range records {
				if r.Label == traffic.Malicious {
					malicious++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records (%d malicious) from %d sources\n",
				len(records), malicious, len(counts))
			return nil
		},
	}

	addGeneratorFlags(cmd, a.cfg)

	return cmd
}

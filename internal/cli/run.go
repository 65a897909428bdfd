package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudstate/readprobe/probe"
)

// NewRunCommand creates the run command: seed the table, race the
// workers, verify the outcome.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Seed the table, race the workers, verify the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx, rootOpts)
			if err != nil {
				return err
			}

			p := probe.NewWithLogger(client, rootOpts.ProbeConfig(), rootOpts.Logger())
			report, err := p.Execute(ctx)
			if err != nil {
				return err
			}

			if !report.Passed {
				for _, a := range report.Anomalies {
					fmt.Fprintf(cmd.OutOrStdout(), "read anomaly: worker %s, entity %s\n", a.Worker, a.Entity)
				}
				for _, m := range report.Missing {
					fmt.Fprintf(cmd.OutOrStdout(), "missing version: id %s, version %d\n", m.ID, m.Version)
				}
				return fmt.Errorf("probe failed: %d anomalies, %d missing versions",
					len(report.Anomalies), len(report.Missing))
			}

			fmt.Fprintln(cmd.OutOrStdout(), "No read anomaly detected!")
			return nil
		},
	}
}

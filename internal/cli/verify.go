package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudstate/readprobe/probe"
)

// NewVerifyCommand creates the verify command: re-check an existing
// dataset against the expected terminal state without writing anything.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-check an existing dataset, performing no writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx, rootOpts)
			if err != nil {
				return err
			}

			p := probe.NewWithLogger(client, rootOpts.ProbeConfig(), rootOpts.Logger())
			missing, err := p.VerifyAll(ctx)
			if err != nil {
				return err
			}

			if len(missing) > 0 {
				for _, m := range missing {
					fmt.Fprintf(cmd.OutOrStdout(), "missing version: id %s, version %d\n", m.ID, m.Version)
				}
				return fmt.Errorf("verification failed: %d missing versions", len(missing))
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Verification passed")
			return nil
		},
	}
}

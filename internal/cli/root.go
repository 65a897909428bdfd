// Package cli implements the readprobe command tree.
package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudstate/readprobe/probe"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	Table       string
	Children    int
	Consistent  bool
	RetryLimit  int
	JoinTimeout time.Duration
	Region      string
	Profile     string
	Endpoint    string
	Local       bool
	Verbose     bool
}

// NewRootCommand creates the readprobe root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "readprobe",
		Short: "DynamoDB read-anomaly probe",
		Long: `readprobe drives concurrent optimistic-concurrency writers against a
single DynamoDB table and reports whether any latest-version query ever
came back empty for a partition known to hold committed records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Table, "table", "readprobe_records", "target table name")
	flags.IntVar(&opts.Children, "children", 30, "number of child entities, one worker each")
	flags.BoolVar(&opts.Consistent, "consistent", true, "use strongly consistent latest-version queries")
	flags.IntVar(&opts.RetryLimit, "retry-limit", 0, "conflict retries per worker, 0 = unbounded")
	flags.DurationVar(&opts.JoinTimeout, "join-timeout", time.Minute, "how long to wait for all workers to finish")
	flags.StringVar(&opts.Region, "region", "", "AWS region (defaults to shared config)")
	flags.StringVar(&opts.Profile, "profile", "", "AWS shared config profile")
	flags.StringVar(&opts.Endpoint, "endpoint", "", "DynamoDB endpoint override, e.g. a local instance")
	flags.BoolVar(&opts.Local, "local", false, "run against an in-memory store instead of DynamoDB")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

// Logger builds the slog logger the commands inject into the probe.
func (o *RootOptions) Logger() *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ProbeConfig maps the flag set onto the probe configuration.
func (o *RootOptions) ProbeConfig() probe.Config {
	return probe.Config{
		Table:          o.Table,
		Children:       o.Children,
		ConsistentRead: o.Consistent,
		RetryLimit:     o.RetryLimit,
		JoinTimeout:    o.JoinTimeout,
	}
}

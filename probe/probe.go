package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Probe drives one optimistic-concurrency anomaly check against a
// DynamoDB table. All coordination between its workers goes through the
// store's conditional writes; the Probe itself holds no mutable state.
type Probe struct {
	client DynamoDB
	config Config
	logger *slog.Logger
}

// New creates a Probe logging through slog.Default().
func New(client DynamoDB, config Config) *Probe {
	return NewWithLogger(client, config, nil)
}

// NewWithLogger creates a Probe with an explicit logger. A nil logger
// falls back to slog.Default().
func NewWithLogger(client DynamoDB, config Config, logger *slog.Logger) *Probe {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		client: client,
		config: config,
		logger: logger,
	}
}

// Config returns the effective configuration after defaulting.
func (p *Probe) Config() Config {
	return p.config
}

// Anomaly identifies one empty latest-read observed during a run.
type Anomaly struct {
	// Worker is the child id of the worker that observed the empty read.
	Worker string `json:"worker"`

	// Entity is the partition the query returned nothing for.
	Entity string `json:"entity"`
}

// Report summarizes one probe cycle.
type Report struct {
	RunID     string              `json:"run_id"`
	Children  int                 `json:"children"`
	Anomalies []Anomaly           `json:"anomalies,omitempty"`
	Missing   []VerificationError `json:"missing,omitempty"`
	Passed    bool                `json:"passed"`
	Elapsed   time.Duration       `json:"elapsed_ns"`
}

// Execute runs one full probe cycle: seed the table, verify the seeded
// state, race the workers, then verify the terminal state. Detected
// anomalies and missing versions are carried in the Report; only
// infrastructure failures are returned as errors.
func (p *Probe) Execute(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:    uuid.NewString(),
		Children: p.config.Children,
	}
	started := time.Now()
	logger := p.logger.With("run_id", report.RunID)

	logger.Info("setting up table",
		"table", p.config.Table,
		"children", p.config.Children,
	)
	if err := p.Seed(ctx); err != nil {
		return nil, err
	}
	if err := p.verifySeed(ctx); err != nil {
		return nil, err
	}
	logger.Info("setup complete")

	logger.Info("run started")
	anomalies, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	report.Anomalies = anomalies
	logger.Info("run completed", "anomalies", len(anomalies))

	logger.Info("verification started")
	missing, err := p.VerifyAll(ctx)
	if err != nil {
		return nil, err
	}
	report.Missing = missing
	report.Passed = len(anomalies) == 0 && len(missing) == 0
	report.Elapsed = time.Since(started)

	if report.Passed {
		logger.Info("no read anomaly detected", "elapsed", report.Elapsed)
	} else {
		logger.Error("probe failed",
			"anomalies", len(anomalies),
			"missing_versions", len(missing),
			"elapsed", report.Elapsed,
		)
	}
	return report, nil
}

// verifySeed confirms every entity holds exactly its version 0 record
// before any worker is released.
func (p *Probe) verifySeed(ctx context.Context) error {
	if err := p.Verify(ctx, ParentID, 1); err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	for n := 0; n < p.config.Children; n++ {
		if err := p.Verify(ctx, ChildID(n), 1); err != nil {
			return fmt.Errorf("initial state: %w", err)
		}
	}
	return nil
}

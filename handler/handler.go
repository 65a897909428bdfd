// Package handler provides the AWS Lambda entry point for running the
// probe, so the check can execute on a schedule inside the table's
// region instead of from an operator's machine.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudstate/readprobe/probe"
)

// Input overrides the default probe configuration per invocation.
// Zero-valued fields keep their defaults.
type Input struct {
	Table          string `json:"table,omitempty"`
	Children       int    `json:"children,omitempty"`
	EventualReads  bool   `json:"eventual_reads,omitempty"`
	RetryLimit     int    `json:"retry_limit,omitempty"`
	JoinTimeoutSec int    `json:"join_timeout_seconds,omitempty"`
}

// Handler runs probe cycles against a fixed client.
type Handler struct {
	client probe.DynamoDB
	logger *slog.Logger
}

// New creates a Handler. A nil logger falls back to slog.Default().
func New(client probe.DynamoDB, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		logger: logger,
	}
}

// HandleProbe executes one probe cycle and returns its report. A report
// with Passed=false is still a successful invocation; only
// infrastructure failures error the invocation (and will retry per the
// function's configuration).
func (h *Handler) HandleProbe(ctx context.Context, in Input) (*probe.Report, error) {
	cfg := probe.DefaultConfig()
	if in.Table != "" {
		cfg.Table = in.Table
	}
	if in.Children > 0 {
		cfg.Children = in.Children
	}
	if in.EventualReads {
		cfg.ConsistentRead = false
	}
	if in.RetryLimit > 0 {
		cfg.RetryLimit = in.RetryLimit
	}
	if in.JoinTimeoutSec > 0 {
		cfg.JoinTimeout = time.Duration(in.JoinTimeoutSec) * time.Second
	}

	p := probe.NewWithLogger(h.client, cfg, h.logger)
	return p.Execute(ctx)
}

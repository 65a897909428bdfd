package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudstate/readprobe/internal/latch"
)

type workerResult struct {
	worker string
	err    error
}

// Run spawns one worker per child id, holds them at a start gate until
// all are launched, then releases them simultaneously to maximize
// contention on the parent. It waits for every worker to finish, bounded
// by JoinTimeout; on timeout the error names the workers still pending,
// alongside any anomalies the finished workers already detected.
//
// Worker outcomes are classified on collection: empty-read anomalies are
// logged and returned, one per aborted worker, without disturbing
// siblings; any other worker error is fatal and cancels the remaining
// workers at their next suspension point. A caller cancellation is
// returned as its context error; workers cancelled before the gate
// opens never begin.
func (p *Probe) Run(ctx context.Context) ([]Anomaly, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gate := latch.NewGate()
	join := latch.NewGroup()
	results := make(chan workerResult, p.config.Children)

	// Register every worker before spawning any goroutine: a worker that
	// fails fast must not drain the join group while siblings are still
	// unregistered.
	workers := make([]string, p.config.Children)
	for n := range workers {
		workers[n] = ChildID(n)
		join.Add(workers[n])
	}

	for _, worker := range workers {
		worker := worker // per-iteration copy; go directive predates 1.22 loopvar semantics
		go func() {
			defer join.Done(worker)

			if err := gate.Wait(runCtx); err != nil {
				results <- workerResult{worker: worker, err: err}
				return
			}

			err := p.runWorker(runCtx, worker)
			if err != nil && !isAnomaly(err) && runCtx.Err() == nil {
				// Infrastructure failure: stop the siblings too.
				cancel()
			}
			results <- workerResult{worker: worker, err: err}
		}()
	}

	gate.Release()

	// The join deadline runs independently of runCtx: a fatal worker
	// cancels its siblings, and the join then completes normally as they
	// exit, letting the fatal error win over a spurious timeout.
	joinCtx, joinCancel := context.WithTimeout(context.Background(), p.config.JoinTimeout)
	defer joinCancel()
	if pending := join.Wait(joinCtx); len(pending) > 0 {
		var anomalies []Anomaly
		for {
			select {
			case res := <-results:
				if a, ok := p.anomalyOf(res); ok {
					anomalies = append(anomalies, a)
				}
			default:
				return anomalies, fmt.Errorf("readprobe: %d workers did not finish before timeout: %s",
					len(pending), strings.Join(pending, ", "))
			}
		}
	}
	close(results)

	var anomalies []Anomaly
	var fatal error
	for res := range results {
		switch {
		case res.err == nil:
		case errors.Is(res.err, context.Canceled), errors.Is(res.err, context.DeadlineExceeded):
			// Cancelled before or mid-run; the cause is reported elsewhere.
		default:
			if a, ok := p.anomalyOf(res); ok {
				anomalies = append(anomalies, a)
				continue
			}
			if fatal == nil {
				fatal = fmt.Errorf("worker %s: %w", res.worker, res.err)
			}
		}
	}
	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return anomalies, err
	}

	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].Worker < anomalies[j].Worker })
	return anomalies, nil
}

// anomalyOf extracts and logs the anomaly a worker aborted on, if any.
func (p *Probe) anomalyOf(res workerResult) (Anomaly, bool) {
	var emptyRead *EmptyReadError
	if !errors.As(res.err, &emptyRead) {
		return Anomaly{}, false
	}
	p.logger.Warn("read anomaly detected, worker aborted",
		"worker", res.worker,
		"entity", emptyRead.ID,
	)
	return Anomaly{Worker: res.worker, Entity: emptyRead.ID}, true
}

func isAnomaly(err error) bool {
	var emptyRead *EmptyReadError
	return errors.As(err, &emptyRead)
}

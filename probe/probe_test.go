package probe_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudstate/readprobe/internal/memdb"
	"github.com/cloudstate/readprobe/probe"
)

func newTestProbe(db *memdb.Store, mutate func(*probe.Config)) *probe.Probe {
	cfg := probe.DefaultConfig()
	cfg.Children = 2
	cfg.RetryLimit = 1000 // a test should never spin forever
	cfg.JoinTimeout = 10 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return probe.NewWithLogger(db, cfg, logger)
}

func checkContiguous(t *testing.T, db *memdb.Store, id string, count int) {
	t.Helper()
	versions := db.Versions(id)
	if len(versions) != count {
		t.Fatalf("expected %d versions for %s, got %d (%v)", count, id, len(versions), versions)
	}
	for i, v := range versions {
		if v != i {
			t.Errorf("expected version %d at position %d for %s, got %d", i, i, id, v)
		}
	}
}

// --- Execute ---

func TestExecute_TwoWorkers(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)

	report, err := p.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !report.Passed {
		t.Errorf("expected report to pass, got anomalies=%v missing=%v", report.Anomalies, report.Missing)
	}
	if report.RunID == "" {
		t.Error("expected a non-empty run id")
	}
	if report.Children != 2 {
		t.Errorf("expected 2 children in report, got %d", report.Children)
	}

	checkContiguous(t, db, probe.ParentID, 3)
	checkContiguous(t, db, probe.ChildID(0), 2)
	checkContiguous(t, db, probe.ChildID(1), 2)
}

func TestExecute_ManyWorkers(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, func(cfg *probe.Config) {
		cfg.Children = 16
	})

	report, err := p.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !report.Passed {
		t.Errorf("expected report to pass, got anomalies=%v missing=%v", report.Anomalies, report.Missing)
	}

	checkContiguous(t, db, probe.ParentID, 17)
	for n := 0; n < 16; n++ {
		checkContiguous(t, db, probe.ChildID(n), 2)
	}
}

func TestExecute_DirtyTable(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)

	if _, err := p.Execute(context.Background()); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	_, err := p.Execute(context.Background())
	if !errors.Is(err, probe.ErrDirtyTable) {
		t.Errorf("expected ErrDirtyTable on reused table, got %v", err)
	}
}

// --- Commit ---

func TestCommit_SameSlotSequential(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	applied, err := p.Commit(ctx, probe.NewRecord(probe.ParentID))
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if !applied {
		t.Fatal("expected first commit to apply")
	}

	applied, err = p.Commit(ctx, probe.NewRecord(probe.ParentID))
	if err != nil {
		t.Fatalf("expected conflict to be absorbed, got error: %v", err)
	}
	if applied {
		t.Error("expected second commit to the same slot to be rejected")
	}
}

func TestCommit_SameSlotConcurrent(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if _, err := p.Commit(ctx, probe.NewRecord(probe.ParentID)); err != nil {
		t.Fatalf("seed commit failed: %v", err)
	}
	parent, err := p.Latest(ctx, probe.ParentID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := p.Commit(ctx, parent.Next("racer"))
			if err != nil {
				t.Errorf("racing commit returned non-conflict error: %v", err)
				return
			}
			wins <- applied
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for applied := range wins {
		if applied {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one racing commit to win, got %d", winners)
	}
	checkContiguous(t, db, probe.ParentID, 2)
}

func TestCommit_PartialConflictWritesNothing(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if _, err := p.Commit(ctx, probe.NewRecord(probe.ParentID)); err != nil {
		t.Fatalf("seed commit failed: %v", err)
	}

	// Parent slot 0 is taken; child slot 0 is free. Neither may commit.
	applied, err := p.Commit(ctx, probe.NewRecord(probe.ParentID), probe.NewRecord(probe.ChildID(0)))
	if err != nil {
		t.Fatalf("expected conflict to be absorbed, got error: %v", err)
	}
	if applied {
		t.Error("expected transaction to be rejected")
	}
	if got := db.Versions(probe.ChildID(0)); len(got) != 0 {
		t.Errorf("expected no partial commit for child, got versions %v", got)
	}
}

func TestCommit_FatalError(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)

	boom := errors.New("socket closed")
	db.FailWrites(boom)

	_, err := p.Commit(context.Background(), probe.NewRecord(probe.ParentID))
	if !errors.Is(err, boom) {
		t.Errorf("expected transport error to propagate, got %v", err)
	}
}

// --- Latest ---

func TestLatest_ReturnsGreatestVersion(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	rec := probe.NewRecord(probe.ChildID(0))
	for i := 0; i < 3; i++ {
		if _, err := p.Commit(ctx, rec); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		rec = rec.Next("step")
	}

	latest, err := p.Latest(ctx, probe.ChildID(0))
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("expected latest version 2, got %d", latest.Version)
	}
	if latest.Action != "step" {
		t.Errorf("expected action 'step', got %q", latest.Action)
	}
}

func TestLatest_EmptyReadAnomaly(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	db.FailReads(probe.ChildID(0), 1)

	_, err := p.Latest(ctx, probe.ChildID(0))
	var emptyRead *probe.EmptyReadError
	if !errors.As(err, &emptyRead) {
		t.Fatalf("expected EmptyReadError, got %v", err)
	}
	if emptyRead.ID != probe.ChildID(0) {
		t.Errorf("expected anomaly for %s, got %s", probe.ChildID(0), emptyRead.ID)
	}

	// The fault is consumed; the next read sees the committed record.
	rec, err := p.Latest(ctx, probe.ChildID(0))
	if err != nil {
		t.Fatalf("expected recovery after injected fault, got %v", err)
	}
	if rec.Version != 0 {
		t.Errorf("expected version 0, got %d", rec.Version)
	}
}

// --- Run ---

func TestRun_AnomalyAbortsWorkerOnly(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	db.FailReads(probe.ChildID(1), 1)

	anomalies, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d (%v)", len(anomalies), anomalies)
	}
	if anomalies[0].Worker != probe.ChildID(1) || anomalies[0].Entity != probe.ChildID(1) {
		t.Errorf("expected anomaly for worker %s on its own entity, got %+v", probe.ChildID(1), anomalies[0])
	}

	// The healthy sibling finished; the aborted worker wrote nothing.
	checkContiguous(t, db, probe.ParentID, 2)
	checkContiguous(t, db, probe.ChildID(0), 2)
	checkContiguous(t, db, probe.ChildID(1), 1)

	missing, err := p.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	want := map[probe.VerificationError]bool{
		{ID: probe.ParentID, Version: 2}:   true,
		{ID: probe.ChildID(1), Version: 1}: true,
	}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing versions, got %v", len(want), missing)
	}
	for _, m := range missing {
		if !want[m] {
			t.Errorf("unexpected missing version %+v", m)
		}
	}
}

func TestRun_AnomalyOnParentRead(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, func(cfg *probe.Config) {
		cfg.Children = 1
	})
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	db.FailReads(probe.ParentID, 1)

	anomalies, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %v", anomalies)
	}
	if anomalies[0].Entity != probe.ParentID {
		t.Errorf("expected anomaly on parent entity, got %+v", anomalies[0])
	}
	// The worker aborted without retrying: the injected fault was single
	// use, so a retry would have succeeded and committed both slots.
	checkContiguous(t, db, probe.ParentID, 1)
	checkContiguous(t, db, probe.ChildID(0), 1)
}

func TestRun_RetryLimitExhausted(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, func(cfg *probe.Config) {
		cfg.Children = 1
		cfg.RetryLimit = 3
	})
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	db.ForceConflicts(1000)

	_, err := p.Run(ctx)
	if err == nil {
		t.Fatal("expected retry exhaustion to be fatal")
	}
}

func TestRun_TransportErrorAbortsRun(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	boom := errors.New("connection reset")
	db.FailWrites(boom)

	_, err := p.Run(ctx)
	if !errors.Is(err, boom) {
		t.Errorf("expected transport error to propagate from Run, got %v", err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)

	if err := p.Seed(context.Background()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	writesBefore := db.WriteCalls()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	anomalies, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies from a cancelled run, got %v", anomalies)
	}

	// No worker passed the start gate, so nothing was written.
	if got := db.WriteCalls(); got != writesBefore {
		t.Errorf("expected no writes after cancellation, write calls went %d -> %d", writesBefore, got)
	}
	checkContiguous(t, db, probe.ParentID, 1)
}

func TestRun_FatalCancelsSiblings(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, func(cfg *probe.Config) {
		cfg.RetryLimit = 0 // the sibling must be stopped, not exhausted
		cfg.JoinTimeout = 5 * time.Second
	})
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	// One worker fails hard on its first read; the other would retry
	// forever against forced conflicts unless the failure cancels it.
	boom := errors.New("connection reset")
	db.FailQueries(probe.ChildID(0), boom)
	db.ForceConflicts(1 << 30)

	anomalies, err := p.Run(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected worker failure to propagate, got %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies, got %v", anomalies)
	}
}

func TestRun_TimeoutReportsAnomalies(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, func(cfg *probe.Config) {
		cfg.RetryLimit = 0
		cfg.JoinTimeout = 300 * time.Millisecond
	})
	ctx := context.Background()

	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	// One worker aborts immediately on an empty read; the other spins on
	// forced conflicts past the join deadline.
	db.FailReads(probe.ChildID(1), 1)
	db.ForceConflicts(1 << 30)

	anomalies, err := p.Run(ctx)
	if err == nil {
		t.Fatal("expected a join timeout error")
	}
	if !strings.Contains(err.Error(), probe.ChildID(0)) {
		t.Errorf("expected timeout error to name the straggler %s, got %v", probe.ChildID(0), err)
	}

	if len(anomalies) != 1 {
		t.Fatalf("expected the finished worker's anomaly to survive the timeout, got %v", anomalies)
	}
	if anomalies[0].Worker != probe.ChildID(1) {
		t.Errorf("expected anomaly from worker %s, got %+v", probe.ChildID(1), anomalies[0])
	}
}

// --- Verify ---

func TestVerify_MissingVersion(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if _, err := p.Execute(ctx); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	db.Delete(probe.ParentID, 1)

	err := p.Verify(ctx, probe.ParentID, 3)
	var verr *probe.VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	if verr.ID != probe.ParentID || verr.Version != 1 {
		t.Errorf("expected missing parent version 1, got %+v", verr)
	}
}

func TestVerifyAll_Idempotent(t *testing.T) {
	db := memdb.New()
	p := newTestProbe(db, nil)
	ctx := context.Background()

	if _, err := p.Execute(ctx); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	writesBefore := db.WriteCalls()

	first, err := p.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("first VerifyAll failed: %v", err)
	}
	second, err := p.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("second VerifyAll failed: %v", err)
	}

	if len(first) != 0 || len(second) != 0 {
		t.Errorf("expected clean verification both times, got %v then %v", first, second)
	}
	if got := db.WriteCalls(); got != writesBefore {
		t.Errorf("expected verification to perform no writes, write calls went %d -> %d", writesBefore, got)
	}
}

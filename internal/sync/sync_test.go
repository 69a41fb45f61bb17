package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/store/memory"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // Export
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, export Export) error {
	d.writes.Add(1)
	d.last.Store(export)
	return d.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	ms := memory.New()
	seedEvaluations(t, ms, 2)
	dest := &mockDestination{name: "mock"}

	sched := NewScheduler(ms, []Destination{dest}, 50*time.Millisecond, discardLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}
	export, ok := dest.last.Load().(Export)
	if !ok || export.Count != 2 {
		t.Fatalf("last export = %+v", export)
	}
	// 1 header + 2 evaluations
	if lines := nonEmptyLines(string(export.Data)); len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(memory.New(), nil, time.Minute, discardLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSyncOnce_FailingDestinationDoesNotStopOthers(t *testing.T) {
	bad := &mockDestination{name: "bad", err: errors.New("bucket gone")}
	good := &mockDestination{name: "good"}

	sched := NewScheduler(memory.New(), []Destination{bad, good}, time.Hour, discardLogger())
	sched.SyncOnce(context.Background())

	if bad.writes.Load() != 1 || good.writes.Load() != 1 {
		t.Fatalf("writes: bad=%d good=%d, want 1 each", bad.writes.Load(), good.writes.Load())
	}
}

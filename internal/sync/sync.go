// Package sync periodically exports the gate evaluation audit trail to
// external destinations.
package sync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/store"
)

// Export is one rendered audit snapshot.
type Export struct {
	Data  []byte
	Count int
}

// Destination is a sync target.
type Destination interface {
	Name() string
	Write(ctx context.Context, export Export) error
}

// Scheduler runs periodic exports to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports the full audit trail and writes it to every destination.
// A failing destination does not stop the others.
func (s *Scheduler) SyncOnce(ctx context.Context) {
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, s.store, time.Time{}, &buf)
	if err != nil {
		s.logger.Error("audit export failed", "err", err)
		return
	}
	export := Export{Data: buf.Bytes(), Count: n}

	failed := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, export); err != nil {
			failed++
			s.logger.Error("audit destination write failed", "destination", dest.Name(), "err", err)
		}
	}

	s.logger.Info("audit sync completed",
		"destinations", len(s.destinations), "failed", failed,
		"evaluations", n, "bytes", len(export.Data))
}

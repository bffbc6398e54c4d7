/*
scheduler.go - Periodic overtime snapshot resync

PURPOSE:
  Rewrites every user's overtime quota snapshot from the ledger on a fixed
  interval. This is how a snapshot left stale by a failed post-write sync
  (see SyncError) converges without retrying inside the write path.

DESIGN:
  - Background goroutine driven by a ticker
  - Runs once immediately on Start
  - Each run is a full Service.Resync; RunNow serializes ticker runs with
    on-demand ones

USAGE:
  scheduler := NewResyncScheduler(service, logger)
  scheduler.Interval = 15 * time.Minute
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package overtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ResyncScheduler struct {
	Service  *Service
	Interval time.Duration
	Enabled  bool

	logger  *slog.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	runMu   sync.Mutex
	lastMu  sync.Mutex
	lastRun time.Time
}

func NewResyncScheduler(svc *Service, logger *slog.Logger) *ResyncScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResyncScheduler{
		Service:  svc,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (rs *ResyncScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.Interval <= 0 {
		rs.logger.Info("resync scheduler disabled")
		return
	}
	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)
	go rs.run()

	rs.logger.Info("resync scheduler started", slog.Duration("interval", rs.Interval))
}

func (rs *ResyncScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info("resync scheduler stopped")
	}
}

func (rs *ResyncScheduler) run() {
	defer rs.wg.Done()

	rs.RunNow(context.Background())
	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one resync and returns the number of snapshots written.
// Concurrent calls wait for the run in progress.
func (rs *ResyncScheduler) RunNow(ctx context.Context) int {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	start := time.Now()
	snaps, err := rs.Service.Resync(ctx)
	if err != nil {
		rs.logger.ErrorContext(ctx, "overtime resync failed", slog.Any("error", err))
		return 0
	}
	rs.lastMu.Lock()
	rs.lastRun = start
	rs.lastMu.Unlock()
	rs.logger.InfoContext(ctx, "overtime resync completed",
		slog.Int("snapshots", len(snaps)),
		slog.Duration("took", time.Since(start)),
	)
	return len(snaps)
}

// LastRun returns when the last successful resync started.
func (rs *ResyncScheduler) LastRun() time.Time {
	rs.lastMu.Lock()
	defer rs.lastMu.Unlock()
	return rs.lastRun
}

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/metrics"
)

// ProfileSource pages through stored profiles
type ProfileSource interface {
	ListProfiles(ctx context.Context, limit, offset int) ([]domain.Profile, error)
}

// TotalsCache receives warmed totals. Entries already present must be kept:
// they come from ledger mutations newer than the profile page being warmed.
type TotalsCache interface {
	FillMissingTotals(ctx context.Context, totals map[string]domain.Totals) (int, error)
}

// SyncWorker periodically copies profile totals from storage into the cache
type SyncWorker struct {
	source  ProfileSource
	cache   TotalsCache
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	source ProfileSource,
	cache TotalsCache,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		source: source,
		cache:  cache,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.WarmCache(ctx); err != nil {
				w.logger.Error("cache warm-up failed", "error", err)
			}
		}
	}
}

// WarmCache copies the totals of every profile missing from the cache, in
// batches
func (w *SyncWorker) WarmCache(ctx context.Context) error {
	startTime := time.Now()

	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	scanned, warmed := 0, 0
	for offset := 0; ; offset += batchSize {
		profiles, err := w.source.ListProfiles(ctx, batchSize, offset)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			break
		}

		batch := make(map[string]domain.Totals, len(profiles))
		for _, p := range profiles {
			batch[p.ID] = p.Totals
		}
		filled, err := w.cache.FillMissingTotals(ctx, batch)
		if err != nil {
			return err
		}
		scanned += len(profiles)
		warmed += filled
		metrics.CacheWarmedProfilesTotal.Add(float64(filled))

		if len(profiles) < batchSize {
			break
		}
	}

	w.logger.Info("cache warm-up completed",
		"duration", time.Since(startTime),
		"profiles", scanned,
		"filled", warmed,
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single warm-up cycle
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	return w.WarmCache(ctx)
}

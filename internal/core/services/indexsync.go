package services

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Ensure IndexSync implements the interface.
var _ driving.IndexSyncService = (*IndexSync)(nil)

// IndexSync feeds watcher events into a store's index, throttled so a bulk
// copy into the tree does not saturate the disk.
type IndexSync struct {
	watcher   driven.FileWatcher
	reindexer driven.Reindexer
	limiter   *rate.Limiter

	mu    sync.Mutex
	stats driving.SyncStats
}

// NewIndexSync creates an index sync. perSecond bounds the rate of applied
// changes; zero or less means unlimited.
func NewIndexSync(watcher driven.FileWatcher, reindexer driven.Reindexer, perSecond float64) *IndexSync {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &IndexSync{
		watcher:   watcher,
		reindexer: reindexer,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Run applies file changes under root until ctx is cancelled or the
// watcher closes its channel. Per-file failures are logged and counted.
func (s *IndexSync) Run(ctx context.Context, root string) error {
	events, err := s.watcher.Watch(ctx, root)
	if err != nil {
		return err
	}
	defer s.watcher.Stop()

	logger.Info("watching %s for changes", root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			s.apply(ctx, ev)
		}
	}
}

// Stats reports how many changes were applied and how many failed.
func (s *IndexSync) Stats() driving.SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *IndexSync) apply(ctx context.Context, ev driven.FileEvent) {
	var err error
	switch ev.Operation {
	case driven.FileDeleted:
		err = s.reindexer.ForgetPath(ctx, ev.Path)
	default:
		err = s.reindexer.ReindexPath(ctx, ev.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.stats.Failed++
		logger.Warn("index %s (%s): %v", ev.Path, ev.Operation, err)
		return
	}
	if err == nil {
		s.stats.Applied++
		logger.Debug("indexed %s (%s)", ev.Path, ev.Operation)
	}
}

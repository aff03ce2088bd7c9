package propagation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitscope/internal/metrics"
	"github.com/star/orbitscope/internal/tle"
)

// objectCache holds the tracked objects built for one dataset.
// Immutable after construction; safe for concurrent reads.
type objectCache struct {
	objects   []Object
	byID      map[int]Object
	fetchedAt time.Time
}

// Propagator builds tracked objects for the current dataset and propagates
// them on demand.
type Propagator struct {
	store   *tle.Store
	pool    *WorkerPool
	config  PropConfig
	logger  *slog.Logger
	cache   atomic.Pointer[objectCache]
	cacheMu sync.Mutex // serializes rebuilds
}

// NewPropagator creates a new propagation orchestrator.
func NewPropagator(store *tle.Store, config PropConfig, logger *slog.Logger) *Propagator {
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Objects returns the tracked objects for the current dataset and the dataset's
// fetch time. Objects are rebuilt only when the dataset changes.
func (p *Propagator) Objects() ([]Object, time.Time, error) {
	c, err := p.current()
	if err != nil {
		return nil, time.Time{}, err
	}
	return c.objects, c.fetchedAt, nil
}

// Object returns the tracked object with the given NORAD ID.
func (p *Propagator) Object(noradID int) (Object, bool, error) {
	c, err := p.current()
	if err != nil {
		return Object{}, false, err
	}
	obj, ok := c.byID[noradID]
	return obj, ok, nil
}

// current returns the object cache for the store's dataset, rebuilding it
// under double-checked locking when the dataset has changed.
func (p *Propagator) current() (*objectCache, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}

	if c := p.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c, nil
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	if c := p.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c, nil
	}

	objects := BuildObjects(ds.Satellites, p.logger)
	byID := make(map[int]Object, len(objects))
	for _, o := range objects {
		if _, dup := byID[o.NORADID]; !dup {
			byID[o.NORADID] = o
		}
	}

	c := &objectCache{objects: objects, byID: byID, fetchedAt: ds.FetchedAt}
	p.cache.Store(c)

	p.logger.Info("tracked objects rebuilt",
		"objects", len(objects),
		"skipped", len(ds.Satellites)-len(objects),
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	return c, nil
}

// PropagateToTime propagates every tracked object to targetTime.
func (p *Propagator) PropagateToTime(ctx context.Context, targetTime time.Time) (*Snapshot, error) {
	c, err := p.current()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, c.objects, targetTime)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, successCount, errorCount)

	p.logger.Debug("propagation complete",
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	return &Snapshot{
		Timestamp: targetTime,
		Positions: positions,
	}, ctx.Err()
}

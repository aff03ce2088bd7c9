package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/orbitscope/internal/metrics"
)

// ErrEmptyCatalog is returned when a catalog parses to zero entries.
var ErrEmptyCatalog = errors.New("catalog contains no valid entries")

// Loader fetches, parses, caches and publishes catalogs into a Store.
type Loader struct {
	fetcher *Fetcher // nil disables network fetches
	cache   *Cache   // nil disables the disk cache
	store   *Store
	opts    ParseOptions
	logger  *slog.Logger
}

// NewLoader wires a loader. Either fetcher or cache may be nil.
func NewLoader(fetcher *Fetcher, cache *Cache, store *Store, opts ParseOptions, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		cache:   cache,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// Load publishes an initial dataset: a fresh fetch when possible, otherwise the
// newest cached catalog. It fails only when neither source yields entries.
func (l *Loader) Load(ctx context.Context) (*TLEDataset, error) {
	var fetchErr error
	if l.fetcher != nil {
		ds, err := l.Refresh(ctx)
		if err == nil {
			return ds, nil
		}
		fetchErr = err
		l.logger.Warn("catalog fetch failed, trying disk cache", "error", err)
	}

	ds, err := l.LoadCached()
	if err != nil {
		if fetchErr != nil {
			return nil, fmt.Errorf("loading catalog: fetch: %v; cache: %w", fetchErr, err)
		}
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return ds, nil
}

// Refresh fetches the catalog from the network, writes it to the disk cache and
// replaces the dataset in the store.
func (l *Loader) Refresh(ctx context.Context) (*TLEDataset, error) {
	if l.fetcher == nil {
		return nil, errors.New("catalog fetch disabled")
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	start := time.Now()
	bodies, err := l.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncCatalogFetch("error")
		return nil, err
	}

	// MaxObjects applies per source.
	var entries []TLEEntry
	for _, body := range bodies {
		parsed, err := Parse(bytes.NewReader(body), l.opts, l.logger)
		if err != nil {
			metrics.IncCatalogFetch("error")
			return nil, err
		}
		entries = append(entries, parsed...)
	}

	fetchedAt := time.Now().UTC()
	ds, err := l.publish(entries, l.fetcher.SourceURL(), fetchedAt)
	if err != nil {
		metrics.IncCatalogFetch("error")
		return nil, err
	}
	metrics.IncCatalogFetch("ok")

	if l.cache != nil {
		if err := l.cache.Write(Format(entries), fetchedAt); err != nil {
			l.logger.Warn("failed to write catalog cache", "error", err)
		}
	}

	l.logger.Info("catalog fetched",
		"source", ds.Source,
		"count", len(ds.Satellites),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// LoadCached publishes the newest catalog from the disk cache.
func (l *Loader) LoadCached() (*TLEDataset, error) {
	if l.cache == nil {
		return nil, ErrNoCache
	}

	data, ts, err := l.cache.LoadLatest()
	if err != nil {
		return nil, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	// The cache holds the records selected at fetch time, already limited
	// per source.
	opts := l.opts
	opts.MaxObjects = 0
	entries, err := Parse(bytes.NewReader(data), opts, l.logger)
	if err != nil {
		return nil, err
	}

	ds, err := l.publish(entries, "cache", ts)
	if err != nil {
		return nil, err
	}
	l.logger.Info("loaded catalog from cache", "count", len(ds.Satellites), "cached_at", ts.Format(time.RFC3339))
	return ds, nil
}

// Run refreshes the catalog every interval until ctx is cancelled.
// Failed refreshes keep the current dataset.
func (l *Loader) Run(ctx context.Context, interval time.Duration) {
	if l.fetcher == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Refresh(ctx); err != nil {
				l.logger.Warn("scheduled catalog refresh failed", "error", err)
			}
		}
	}
}

// publish stores entries as the current dataset. Caller holds store.mu.
func (l *Loader) publish(entries []TLEEntry, source string, fetchedAt time.Time) (*TLEDataset, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}

	ds := NewDataset(source, fetchedAt, entries)
	l.store.Set(ds)
	metrics.SetCatalogSize(len(entries))
	return ds, nil
}

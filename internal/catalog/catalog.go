// Package catalog caches the served model list behind an atomic snapshot.
// Reads never block and never trigger network work; refreshes are
// fire-and-forget and collapse to at most one in flight.
package catalog

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kirogate/kirogate/internal/registry"
)

// FetchFunc produces a fresh model list. The default fetcher serves the
// static registry; tests and future upstream listing APIs substitute their
// own.
type FetchFunc func(ctx context.Context) ([]registry.Model, error)

// Snapshot is an immutable view of the catalog at one refresh.
type Snapshot struct {
	Models      []registry.Model
	RefreshedAt time.Time
}

// Cache holds the current snapshot. A zero RefreshedAt snapshot is installed
// at construction so callers always see a usable list.
type Cache struct {
	fetch FetchFunc
	ttl   time.Duration

	snapshot   atomic.Pointer[Snapshot]
	refreshing atomic.Bool
}

func New(fetch FetchFunc, ttl time.Duration) *Cache {
	if fetch == nil {
		fetch = func(context.Context) ([]registry.Model, error) {
			return registry.Models(), nil
		}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{fetch: fetch, ttl: ttl}
	c.snapshot.Store(&Snapshot{Models: registry.Models()})
	return c
}

// Current returns the snapshot without blocking.
func (c *Cache) Current() *Snapshot {
	return c.snapshot.Load()
}

// Stale reports whether the snapshot has outlived its TTL. A never-refreshed
// snapshot is always stale.
func (c *Cache) Stale() bool {
	s := c.snapshot.Load()
	return s.RefreshedAt.IsZero() || time.Since(s.RefreshedAt) > c.ttl
}

// RefreshAsync kicks off a background refresh when the snapshot is stale and
// no refresh is already running. It returns immediately; callers keep
// serving the current snapshot.
func (c *Cache) RefreshAsync() {
	if !c.Stale() {
		return
	}
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.refresh(ctx); err != nil {
			log.Warnf("catalog: background refresh failed: %v", err)
		}
	}()
}

// Refresh fetches synchronously. Used at startup so the first snapshot
// carries a real timestamp.
func (c *Cache) Refresh(ctx context.Context) error {
	if !c.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer c.refreshing.Store(false)
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) error {
	models, err := c.fetch(ctx)
	if err != nil {
		// Keep serving the previous snapshot on failure.
		return err
	}
	c.snapshot.Store(&Snapshot{Models: models, RefreshedAt: time.Now()})
	return nil
}

// Stats summarizes cache state for health reporting.
type Stats struct {
	Models      int       `json:"models"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Stale       bool      `json:"stale"`
}

func (c *Cache) Stats() Stats {
	s := c.snapshot.Load()
	return Stats{
		Models:      len(s.Models),
		RefreshedAt: s.RefreshedAt,
		Stale:       c.Stale(),
	}
}

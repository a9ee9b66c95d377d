/**
 * @description
 * This package defines the snapshot cache abstraction used by the KPI
 * service, plus the default in-process implementation. The cache is injected
 * as a dependency so the KPI service can be tested with a fake clock and the
 * implementation can be swapped for Redis in production.
 *
 * @notes
 * - Readers always observe either a complete stale snapshot or a complete
 *   fresh one; the KPI service joins all sub-computations before calling Set.
 */

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
)

// SnapshotCache stores computed KPI snapshots keyed by
// (periodType, region, organizationID).
type SnapshotCache interface {
	// Get returns the cached snapshot and true when a fresh entry exists.
	Get(ctx context.Context, key string) (*domain.KPISnapshot, bool, error)
	// Set stores the snapshot with the given time-to-live.
	Set(ctx context.Context, key string, snapshot *domain.KPISnapshot, ttl time.Duration) error
	// Invalidate drops the entry for the key, if any.
	Invalidate(ctx context.Context, key string) error
}

type memoryEntry struct {
	snapshot  domain.KPISnapshot
	expiresAt time.Time
}

// MemoryCache is a mutex-guarded TTL map. The clock is injectable for tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an in-process snapshot cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryCacheWithClock creates a cache using the supplied clock.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*domain.KPISnapshot, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	snapshot := entry.snapshot
	return &snapshot, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, snapshot *domain.KPISnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{snapshot: *snapshot, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

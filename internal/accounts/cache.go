package accounts

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/kinship/backend/internal/models"
)

// SummaryCache keeps account summaries keyed by account id.
type SummaryCache interface {
	GetMany(ctx context.Context, ids []string) (map[string]models.AccountSummary, error)
	SetMany(ctx context.Context, summaries []models.AccountSummary) error
	Delete(ctx context.Context, id string) error
}

type noopCache struct{}

func (noopCache) GetMany(context.Context, []string) (map[string]models.AccountSummary, error) {
	return nil, nil
}
func (noopCache) SetMany(context.Context, []models.AccountSummary) error { return nil }
func (noopCache) Delete(context.Context, string) error                  { return nil }

type cacheEntry struct {
	summary models.AccountSummary
	expires time.Time
}

// MemoryCache is a TTL-based in-process SummaryCache.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewMemoryCache returns a cache holding entries for ttl, one minute if ttl is not positive.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// GetMany returns the unexpired entries among ids.
func (c *MemoryCache) GetMany(_ context.Context, ids []string) (map[string]models.AccountSummary, error) {
	now := c.now()
	out := make(map[string]models.AccountSummary, len(ids))

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range ids {
		entry, ok := c.items[id]
		if ok && now.Before(entry.expires) {
			summary := entry.summary
			summary.Profile = maps.Clone(summary.Profile)
			out[id] = summary
		}
	}
	return out, nil
}

// SetMany stores summaries with a fresh expiry.
func (c *MemoryCache) SetMany(_ context.Context, summaries []models.AccountSummary) error {
	expires := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, summary := range summaries {
		summary.Profile = maps.Clone(summary.Profile)
		c.items[summary.ID] = cacheEntry{summary: summary, expires: expires}
	}
	return nil
}

// Delete drops the entry for id.
func (c *MemoryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
	return nil
}

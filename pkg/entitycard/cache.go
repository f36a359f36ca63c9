package entitycard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dock-ai/registry/pkg/models"
)

// CacheEntry is a cached fetch outcome. A nil Card records a failed fetch
// (negative cache entry) with Failure describing why.
type CacheEntry struct {
	Card      *models.EntityCard `json:"card,omitempty"`
	Failure   string             `json:"failure,omitempty"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Cache stores fetch outcomes per domain.
type Cache interface {
	Get(ctx context.Context, domain string) (*CacheEntry, bool, error)
	Set(ctx context.Context, domain string, entry *CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, domain string) error
}

// MemoryCache is an in-process Cache with per-entry expiry. Expired entries
// are dropped on read and swept when the cache grows past maxEntries.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryItem
	maxEntries int
	now        func() time.Time
}

type memoryItem struct {
	entry     *CacheEntry
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache holding at most maxEntries live entries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		entries:    make(map[string]memoryItem),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, domain string) (*CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.entries[domain]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.entries, domain)
		return nil, false, nil
	}
	return item.entry, true, nil
}

func (c *MemoryCache) Set(_ context.Context, domain string, entry *CacheEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
	}
	if len(c.entries) >= c.maxEntries {
		// Still full of live entries: drop the one closest to expiry.
		var oldest string
		var oldestAt time.Time
		for d, item := range c.entries {
			if oldest == "" || item.expiresAt.Before(oldestAt) {
				oldest, oldestAt = d, item.expiresAt
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[domain] = memoryItem{entry: entry, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, domain)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	for d, item := range c.entries {
		if !now.Before(item.expiresAt) {
			delete(c.entries, d)
		}
	}
}

// RedisCache stores entries as JSON under "entitycard:<domain>" with native
// Redis expiry, so every registry instance shares one cache.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a RedisCache on client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "entitycard:"}
}

func (c *RedisCache) key(domain string) string { return c.prefix + domain }

func (c *RedisCache) Get(ctx context.Context, domain string) (*CacheEntry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(domain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", domain, err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is a miss; it is overwritten by the next Set.
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, domain string, entry *CacheEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(domain), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", domain, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, domain string) error {
	if err := c.client.Del(ctx, c.key(domain)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", domain, err)
	}
	return nil
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PageNamespace is the Redis key prefix of every cached page.
	PageNamespace = "pivot:pages:"
	// IndexPagePrefix namespaces rendered index pages.
	IndexPagePrefix = "index_page:"
)

// PageCache stores rendered pages for a bounded time. Entries are never
// invalidated by writes; they expire or are flushed.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
}

// IndexPageKey is the cache key for one rendering of the index page.
// The navigation bar differs for signed-in viewers, so that is part of the key.
func IndexPageKey(rawPage string, authenticated bool) string {
	viewer := "anon"
	if authenticated {
		viewer = "auth"
	}
	if rawPage == "" {
		rawPage = "1"
	}
	return fmt.Sprintf("%s%s:%s", IndexPagePrefix, viewer, rawPage)
}

// RedisPageCache keeps pages in Redis under a key prefix.
type RedisPageCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPageCache creates a RedisPageCache. Flush only touches keys under prefix.
func NewRedisPageCache(rdb *redis.Client, prefix string) *RedisPageCache {
	return &RedisPageCache{rdb: rdb, prefix: prefix}
}

func (c *RedisPageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisPageCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Flush deletes every key under the prefix using SCAN, never KEYS.
func (c *RedisPageCache) Flush(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryPageCache is a process-local PageCache with an injectable clock.
type MemoryPageCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryPageCache creates a MemoryPageCache. A nil clock means time.Now.
func NewMemoryPageCache(now func() time.Time) *MemoryPageCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryPageCache{now: now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryPageCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryPageCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: cp, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryPageCache) Flush(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

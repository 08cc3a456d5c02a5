package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache реализует CacheRepo в памяти процесса.
// Используется как fallback, когда Redis недоступен, и в тестах.
type MemoryCache struct {
	mu    sync.RWMutex
	data  map[string]memoryItem
	now   func() time.Time
	stats stats
}

type memoryItem struct {
	value   []byte
	expires time.Time // нулевое значение - без истечения
}

// NewMemoryCache создаёт пустой кеш
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]memoryItem),
		now:  time.Now,
	}
}

func (c *MemoryCache) alive(it memoryItem) bool {
	return it.expires.IsZero() || c.now().Before(it.expires)
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	defer c.stats.recordLatency(start)

	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || !c.alive(it) {
		c.stats.miss(1)
		return nil, ErrCacheMiss
	}
	c.stats.hit(1)
	return append([]byte(nil), it.value...), nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.setLocked(key, value, ttl)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) setLocked(key string, value []byte, ttl time.Duration) {
	it := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = c.now().Add(ttl)
	}
	c.data[key] = it
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()
	return ok && c.alive(it), nil
}

func (c *MemoryCache) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	defer c.stats.recordLatency(start)

	result := make(map[string][]byte, len(keys))
	var hits, misses int64
	c.mu.RLock()
	for _, k := range keys {
		it, ok := c.data[k]
		if !ok || !c.alive(it) {
			misses++
			continue
		}
		result[k] = append([]byte(nil), it.value...)
		hits++
	}
	c.mu.RUnlock()
	c.stats.hit(hits)
	c.stats.miss(misses)
	return result, nil
}

func (c *MemoryCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	for k, v := range items {
		c.setLocked(k, v, ttl)
	}
	c.mu.Unlock()
	return nil
}

// Close очищает кеш
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.data = make(map[string]memoryItem)
	c.mu.Unlock()
	return nil
}

// GetMetrics возвращает метрики; TotalKeys включает ещё не вычищенные просроченные ключи
func (c *MemoryCache) GetMetrics() *CacheMetrics {
	c.mu.RLock()
	n := int64(len(c.data))
	c.mu.RUnlock()
	return c.stats.snapshot(n)
}

package cache

import (
	"context"
	"errors"
	"time"
)

// CacheRepo определяет интерфейс для кеширования данных.
// Используется как look-aside кеш перед BadgerDB: хранилище само читает
// из кеша, а при промахе загружает запись с диска и кладёт её в кеш.
//
// Использование:
//
//	cache := NewRedisCache(config)
//	data, err := cache.Get(ctx, "key")
//	err = cache.Set(ctx, "key", data, 30*time.Second)
type CacheRepo interface {
	// Get получает значение по ключу из кеша.
	// Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с указанным TTL.
	// TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключи из кеша. Отсутствующие ключи не считаются ошибкой.
	Delete(ctx context.Context, keys ...string) error

	// Exists проверяет существование ключа в кеше.
	Exists(ctx context.Context, key string) (bool, error)

	// BatchGet получает несколько значений за один запрос.
	// Отсутствующие ключи в результат не попадают.
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet сохраняет несколько значений за один запрос.
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	TotalKeys int64 `json:"total_keys"`

	LastUpdate time.Time `json:"last_update"`
}

// ErrCacheMiss возвращается Get при отсутствии ключа
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

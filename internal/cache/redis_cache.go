package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит конфигурацию Redis кеша.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix добавляется ко всем ключам, чтобы несколько миров делили один Redis
	Prefix string

	MaxTTL         time.Duration
	MaxConnections int
	PoolTimeout    time.Duration
}

// RedisCache реализует CacheRepo используя Redis как Hot Cache.
//
// Особенности:
// - Автоматические метрики (hit ratio, latency)
// - Batch операции через pipeline
type RedisCache struct {
	client *redis.Client
	config RedisConfig
	stats  stats
	log    *logging.Logger
}

// NewRedisCache подключается к Redis и проверяет соединение.
func NewRedisCache(config RedisConfig, log *logging.Logger) (*RedisCache, error) {
	// Настройки по умолчанию
	if config.MaxTTL == 0 {
		config.MaxTTL = 1 * time.Hour
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
	if config.Prefix == "" {
		config.Prefix = "voxel:"
	}
	if log == nil {
		log = logging.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis cache initialized: %s (prefix %q)", config.Addr, config.Prefix)
	return &RedisCache{client: rdb, config: config, log: log}, nil
}

func (r *RedisCache) key(k string) string { return r.config.Prefix + k }

func (r *RedisCache) clampTTL(ttl time.Duration) time.Duration {
	if ttl > r.config.MaxTTL {
		return r.config.MaxTTL
	}
	return ttl
}

// Get получает значение по ключу из Redis кеша.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.stats.recordLatency(start)

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == nil {
		r.stats.hit(1)
		return val, nil
	}

	r.stats.miss(1)
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	r.log.Error("Redis Get error for key %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение в Redis кеше.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer r.stats.recordLatency(start)

	if err := r.client.Set(ctx, r.key(key), value, r.clampTTL(ttl)).Err(); err != nil {
		r.log.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete удаляет ключи из кеша.
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	defer r.stats.recordLatency(start)

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		r.log.Error("Redis Delete error for %d keys: %v", len(keys), err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Exists проверяет существование ключа в кеше.
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer r.stats.recordLatency(start)

	count, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return count > 0, nil
}

// BatchGet получает несколько значений за один запрос.
func (r *RedisCache) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	start := time.Now()
	defer r.stats.recordLatency(start)

	result := make(map[string][]byte)
	if len(keys) == 0 {
		return result, nil
	}

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.Get(ctx, r.key(key))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Error("Redis BatchGet pipeline error: %v", err)
		return nil, fmt.Errorf("redis batch get error: %w", err)
	}

	var hits, misses int64
	for key, cmd := range cmds {
		val, err := cmd.Bytes()
		switch {
		case err == nil:
			result[key] = val
			hits++
		case errors.Is(err, redis.Nil):
			misses++
		default:
			r.log.Error("Redis BatchGet error for key %s: %v", key, err)
			misses++
		}
	}
	r.stats.hit(hits)
	r.stats.miss(misses)

	return result, nil
}

// BatchSet сохраняет несколько значений за один запрос.
func (r *RedisCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	defer r.stats.recordLatency(start)

	if len(items) == 0 {
		return nil
	}

	ttl = r.clampTTL(ttl)
	pipe := r.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, r.key(key), value, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Redis BatchSet pipeline error: %v", err)
		return fmt.Errorf("redis batch set error: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		r.log.Error("Error closing Redis connection: %v", err)
		return err
	}
	r.log.Info("Redis cache closed")
	return nil
}

// GetMetrics возвращает текущие метрики кеша.
// TotalKeys для Redis не считается: DBSIZE включает чужие ключи.
func (r *RedisCache) GetMetrics() *CacheMetrics {
	return r.stats.snapshot(-1)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса.
// Незаданные поля заполняются значениями из Default().
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Raycast   RaycastConfig   `yaml:"raycast"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Sync      SyncConfig      `yaml:"sync"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type WorldConfig struct {
	HalfExtent int   `yaml:"half_extent"`
	Hills      int   `yaml:"hills"`
	Seed       int64 `yaml:"seed"`
	QueueSize  int   `yaml:"queue_size"`
}

type RaycastConfig struct {
	Mode        string  `yaml:"mode"` // march | grid
	Step        float64 `yaml:"step"`
	MaxDistance float64 `yaml:"max_distance"`
}

type StorageConfig struct {
	// Path каталог BadgerDB; пустая строка отключает сохранение
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type CacheConfig struct {
	// Backend: "", "memory" или "redis"
	Backend  string `yaml:"backend"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl_seconds"`
}

type EventBusConfig struct {
	// URL NATS; пустая строка - шина в памяти процесса
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type SyncConfig struct {
	BatchSize  int  `yaml:"batch_size"`
	FlushMs    int  `yaml:"flush_every_ms"`
	UseZstd    bool `yaml:"use_zstd_compression"`
	MirrorSelf bool `yaml:"mirror"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
	// APIToken защищает изменяющие маршруты; пусто - берётся из VOXEL_API_TOKEN
	APIToken         string `yaml:"api_token"`
	MaxExposedRadius int    `yaml:"max_exposed_radius"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	Console bool   `yaml:"console"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Default возвращает конфигурацию демо-мира: 50×50 с 20 холмами
func Default() *Config {
	return &Config{
		World: WorldConfig{
			HalfExtent: 25,
			Hills:      20,
			Seed:       1,
			QueueSize:  256,
		},
		Raycast: RaycastConfig{
			Mode:        "march",
			Step:        0.1,
			MaxDistance: 10,
		},
		Storage: StorageConfig{Path: "data/world"},
		Cache:   CacheConfig{TTL: 300},
		EventBus: EventBusConfig{
			Stream:    "VOXEL_EVENTS",
			Retention: 24,
		},
		Sync: SyncConfig{
			BatchSize: 256,
			FlushMs:   50,
			UseZstd:   true,
		},
		Logging: LoggingConfig{Level: "INFO", Dir: "logs", Console: true},
		Telemetry: TelemetryConfig{
			Endpoint: "localhost:4318",
			Service:  "voxel-world",
		},
	}
}

// FlushInterval интервал сброса пакетов дельт
func (s SyncConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushMs) * time.Millisecond
}

// TTLDuration время жизни записи кеша
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 2112)
}

// GetAPIToken возвращает токен API: config -> env VOXEL_API_TOKEN
func (s *ServerConfig) GetAPIToken() string {
	if s.APIToken != "" {
		return s.APIToken
	}
	return os.Getenv("VOXEL_API_TOKEN")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Validate проверяет значения, которые нельзя исправить дефолтами
func (c *Config) Validate() error {
	switch c.Raycast.Mode {
	case "march", "grid":
	default:
		return fmt.Errorf("raycast.mode: неизвестный режим %q", c.Raycast.Mode)
	}
	if c.Raycast.MaxDistance <= 0 {
		return fmt.Errorf("raycast.max_distance должен быть > 0")
	}
	if c.Raycast.Mode == "march" && c.Raycast.Step <= 0 {
		return fmt.Errorf("raycast.step должен быть > 0")
	}
	if c.World.HalfExtent < 0 || c.World.Hills < 0 {
		return fmt.Errorf("world: отрицательные размеры")
	}
	switch c.Cache.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend: неизвестный бэкенд %q", c.Cache.Backend)
	}
	return nil
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфига %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфига %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

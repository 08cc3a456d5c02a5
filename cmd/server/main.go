package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-world/internal/api"
	"github.com/annel0/voxel-world/internal/cache"
	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/metrics"
	"github.com/annel0/voxel-world/internal/observability"
	"github.com/annel0/voxel-world/internal/storage"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию $VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Некорректная конфигурация: %v", err)
	}

	// Инициализируем систему логирования
	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logging.Warn("%v, используется INFO", err)
	}
	consoleLevel := level
	if !cfg.Logging.Console {
		consoleLevel = logging.OFF
	}
	logging.Default().SetLevels(consoleLevel, level)

	logging.Info("🌍 Запуск voxel-world сервера...")

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	rootCtx := context.Background()

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(rootCtx, observability.Config{
			ServiceName: cfg.Telemetry.Service,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    true,
		})
		if err != nil {
			logging.Warn("OpenTelemetry недоступен: %v", err)
		} else {
			defer func() {
				if err := shutdown(rootCtx); err != nil {
					logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger("eventbus")); err != nil {
		return fmt.Errorf("logging listener: %w", err)
	}
	busMetrics, err := eventbus.NewMetricsExporter(bus, registry, time.Second)
	if err != nil {
		return fmt.Errorf("метрики шины: %w", err)
	}
	busMetrics.Start()
	defer busMetrics.Stop()

	// === ХРАНИЛИЩЕ ===
	hot, err := openCache(cfg.Cache)
	if err != nil {
		return err
	}
	if hot != nil {
		defer hot.Close()
	}

	var ws *storage.WorldStorage
	if cfg.Storage.Path != "" || cfg.Storage.InMemory {
		ws, err = storage.NewWorldStorage(storage.Options{
			Path:     cfg.Storage.Path,
			InMemory: cfg.Storage.InMemory,
			Cache:    hot,
			CacheTTL: cfg.Cache.TTLDuration(),
			Logger:   logging.GetStorageLogger(),
		})
		if err != nil {
			return err
		}
		defer ws.Close()
	} else {
		logging.Warn("⚠️ Сохранение мира отключено (storage.path пуст)")
	}

	m := world.NewVoxelMap()
	var startVersion uint64
	if ws != nil {
		stats, err := ws.LoadInto(rootCtx, m)
		if err != nil {
			return fmt.Errorf("загрузка мира: %w", err)
		}
		startVersion = stats.Version
		logging.Info("💾 Загружено колонок=%d, блоков=%d (версия %d)", stats.Columns, stats.Blocks, stats.Version)
	}

	// === СИНХРОНИЗАЦИЯ И МИР ===
	worldMetrics, err := metrics.NewWorldMetrics("voxel", registry)
	if err != nil {
		return fmt.Errorf("метрики мира: %w", err)
	}

	syncMgr, err := vsync.NewSyncManager(vsync.SyncConfig{
		Source:     "world",
		Bus:        bus,
		BatchSize:  cfg.Sync.BatchSize,
		FlushEvery: cfg.Sync.FlushInterval(),
		UseZstd:    cfg.Sync.UseZstd,
		Mirror:     cfg.Sync.MirrorSelf,
		Initial:    m.Exposed(),
		Logger:     logging.GetSyncLogger(),

		InitialVersion: startVersion,
	})
	if err != nil {
		return err
	}

	sinks := []world.DeltaSink{syncMgr.Sink()}
	var w *world.World
	var saver *storage.Saver
	if ws != nil {
		saver = storage.NewSaver(ws, func() *world.Snapshot { return w.Snapshot() }, 5*time.Second, logging.GetStorageLogger())
		sinks = append(sinks, saver)
	}

	w = world.NewWorld(m, world.Options{
		Raycaster: world.NewRaycaster(cfg.Raycast.Mode, cfg.Raycast.Step, cfg.Raycast.MaxDistance),
		Observer:  worldMetrics,
		Logger:    logging.GetWorldLogger(),
		QueueSize: cfg.World.QueueSize,
		Sinks:     sinks,

		StartVersion: startVersion,
	})

	worldCtx, stopWorld := context.WithCancel(rootCtx)
	defer stopWorld()
	go w.Run(worldCtx)

	saverCtx, stopSaver := context.WithCancel(rootCtx)
	saverDone := make(chan struct{})
	if saver != nil {
		go func() {
			defer close(saverDone)
			saver.Run(saverCtx)
		}()
	} else {
		close(saverDone)
	}

	if m.Len() == 0 {
		gen := world.Compose(
			world.FlatGenerator{HalfExtent: cfg.World.HalfExtent},
			world.HillsGenerator{HalfExtent: cfg.World.HalfExtent, Count: cfg.World.Hills, Seed: cfg.World.Seed},
		)
		ch, err := w.Populate(rootCtx, gen)
		if err != nil {
			stopSaver()
			return fmt.Errorf("генерация мира: %w", err)
		}
		logging.Info("🏔️ Сгенерирован демо-мир: блоков=%d, открытых=%d (версия %d)",
			w.Snapshot().Len(), w.Snapshot().ExposedCount(), ch.Version)
	}

	// === REST API ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	apiCfg := api.Config{
		Port:             restPort,
		World:            w,
		Mirror:           syncMgr.Mirror(),
		Bus:              bus,
		Registry:         registry,
		APIToken:         cfg.Server.GetAPIToken(),
		MaxExposedRadius: cfg.Server.MaxExposedRadius,
		WorldHalfExtent:  cfg.World.HalfExtent,
		Logger:           logging.GetAPILogger(),
	}
	if ws != nil {
		apiCfg.Columns = ws
	}
	restServer, err := api.NewRestServer(apiCfg)
	if err != nil {
		stopSaver()
		return fmt.Errorf("создание REST API: %w", err)
	}
	restErr := make(chan error, 1)
	go func() { restErr <- restServer.Start() }()

	var metricsServer *http.Server
	if port := cfg.Server.GetMetricsPort(); port != 0 && port != cfg.Server.GetRESTPort() {
		metricsServer = startMetricsServer(fmt.Sprintf(":%d", port), registry)
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("   🎯 Рейкаст: %s (шаг %.2f, дальность %.1f)", cfg.Raycast.Mode, cfg.Raycast.Step, cfg.Raycast.MaxDistance)
	logging.Info("💡 Пример: curl -X POST http://localhost%s/api/raycast -d '{\"origin\":[0,3,0],\"pitch\":-90}'", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-restErr:
		runErr = fmt.Errorf("REST API: %w", err)
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	logging.Debug("Остановка REST API...")
	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logging.Debug("Остановка мира...")
	stopWorld()
	<-w.Done()

	syncMgr.Stop()
	stopSaver()
	<-saverDone
	return runErr
}

func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий: в памяти процесса")
		return eventbus.NewMemoryBus(1024), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS: %w", err)
	}
	logging.Info("📨 Шина событий: NATS JetStream %s (stream %s)", cfg.URL, cfg.Stream)
	return bus, nil
}

func openCache(cfg config.CacheConfig) (cache.CacheRepo, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		logging.Info("🗃️ Кеш колонок: в памяти")
		return cache.NewMemoryCache(), nil
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			MaxTTL:   cfg.TTLDuration(),
		}, logging.GetComponentLogger("cache"))
		if err != nil {
			return nil, fmt.Errorf("подключение к Redis: %w", err)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("неизвестный backend кеша %q", cfg.Backend)
}

func startMetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))

	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("❌ Сервер метрик: %v", err)
		}
	}()
	logging.Info("📊 Метрики Prometheus: http://localhost%s/metrics", addr)
	return srv
}

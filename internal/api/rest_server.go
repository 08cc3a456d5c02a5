package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/middleware"
	"github.com/annel0/voxel-world/internal/storage"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// WorldService - операции мира, которые нужны API. Реализуется *world.World.
type WorldService interface {
	Snapshot() *world.Snapshot
	Add(ctx context.Context, pos vec.Vec3, t block.Type) (world.Change, error)
	Remove(ctx context.Context, pos vec.Vec3) (world.Change, error)
	Interact(ctx context.Context, req world.InteractRequest) (world.InteractResult, error)
	RaycastOn(snap *world.Snapshot, origin, dir mgl64.Vec3) (world.Hit, bool)
}

// ColumnStore читает сохранённые колонки. Реализуется *storage.WorldStorage.
type ColumnStore interface {
	LoadColumn(ctx context.Context, key vec.Vec2) ([]storage.BlockRecord, error)
}

// RestServer представляет REST API сервер
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	world      WorldService
	columns    ColumnStore
	mirror     *vsync.RenderMirror
	bus        eventbus.EventBus
	metrics    *ServerMetrics
	apiToken   string
	maxRadius  int
	// worldHalfExtent ограничивает /api/move по X/Z; 0 - без границ
	worldHalfExtent int
	log             *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port    string       // адрес для запуска сервера, например ":8088"
	World   WorldService // обязателен
	Columns ColumnStore  // nil - сохранение выключено
	Mirror  *vsync.RenderMirror
	// Bus включает поток /ws/exposure; nil - поток отключён
	Bus      eventbus.EventBus
	Registry *prometheus.Registry // nil - отдельный реестр сервера
	// APIToken защищает изменяющие маршруты; пусто - без проверки
	APIToken string
	// MaxExposedRadius ограничивает радиус выборки /api/exposed
	MaxExposedRadius int
	// WorldHalfExtent - граница мира по X/Z для /api/move; 0 - без границ
	WorldHalfExtent int
	Logger          *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.World == nil {
		return nil, errors.New("api: World не задан")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.MaxExposedRadius <= 0 {
		config.MaxExposedRadius = 64
	}
	if config.Logger == nil {
		config.Logger = logging.Default()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("voxel-world"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("voxel", config.Registry)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Registry)

	server := &RestServer{
		router:    router,
		world:     config.World,
		columns:   config.Columns,
		mirror:    config.Mirror,
		bus:       config.Bus,
		metrics:   NewServerMetrics(),
		apiToken:  config.APIToken,
		maxRadius: config.MaxExposedRadius,
		log:       config.Logger,

		worldHalfExtent: config.WorldHalfExtent,
	}
	server.httpServer = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	rs.router.GET("/health", rs.handleHealth)
	if rs.bus != nil {
		rs.router.GET("/ws/exposure", rs.handleExposureStream)
	}

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/blocks/:x/:y/:z", rs.handleGetBlock)
		api.GET("/exposed", rs.handleExposed)
		api.GET("/columns/:cx/:cz", rs.handleColumn)
		api.POST("/raycast", rs.handleRaycast)
		api.POST("/move", rs.handleMove)
	}

	// Изменяющие маршруты
	protected := api.Group("/")
	protected.Use(rs.tokenMiddleware())
	{
		protected.PUT("/blocks/:x/:y/:z", rs.handlePutBlock)
		protected.DELETE("/blocks/:x/:y/:z", rs.handleDeleteBlock)
		protected.POST("/interact", rs.handleInteract)
	}
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер. Блокирующий вызов; после Stop возвращает nil.
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API слушает %s", rs.httpServer.Addr)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop плавно останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}

// fail прерывает обработку запроса ответом с ошибкой
func (rs *RestServer) fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{
		Success: false,
		Message: message,
	})
}

func (rs *RestServer) ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// worldError переводит ошибку команды мира в HTTP-ответ
func (rs *RestServer) worldError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, block.ErrUnknownBlock):
		rs.fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, world.ErrStopped):
		rs.fail(c, http.StatusServiceUnavailable, "Мир остановлен")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rs.fail(c, http.StatusGatewayTimeout, "Запрос отменён")
	default:
		_ = c.Error(err)
		rs.fail(c, http.StatusInternalServerError, "Внутренняя ошибка")
	}
}

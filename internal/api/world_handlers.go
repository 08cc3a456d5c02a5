package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/voxel-world/internal/observability"
	"github.com/annel0/voxel-world/internal/physics"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/attribute"
)

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().Unix(),
		"version": rs.world.Snapshot().Version(),
	})
}

// handleStats возвращает статистику мира и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	snap := rs.world.Snapshot()
	stats := map[string]interface{}{
		"world": map[string]interface{}{
			"version": snap.Version(),
			"blocks":  snap.Len(),
			"exposed": snap.ExposedCount(),
			"columns": snap.ColumnCount(),
		},
	}

	if rs.mirror != nil {
		stats["mirror"] = map[string]interface{}{
			"version": rs.mirror.Version(),
			"exposed": rs.mirror.Len(),
			"batches": rs.mirror.Batches(),
			"gaps":    rs.mirror.Gaps(),
		}
	}

	server := map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.2f", rs.metrics.GetMemoryUsage()),
		"server_time": time.Now().Unix(),
	}
	if cpuPercent, err := rs.metrics.GetCPUUsage(); err == nil {
		server["cpu_percent"] = fmt.Sprintf("%.2f", cpuPercent)
	}
	if rss, err := rs.metrics.GetRSS(); err == nil {
		server["rss_mb"] = fmt.Sprintf("%.2f", rss)
	}
	stats["server"] = server
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	rs.ok(c, "Статистика получена", stats)
}

// BlockInfo описывает блок в ответах API
type BlockInfo struct {
	Position vec.Vec3    `json:"position"`
	Type     block.Type  `json:"type"`
	Exposed  bool        `json:"exposed"`
	Look     *block.Info `json:"look,omitempty"`
}

func parsePosition(c *gin.Context) (vec.Vec3, error) {
	var p vec.Vec3
	var err error
	if p.X, err = strconv.Atoi(c.Param("x")); err != nil {
		return p, fmt.Errorf("x: %w", err)
	}
	if p.Y, err = strconv.Atoi(c.Param("y")); err != nil {
		return p, fmt.Errorf("y: %w", err)
	}
	if p.Z, err = strconv.Atoi(c.Param("z")); err != nil {
		return p, fmt.Errorf("z: %w", err)
	}
	return p, nil
}

// handleGetBlock возвращает блок по координатам
func (rs *RestServer) handleGetBlock(c *gin.Context) {
	pos, err := parsePosition(c)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверные координаты: "+err.Error())
		return
	}

	snap := rs.world.Snapshot()
	t, ok := snap.Block(pos)
	if !ok {
		rs.fail(c, http.StatusNotFound, "Блок не найден")
		return
	}
	look := t.Info()
	rs.ok(c, "Блок найден", BlockInfo{Position: pos, Type: t, Exposed: snap.IsExposed(pos), Look: &look})
}

// PlaceRequest тело PUT /api/blocks/:x/:y/:z
type PlaceRequest struct {
	Type string `json:"type" binding:"required"`
}

// handlePutBlock ставит блок; занятая позиция - 409
func (rs *RestServer) handlePutBlock(c *gin.Context) {
	pos, err := parsePosition(c)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверные координаты: "+err.Error())
		return
	}
	var req PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	t, err := block.Parse(req.Type)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := observability.Tracer().Start(c.Request.Context(), "world.Add")
	span.SetAttributes(attribute.String("block", t.String()))
	ch, err := rs.world.Add(ctx, pos, t)
	span.End()
	if err != nil {
		rs.worldError(c, err)
		return
	}
	if !ch.Applied {
		c.JSON(http.StatusConflict, GenericResponse{Success: false, Message: "Позиция занята", Data: ch})
		return
	}
	rs.ok(c, "Блок установлен", ch)
}

// handleDeleteBlock удаляет блок; пустая позиция - 404
func (rs *RestServer) handleDeleteBlock(c *gin.Context) {
	pos, err := parsePosition(c)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверные координаты: "+err.Error())
		return
	}

	ctx, span := observability.Tracer().Start(c.Request.Context(), "world.Remove")
	ch, err := rs.world.Remove(ctx, pos)
	span.End()
	if err != nil {
		rs.worldError(c, err)
		return
	}
	if !ch.Applied {
		rs.fail(c, http.StatusNotFound, "Блок не найден")
		return
	}
	rs.ok(c, "Блок удалён", ch)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// handleExposed возвращает открытые блоки в квадрате радиуса radius по X/Z
func (rs *RestServer) handleExposed(c *gin.Context) {
	var center vec.Vec3
	var radius int
	var err error
	if center.X, err = queryInt(c, "x", 0); err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if center.Z, err = queryInt(c, "z", 0); err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if radius, err = queryInt(c, "radius", 16); err != nil {
		rs.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	rs.respondExposed(c, center, radius)
}

func (rs *RestServer) respondExposed(c *gin.Context, center vec.Vec3, radius int) {
	if radius < 0 || radius > rs.maxRadius {
		rs.fail(c, http.StatusBadRequest, fmt.Sprintf("radius должен быть в пределах 0..%d", rs.maxRadius))
		return
	}
	snap := rs.world.Snapshot()
	positions := snap.ExposedNear(center, radius)
	if positions == nil {
		positions = []vec.Vec3{}
	}
	rs.ok(c, "Открытые блоки", gin.H{
		"version":   snap.Version(),
		"count":     len(positions),
		"positions": positions,
	})
}

// handleColumn возвращает сохранённое на диске содержимое колонки
func (rs *RestServer) handleColumn(c *gin.Context) {
	if rs.columns == nil {
		rs.fail(c, http.StatusServiceUnavailable, "Хранилище отключено")
		return
	}
	cx, errX := strconv.Atoi(c.Param("cx"))
	cz, errZ := strconv.Atoi(c.Param("cz"))
	if errX != nil || errZ != nil {
		rs.fail(c, http.StatusBadRequest, "Неверные координаты колонки")
		return
	}

	key := vec.Vec2{X: cx, Y: cz}
	records, err := rs.columns.LoadColumn(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		rs.fail(c, http.StatusInternalServerError, "Ошибка чтения хранилища")
		return
	}

	blocks := make([]BlockInfo, 0, len(records))
	snap := rs.world.Snapshot()
	for _, r := range records {
		blocks = append(blocks, BlockInfo{Position: r.Pos, Type: r.Type, Exposed: snap.IsExposed(r.Pos)})
	}
	rs.ok(c, "Колонка", gin.H{"column": key, "blocks": blocks})
}

// RayRequest описывает луч: либо явное направление Dir,
// либо углы камеры Yaw/Pitch в градусах
type RayRequest struct {
	Origin [3]float64  `json:"origin"`
	Dir    *[3]float64 `json:"dir,omitempty"`
	Yaw    float64     `json:"yaw"`
	Pitch  float64     `json:"pitch"`
}

func (r RayRequest) ray() (mgl64.Vec3, mgl64.Vec3) {
	origin := mgl64.Vec3(r.Origin)
	if r.Dir != nil {
		return origin, mgl64.Vec3(*r.Dir)
	}
	return origin, world.ViewDirection(r.Yaw, r.Pitch)
}

// RaycastResponse ответ /api/raycast
type RaycastResponse struct {
	Found   bool       `json:"found"`
	Hit     *world.Hit `json:"hit,omitempty"`
	Block   block.Type `json:"block,omitempty"`
	Version uint64     `json:"version"`
}

// handleRaycast бросает луч по текущему снапшоту без изменения мира
func (rs *RestServer) handleRaycast(c *gin.Context) {
	var req RayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	origin, dir := req.ray()
	snap := rs.world.Snapshot()
	hit, found := rs.world.RaycastOn(snap, origin, dir)
	resp := RaycastResponse{Found: found, Version: snap.Version()}
	if found {
		resp.Hit = &hit
		resp.Block, _ = snap.Block(hit.Block)
	}
	rs.ok(c, "Рейкаст выполнен", resp)
}

// MoveRequest тело /api/move: позиции ступней игрока до и после шага
type MoveRequest struct {
	From [3]float64 `json:"from"`
	To   [3]float64 `json:"to"`
}

// MoveResponse итоговая позиция; Blocked - шаг отменён столкновением
type MoveResponse struct {
	Position [3]float64 `json:"position"`
	Blocked  bool       `json:"blocked"`
	Version  uint64     `json:"version"`
}

// handleMove проверяет шаг игрока по коллайдеру против текущего снапшота.
// Цель сначала прижимается к границам мира по X/Z.
func (rs *RestServer) handleMove(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	from, to := mgl64.Vec3(req.From), mgl64.Vec3(req.To)
	if rs.worldHalfExtent > 0 {
		to = physics.ClampXZ(to, float64(rs.worldHalfExtent))
	}
	snap := rs.world.Snapshot()
	pos := physics.ResolveMove(snap, from, to, physics.PlayerBox)
	rs.ok(c, "Шаг обработан", MoveResponse{
		Position: [3]float64(pos),
		Blocked:  pos != to,
		Version:  snap.Version(),
	})
}

// InteractRequest тело /api/interact
type InteractRequest struct {
	RayRequest
	Action string `json:"action" binding:"required"`
	Type   string `json:"type"`
}

// handleInteract ломает или ставит блок по лучу атомарно в горутине мира
func (rs *RestServer) handleInteract(c *gin.Context) {
	var req InteractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	origin, dir := req.ray()
	wreq := world.InteractRequest{Origin: origin, Dir: dir, Action: world.Action(req.Action)}
	switch wreq.Action {
	case world.ActionBreak:
	case world.ActionPlace:
		t, err := block.Parse(req.Type)
		if err != nil {
			rs.fail(c, http.StatusBadRequest, err.Error())
			return
		}
		wreq.Block = t
	default:
		rs.fail(c, http.StatusBadRequest, fmt.Sprintf("Неизвестное действие %q", req.Action))
		return
	}

	ctx, span := observability.Tracer().Start(c.Request.Context(), "world.Interact")
	span.SetAttributes(attribute.String("action", req.Action))
	res, err := rs.world.Interact(ctx, wreq)
	span.End()
	if err != nil {
		rs.worldError(c, err)
		return
	}
	rs.ok(c, "Взаимодействие выполнено", res)
}

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamSendBuffer = 64
)

// Типы сообщений потока открытого множества
const (
	StreamSnapshot = "snapshot"
	StreamDelta    = "delta"
)

// StreamMessage - сообщение /ws/exposure для внешнего рендера.
// snapshot несёт всё множество целиком, delta - слитое изменение версий From..To.
type StreamMessage struct {
	Type    string     `json:"type"`
	Version uint64     `json:"version"`
	From    uint64     `json:"from,omitempty"`
	Exposed []vec.Vec3 `json:"exposed,omitempty"`
	Entered []vec.Vec3 `json:"entered,omitempty"`
	Left    []vec.Vec3 `json:"left,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamClient - одно подключение рендера
type streamClient struct {
	conn *websocket.Conn
	send chan StreamMessage

	mu      sync.Mutex
	version uint64
	closed  bool
}

// offerLocked кладёт сообщение в очередь без блокировки; false - клиент не успевает.
// Вызывается под sc.mu.
func (sc *streamClient) offerLocked(msg StreamMessage) bool {
	if sc.closed {
		return false
	}
	select {
	case sc.send <- msg:
		return true
	default:
		sc.closed = true
		close(sc.send)
		return false
	}
}

func (sc *streamClient) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.closed {
		sc.closed = true
		close(sc.send)
	}
}

// handleExposureStream отдаёт снапшот открытого множества, затем пакеты дельт.
// При пропуске версий клиент получает новый снапшот.
func (rs *RestServer) handleExposureStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rs.log.Warn("WebSocket upgrade: %v", err)
		return
	}

	client := &streamClient{conn: conn, send: make(chan StreamMessage, streamSendBuffer)}
	encoders := make(map[string]vsync.DeltaEncoder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Подписка раньше снапшота: пакеты, пришедшие между ними, отфильтруются по версии
	sub, err := rs.bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.TypeExposureBatch}},
		func(_ context.Context, ev *eventbus.Envelope) {
			name := ev.Metadata["encoding"]
			enc, ok := encoders[name]
			if !ok {
				var err error
				if enc, err = vsync.EncoderFor(name); err != nil {
					rs.log.Warn("Поток: %v", err)
					return
				}
				encoders[name] = enc
			}
			b, err := enc.Decode(ev.Payload)
			if err != nil {
				rs.log.Warn("Поток: пакет %s не декодирован: %v", ev.ID, err)
				return
			}
			rs.forwardBatch(client, b)
		})
	if err != nil {
		rs.log.Error("Поток: подписка на шину: %v", err)
		_ = conn.Close()
		return
	}
	defer sub.Unsubscribe()

	rs.sendSnapshot(client)
	rs.log.Info("📺 Рендер подключён к потоку: %s", c.Request.RemoteAddr)

	go client.writePump()
	client.readPump()
	client.close()
	rs.log.Info("📺 Рендер отключён: %s", c.Request.RemoteAddr)
}

func (rs *RestServer) sendSnapshot(client *streamClient) {
	client.mu.Lock()
	defer client.mu.Unlock()
	rs.snapshotLocked(client)
}

func (rs *RestServer) snapshotLocked(client *streamClient) {
	snap := rs.world.Snapshot()
	client.version = snap.Version()
	client.offerLocked(StreamMessage{Type: StreamSnapshot, Version: snap.Version(), Exposed: snap.Exposed()})
}

// forwardBatch вызывается из доставки шины; пакеты одного подписчика идут по порядку
func (rs *RestServer) forwardBatch(client *streamClient, b vsync.Batch) {
	client.mu.Lock()
	defer client.mu.Unlock()

	switch {
	case b.ToVersion <= client.version:
		return
	case b.FromVersion != client.version+1:
		rs.snapshotLocked(client)
		return
	}

	client.version = b.ToVersion
	client.offerLocked(StreamMessage{
		Type:    StreamDelta,
		Version: b.ToVersion,
		From:    b.FromVersion,
		Entered: b.Delta.Entered,
		Left:    b.Delta.Left,
	})
}

// readPump только обслуживает pong и закрытие; входящие сообщения игнорируются
func (sc *streamClient) readPump() {
	sc.conn.SetReadLimit(512)
	_ = sc.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	sc.conn.SetPongHandler(func(string) error {
		return sc.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := sc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (sc *streamClient) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = sc.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sc.send:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = sc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sc.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

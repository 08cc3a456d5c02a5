package sync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/world"
)

const (
	// batchPriority - пакеты дельт нельзя отбрасывать: потеря ломает зеркало рендера
	batchPriority = 9
	// publishTimeout ограничивает ожидание места в шине для одного пакета
	publishTimeout = 2 * time.Second
)

// BatchManager накапливает дельты мира и отправляет их пакетами через EventBus.
// Последовательные дельты сливаются в одну чистую дельту.
type BatchManager struct {
	mu       sync.Mutex
	acc      world.DeltaAccumulator
	from, to uint64
	changes  int
	capacity int

	flushEvery time.Duration
	bus        eventbus.EventBus
	source     string
	encoder    DeltaEncoder
	log        *logging.Logger

	kick chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewBatchManager создаёт менеджер с указанным лимитом буфера (в позициях) и интервалом отправки.
func NewBatchManager(bus eventbus.EventBus, source string, capacity int, flushEvery time.Duration, encoder DeltaEncoder, log *logging.Logger) *BatchManager {
	if encoder == nil {
		encoder = NewPassthroughEncoder()
	}
	if capacity <= 0 {
		capacity = 256
	}
	if flushEvery <= 0 {
		flushEvery = 50 * time.Millisecond
	}
	if log == nil {
		log = logging.Default()
	}
	bm := &BatchManager{
		capacity:   capacity,
		flushEvery: flushEvery,
		bus:        bus,
		source:     source,
		encoder:    encoder,
		log:        log,
		kick:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go bm.loop()
	return bm
}

// Add учитывает дельту мутации с версией version. Вызывается из горутины мира
// и не блокируется: при переполнении буфера сброс лишь запрашивается.
func (bm *BatchManager) Add(d world.Delta, version uint64) {
	bm.mu.Lock()
	if bm.changes == 0 {
		bm.from = version
	}
	bm.to = version
	bm.changes++
	bm.acc.Add(d)
	full := bm.acc.Len() >= bm.capacity
	bm.mu.Unlock()

	if full {
		bm.kickFlush()
	}
}

// kickFlush просит loop сбросить буфер, не дожидаясь тикера
func (bm *BatchManager) kickFlush() {
	select {
	case bm.kick <- struct{}{}:
	default:
	}
}

// Pending возвращает число накопленных мутаций
func (bm *BatchManager) Pending() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.changes
}

func (bm *BatchManager) loop() {
	ticker := time.NewTicker(bm.flushEvery)
	defer ticker.Stop()
	defer close(bm.done)

	for {
		select {
		case <-ticker.C:
			_ = bm.flush()
		case <-bm.kick:
			_ = bm.flush()
		case <-bm.quit:
			return
		}
	}
}

// take забирает накопленный пакет и очищает буфер
func (bm *BatchManager) take() (Batch, bool) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.changes == 0 {
		return Batch{}, false
	}
	b := Batch{
		FromVersion: bm.from,
		ToVersion:   bm.to,
		Changes:     bm.changes,
		Delta:       bm.acc.Result(),
	}
	bm.acc.Reset()
	bm.changes = 0
	return b, true
}

// restore возвращает неотправленный пакет в буфер перед изменениями,
// накопленными после take. Версии остаются непрерывными.
func (bm *BatchManager) restore(b Batch) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.changes == 0 {
		bm.to = b.ToVersion
	}
	bm.from = b.FromVersion
	bm.changes += b.Changes
	bm.acc.Add(b.Delta)
}

// flush отсылает накопленные изменения единым сообщением.
// Вызывается только из loop и из Stop после его завершения, поэтому пакеты уходят по порядку.
// Неудачный пакет возвращается в буфер и уйдёт первым при следующем сбросе.
func (bm *BatchManager) flush() error {
	b, ok := bm.take()
	if !ok {
		return nil
	}

	payload, err := bm.encoder.Encode(b)
	if err != nil {
		bm.restore(b)
		bm.log.Error("BatchManager encode error: %v", err)
		return err
	}

	env := eventbus.NewEnvelope(bm.source, eventbus.TypeExposureBatch, payload)
	env.Priority = batchPriority
	env.Metadata["encoding"] = bm.encoder.Name()
	env.Metadata["from_version"] = strconv.FormatUint(b.FromVersion, 10)
	env.Metadata["to_version"] = strconv.FormatUint(b.ToVersion, 10)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := bm.bus.Publish(ctx, env); err != nil {
		bm.restore(b)
		bm.log.Warn("BatchManager publish error (версии %d..%d вернулись в буфер): %v", b.FromVersion, b.ToVersion, err)
		return err
	}
	bm.log.Trace("BatchManager: версии %d..%d, +%d -%d, %dB", b.FromVersion, b.ToVersion, len(b.Delta.Entered), len(b.Delta.Left), len(payload))
	return nil
}

// Stop завершает работу менеджера и отправляет оставшиеся изменения.
func (bm *BatchManager) Stop() {
	bm.once.Do(func() {
		close(bm.quit)
		<-bm.done
		if err := bm.flush(); err != nil {
			bm.log.Error("BatchManager: при остановке потеряно %d мутаций: %v", bm.Pending(), err)
		}
	})
}

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
)

// Saver подключается к миру как DeltaSink, копит изменённые колонки
// и периодически записывает их из текущего снапшота.
type Saver struct {
	ws       *WorldStorage
	snapshot func() *world.Snapshot
	interval time.Duration
	log      *logging.Logger

	mu    sync.Mutex
	dirty map[vec.Vec2]struct{}
	full  bool
}

// NewSaver создаёт Saver; snapshot обычно World.Snapshot
func NewSaver(ws *WorldStorage, snapshot func() *world.Snapshot, interval time.Duration, log *logging.Logger) *Saver {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	return &Saver{
		ws:       ws,
		snapshot: snapshot,
		interval: interval,
		log:      log,
		dirty:    make(map[vec.Vec2]struct{}),
	}
}

// OnChange реализует world.DeltaSink
func (s *Saver) OnChange(ch world.Change) {
	if !ch.Applied {
		return
	}
	s.mu.Lock()
	if ch.Type == world.EventTypePopulate {
		s.full = true
	} else {
		s.dirty[ch.Position.Column()] = struct{}{}
	}
	s.mu.Unlock()
}

// Pending возвращает число колонок, ожидающих записи
func (s *Saver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Flush записывает накопленные изменения. При ошибке колонки остаются грязными.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	dirty, full := s.dirty, s.full
	s.dirty, s.full = make(map[vec.Vec2]struct{}), false
	s.mu.Unlock()

	if !full && len(dirty) == 0 {
		return nil
	}

	snap := s.snapshot()
	var err error
	if full {
		_, err = s.ws.SaveSnapshot(ctx, snap)
	} else {
		keys := make([]vec.Vec2, 0, len(dirty))
		for k := range dirty {
			keys = append(keys, k)
		}
		err = s.ws.SaveColumns(ctx, snap, keys)
	}
	if err != nil {
		s.mu.Lock()
		s.full = s.full || full
		for k := range dirty {
			s.dirty[k] = struct{}{}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Run сбрасывает изменения по таймеру до отмены ctx, затем делает финальный сброс.
func (s *Saver) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.log.Error("Ошибка сохранения мира: %v", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(final); err != nil {
				s.log.Error("Ошибка финального сохранения мира: %v", err)
			}
			cancel()
			return
		}
	}
}

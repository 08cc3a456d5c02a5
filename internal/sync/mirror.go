package sync

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-world/internal/vec"
)

// RenderMirror хранит копию открытого множества так, как её видит внешний рендер:
// только по пакетам дельт, без доступа к карте.
type RenderMirror struct {
	mu      sync.RWMutex
	exposed map[vec.Vec3]struct{}
	version uint64
	batches uint64
	gaps    uint64
}

// NewRenderMirror создаёт зеркало с начальным состоянием (например, из снапшота)
func NewRenderMirror(initial []vec.Vec3, version uint64) *RenderMirror {
	rm := &RenderMirror{
		exposed: make(map[vec.Vec3]struct{}, len(initial)),
		version: version,
	}
	for _, p := range initial {
		rm.exposed[p] = struct{}{}
	}
	return rm
}

// Apply применяет пакет. Пакеты со старыми версиями игнорируются;
// пропуск версий засчитывается в Gaps, но пакет всё равно применяется.
// Возвращает false, если пакет проигнорирован.
func (rm *RenderMirror) Apply(b Batch) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if b.ToVersion <= rm.version {
		return false
	}
	if b.FromVersion > rm.version+1 {
		rm.gaps++
	}
	for _, p := range b.Delta.Left {
		delete(rm.exposed, p)
	}
	for _, p := range b.Delta.Entered {
		rm.exposed[p] = struct{}{}
	}
	rm.version = b.ToVersion
	rm.batches++
	return true
}

// Version последняя применённая версия мира
func (rm *RenderMirror) Version() uint64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.version
}

// Len число открытых позиций в зеркале
func (rm *RenderMirror) Len() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.exposed)
}

// Gaps число обнаруженных пропусков версий
func (rm *RenderMirror) Gaps() uint64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.gaps
}

// Batches число применённых пакетов
func (rm *RenderMirror) Batches() uint64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.batches
}

// Exposed возвращает отсортированную копию множества
func (rm *RenderMirror) Exposed() []vec.Vec3 {
	rm.mu.RLock()
	out := make([]vec.Vec3, 0, len(rm.exposed))
	for p := range rm.exposed {
		out = append(out, p)
	}
	rm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

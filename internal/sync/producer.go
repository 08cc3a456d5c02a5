package sync

import (
	"sync/atomic"

	"github.com/annel0/voxel-world/internal/world"
)

// SyncProducer подключается к миру как DeltaSink и передаёт изменения BatchManager'у.
// Неприменённые команды тоже учитываются, чтобы диапазоны версий в пакетах шли без дыр.
type SyncProducer struct {
	bm      *BatchManager
	stopped atomic.Bool
}

func NewSyncProducer(bm *BatchManager) *SyncProducer {
	return &SyncProducer{bm: bm}
}

// OnChange реализует world.DeltaSink
func (sp *SyncProducer) OnChange(ch world.Change) {
	if sp.stopped.Load() {
		return
	}
	sp.bm.Add(ch.Delta, ch.Version)
}

func (sp *SyncProducer) Stop() { sp.stopped.Store(true) }

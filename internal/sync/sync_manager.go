package sync

import (
	"fmt"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
)

// SyncManager координирует работу всех компонентов синхронизации:
// BatchManager, SyncProducer, SyncConsumer.
type SyncManager struct {
	bm       *BatchManager
	producer *SyncProducer
	consumer *SyncConsumer
	mirror   *RenderMirror
	log      *logging.Logger
}

type SyncConfig struct {
	Source     string
	Bus        eventbus.EventBus
	BatchSize  int
	FlushEvery time.Duration
	UseZstd    bool
	// Mirror включает локальное зеркало рендера, подписанное на пакеты
	Mirror bool
	// Initial - открытое множество мира на момент подключения, InitialVersion - его версия
	Initial        []vec.Vec3
	InitialVersion uint64
	Logger         *logging.Logger
}

func NewSyncManager(cfg SyncConfig) (*SyncManager, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	var encoder DeltaEncoder
	if cfg.UseZstd {
		enc, err := NewZstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		encoder = enc
		log.Info("🔄 SyncManager: используется zstd-компрессия")
	} else {
		encoder = NewPassthroughEncoder()
		log.Info("🔄 SyncManager: компрессия отключена")
	}

	sm := &SyncManager{log: log}
	if cfg.Mirror {
		sm.mirror = NewRenderMirror(cfg.Initial, cfg.InitialVersion)
		consumer, err := NewSyncConsumer(cfg.Bus, sm.mirror, log)
		if err != nil {
			return nil, err
		}
		sm.consumer = consumer
	}

	sm.bm = NewBatchManager(cfg.Bus, cfg.Source, cfg.BatchSize, cfg.FlushEvery, encoder, log)
	sm.producer = NewSyncProducer(sm.bm)

	log.Info("✅ SyncManager инициализирован: source=%s, batch=%d, flush=%v, mirror=%v",
		cfg.Source, cfg.BatchSize, cfg.FlushEvery, cfg.Mirror)
	return sm, nil
}

// Sink возвращает подписчика, которого нужно передать в world.Options.Sinks
func (sm *SyncManager) Sink() world.DeltaSink { return sm.producer }

// Mirror возвращает зеркало рендера или nil, если оно выключено
func (sm *SyncManager) Mirror() *RenderMirror { return sm.mirror }

// Flush немедленно отправляет накопленное
func (sm *SyncManager) Flush() {
	sm.bm.kickFlush()
}

func (sm *SyncManager) Stop() {
	sm.producer.Stop()
	sm.bm.Stop()
	if sm.consumer != nil {
		sm.consumer.Stop()
	}
	sm.log.Info("🔄 SyncManager остановлен")
}

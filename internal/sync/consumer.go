package sync

import (
	"context"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
)

// SyncConsumer слушает ExposureBatch сообщения и применяет их к зеркалу рендера.
type SyncConsumer struct {
	sub     eventbus.Subscription
	mirror  *RenderMirror
	log     *logging.Logger
	decoded map[string]DeltaEncoder
}

func NewSyncConsumer(bus eventbus.EventBus, mirror *RenderMirror, log *logging.Logger) (*SyncConsumer, error) {
	if log == nil {
		log = logging.Default()
	}
	sc := &SyncConsumer{mirror: mirror, log: log, decoded: make(map[string]DeltaEncoder)}
	sub, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.TypeExposureBatch}}, sc.handle)
	if err != nil {
		return nil, err
	}
	sc.sub = sub
	return sc, nil
}

// encoder кэширует кодировщики по имени; handle вызывается последовательно
func (sc *SyncConsumer) encoder(name string) (DeltaEncoder, error) {
	if enc, ok := sc.decoded[name]; ok {
		return enc, nil
	}
	enc, err := EncoderFor(name)
	if err != nil {
		return nil, err
	}
	sc.decoded[name] = enc
	return enc, nil
}

func (sc *SyncConsumer) handle(ctx context.Context, ev *eventbus.Envelope) {
	enc, err := sc.encoder(ev.Metadata["encoding"])
	if err != nil {
		sc.log.Warn("SyncConsumer: %v (event %s)", err, ev.ID)
		return
	}

	b, err := enc.Decode(ev.Payload)
	if err != nil {
		sc.log.Warn("SyncConsumer decode error: %v (event %s)", err, ev.ID)
		return
	}

	gaps := sc.mirror.Gaps()
	if !sc.mirror.Apply(b) {
		sc.log.Debug("SyncConsumer: устаревший пакет %d..%d пропущен", b.FromVersion, b.ToVersion)
		return
	}
	if sc.mirror.Gaps() != gaps {
		sc.log.Warn("SyncConsumer: пропуск версий перед %d, зеркало может расходиться с миром", b.FromVersion)
	}
	sc.log.Trace("SyncConsumer: пакет %d..%d от %s, +%d -%d", b.FromVersion, b.ToVersion, ev.Source, len(b.Delta.Entered), len(b.Delta.Left))
}

func (sc *SyncConsumer) Stop() { sc.sub.Unsubscribe() }

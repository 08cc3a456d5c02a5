package eventbus

import (
	"context"

	"github.com/annel0/voxel-world/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог на уровне DEBUG.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus, log *logging.Logger) (Subscription, error) {
	if log == nil {
		log = logging.Default()
	}
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		log.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}

package metrics

import (
	"github.com/annel0/voxel-world/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

// WorldMetrics реализует world.Observer поверх Prometheus.
//
// Метрики:
// * <ns>_world_blocks - gauge, число блоков в карте
// * <ns>_world_exposed_blocks - gauge, размер открытого множества
// * <ns>_world_mutations_total{op,result} - counter, result = applied|noop
// * <ns>_world_raycasts_total{result} - counter, result = hit|miss
type WorldMetrics struct {
	blocks    prometheus.Gauge
	exposed   prometheus.Gauge
	mutations *prometheus.CounterVec
	raycasts  *prometheus.CounterVec
}

var _ world.Observer = (*WorldMetrics)(nil)

// NewWorldMetrics создаёт метрики и регистрирует их в reg
func NewWorldMetrics(namespace string, reg prometheus.Registerer) (*WorldMetrics, error) {
	wm := &WorldMetrics{
		blocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "blocks",
			Help:      "Число блоков в карте.",
		}),
		exposed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "exposed_blocks",
			Help:      "Число блоков, у которых открыта хотя бы одна грань.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "mutations_total",
			Help:      "Команды изменения карты по типу и результату.",
		}, []string{"op", "result"}),
		raycasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "raycasts_total",
			Help:      "Рейкасты по результату.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{wm.blocks, wm.exposed, wm.mutations, wm.raycasts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return wm, nil
}

func (wm *WorldMetrics) ObserveMutation(op world.EventType, applied bool) {
	result := "noop"
	if applied {
		result = "applied"
	}
	wm.mutations.WithLabelValues(op.String(), result).Inc()
}

func (wm *WorldMetrics) ObserveRaycast(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	wm.raycasts.WithLabelValues(result).Inc()
}

func (wm *WorldMetrics) ObserveSize(blocks, exposed int) {
	wm.blocks.Set(float64(blocks))
	wm.exposed.Set(float64(exposed))
}

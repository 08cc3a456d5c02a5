package world

import (
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// EventType определяет тип изменения мира
type EventType uint8

const (
	EventTypeBlockAdded   EventType = iota + 1 // Установка блока
	EventTypeBlockRemoved                      // Удаление блока
	EventTypePopulate                          // Массовое заполнение генератором
)

// String возвращает имя события для логов и меток метрик
func (e EventType) String() string {
	switch e {
	case EventTypeBlockAdded:
		return "add"
	case EventTypeBlockRemoved:
		return "remove"
	case EventTypePopulate:
		return "populate"
	default:
		return "unknown"
	}
}

// MarshalText кодирует тип события его именем
func (e EventType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText разбирает имя события
func (e *EventType) UnmarshalText(text []byte) error {
	for t := EventTypeBlockAdded; t <= EventTypePopulate; t++ {
		if t.String() == string(text) {
			*e = t
			return nil
		}
	}
	return fmt.Errorf("неизвестный тип события %q", text)
}

// Change - результат одной применённой команды мира.
// Рассылается подписчикам (DeltaSink) в порядке применения.
type Change struct {
	Type     EventType  `json:"type"`
	Position vec.Vec3   `json:"position"`
	Block    block.Type `json:"block,omitempty"`
	Applied  bool       `json:"applied"` // false, если команда оказалась no-op
	Delta    Delta      `json:"delta"`
	Version  uint64     `json:"version"`
}

// DeltaSink получает изменения мира. Вызывается из горутины мира,
// поэтому реализация не должна блокироваться.
type DeltaSink interface {
	OnChange(ch Change)
}

// SinkFunc адаптирует функцию к DeltaSink
type SinkFunc func(ch Change)

// OnChange вызывает f
func (f SinkFunc) OnChange(ch Change) { f(ch) }

// Observer получает счётчики для метрик. ObserveRaycast может вызываться
// из читающих горутин, реализация должна быть потокобезопасной.
type Observer interface {
	ObserveMutation(op EventType, applied bool)
	ObserveRaycast(hit bool)
	ObserveSize(blocks, exposed int)
}

type nopObserver struct{}

func (nopObserver) ObserveMutation(EventType, bool) {}
func (nopObserver) ObserveRaycast(bool)             {}
func (nopObserver) ObserveSize(int, int)            {}

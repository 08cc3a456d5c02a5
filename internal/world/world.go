package world

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrStopped возвращается командами после остановки мира
var ErrStopped = errors.New("world stopped")

// Action - действие игрока по результату рейкаста
type Action string

const (
	ActionBreak Action = "break"
	ActionPlace Action = "place"
)

// InteractRequest описывает взаимодействие: луч из глаз игрока и действие
type InteractRequest struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
	Action Action
	Block  block.Type // тип для ActionPlace
}

// InteractResult - итог взаимодействия
type InteractResult struct {
	Hit    Hit    `json:"hit"`
	Found  bool   `json:"found"`
	Change Change `json:"change"`
}

// Options настраивает World
type Options struct {
	Raycaster Raycaster
	Observer  Observer
	Logger    *logging.Logger
	QueueSize int
	Sinks     []DeltaSink
	// StartVersion - версия загруженной карты; первая команда получит StartVersion+1
	StartVersion uint64
}

type command struct {
	apply func(m *VoxelMap) (Change, map[vec.Vec3]struct{})
	reply chan Change
}

// World - единственный владелец VoxelMap. Все мутации выполняются одной горутиной
// (Run) по очереди команд; читатели получают неизменяемые снапшоты через
// атомарный указатель и никогда не блокируются.
type World struct {
	m        *VoxelMap
	cmds     chan command
	snap     atomic.Pointer[Snapshot]
	version  uint64
	caster   Raycaster
	observer Observer
	log      *logging.Logger
	sinks    []DeltaSink
	running  atomic.Bool
	done     chan struct{}
}

// NewWorld создаёт мир поверх карты m (nil - пустая карта).
// Подписчиков нужно передать в Options до запуска Run.
func NewWorld(m *VoxelMap, opts Options) *World {
	if m == nil {
		m = NewVoxelMap()
	}
	if opts.Raycaster == nil {
		opts.Raycaster = NewMarchRaycaster(DefaultRayStep, DefaultRayMaxDistance)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	w := &World{
		m:        m,
		cmds:     make(chan command, opts.QueueSize),
		caster:   opts.Raycaster,
		observer: opts.Observer,
		log:      opts.Logger,
		sinks:    opts.Sinks,
		version:  opts.StartVersion,
		done:     make(chan struct{}),
	}
	w.snap.Store(NewSnapshot(m, w.version))
	w.observer.ObserveSize(m.Len(), m.ExposedCount())
	return w
}

// Run обрабатывает команды до отмены ctx. Блокирующий вызов.
func (w *World) Run(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.log.Warn("World.Run вызван повторно, игнорируем")
		return
	}
	defer close(w.done)

	w.log.Info("🌍 Мир запущен: блоков=%d, открытых=%d", w.m.Len(), w.m.ExposedCount())
	for {
		select {
		case <-ctx.Done():
			w.log.Info("🌍 Мир остановлен (версия %d)", w.version)
			return
		case cmd := <-w.cmds:
			cmd.reply <- w.execute(cmd)
		}
	}
}

// Done закрывается после выхода из Run
func (w *World) Done() <-chan struct{} {
	return w.done
}

func (w *World) execute(cmd command) Change {
	ch, touched := cmd.apply(w.m)
	w.version++
	ch.Version = w.version

	prev := w.snap.Load()
	if touched == nil {
		w.snap.Store(NewSnapshot(w.m, w.version))
	} else {
		w.snap.Store(prev.derive(w.m, touched, w.version))
	}

	w.observer.ObserveMutation(ch.Type, ch.Applied)
	w.observer.ObserveSize(w.m.Len(), w.m.ExposedCount())
	if ch.Applied {
		w.log.Debug("%s %v %s: +%d -%d открытых", ch.Type, ch.Position, ch.Block, len(ch.Delta.Entered), len(ch.Delta.Left))
	}
	for _, s := range w.sinks {
		s.OnChange(ch)
	}
	return ch
}

// submit ставит команду в очередь и ждёт результат
func (w *World) submit(ctx context.Context, apply func(m *VoxelMap) (Change, map[vec.Vec3]struct{})) (Change, error) {
	cmd := command{apply: apply, reply: make(chan Change, 1)}
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return Change{}, ErrStopped
	case <-ctx.Done():
		return Change{}, ctx.Err()
	}
	select {
	case ch := <-cmd.reply:
		return ch, nil
	case <-w.done:
		// Команда могла успеть выполниться перед остановкой
		select {
		case ch := <-cmd.reply:
			return ch, nil
		default:
			return Change{}, ErrStopped
		}
	case <-ctx.Done():
		return Change{}, ctx.Err()
	}
}

// Add ставит блок; если позиция занята, Change.Applied == false
func (w *World) Add(ctx context.Context, pos vec.Vec3, t block.Type) (Change, error) {
	if !t.Valid() {
		return Change{}, fmt.Errorf("%w: %d", block.ErrUnknownBlock, uint8(t))
	}
	return w.submit(ctx, func(m *VoxelMap) (Change, map[vec.Vec3]struct{}) {
		return addChange(m, pos, t)
	})
}

// Remove удаляет блок; для пустой позиции Change.Applied == false
func (w *World) Remove(ctx context.Context, pos vec.Vec3) (Change, error) {
	return w.submit(ctx, func(m *VoxelMap) (Change, map[vec.Vec3]struct{}) {
		return removeChange(m, pos)
	})
}

// Populate заполняет мир генератором одной командой
func (w *World) Populate(ctx context.Context, gen Generator) (Change, error) {
	return w.submit(ctx, func(m *VoxelMap) (Change, map[vec.Vec3]struct{}) {
		before := m.Len()
		d := Populate(m, gen)
		return Change{
			Type:    EventTypePopulate,
			Applied: m.Len() != before,
			Delta:   d,
		}, nil
	})
}

// Interact выполняет рейкаст и действие атомарно относительно других команд:
// луч бросается по живой карте внутри горутины мира.
func (w *World) Interact(ctx context.Context, req InteractRequest) (InteractResult, error) {
	switch req.Action {
	case ActionBreak:
	case ActionPlace:
		if !req.Block.Valid() {
			return InteractResult{}, fmt.Errorf("%w: %d", block.ErrUnknownBlock, uint8(req.Block))
		}
	default:
		return InteractResult{}, fmt.Errorf("неизвестное действие %q", req.Action)
	}

	var res InteractResult
	ch, err := w.submit(ctx, func(m *VoxelMap) (Change, map[vec.Vec3]struct{}) {
		hit, ok := w.caster.Cast(m, req.Origin, req.Dir)
		w.observer.ObserveRaycast(ok)
		res.Hit, res.Found = hit, ok
		if !ok {
			miss := Change{Type: EventTypeBlockRemoved}
			if req.Action == ActionPlace {
				miss = Change{Type: EventTypeBlockAdded, Block: req.Block}
			}
			return miss, map[vec.Vec3]struct{}{}
		}
		if req.Action == ActionBreak {
			return removeChange(m, hit.Block)
		}
		return addChange(m, hit.Adjacent, req.Block)
	})
	if err != nil {
		return InteractResult{}, err
	}
	res.Change = ch
	return res, nil
}

// Break ломает блок, в который смотрит луч
func (w *World) Break(ctx context.Context, origin, dir mgl64.Vec3) (InteractResult, error) {
	return w.Interact(ctx, InteractRequest{Origin: origin, Dir: dir, Action: ActionBreak})
}

// Place ставит блок t на грань, в которую смотрит луч
func (w *World) Place(ctx context.Context, origin, dir mgl64.Vec3, t block.Type) (InteractResult, error) {
	return w.Interact(ctx, InteractRequest{Origin: origin, Dir: dir, Action: ActionPlace, Block: t})
}

// Snapshot возвращает текущий неизменяемый снапшот
func (w *World) Snapshot() *Snapshot {
	return w.snap.Load()
}

// Raycast бросает луч по текущему снапшоту без участия горутины мира
func (w *World) Raycast(origin, dir mgl64.Vec3) (Hit, bool) {
	return w.RaycastOn(w.snap.Load(), origin, dir)
}

// RaycastOn бросает луч по переданному снапшоту, чтобы ответ
// (попадание, тип блока, версия) был согласован с одним состоянием мира
func (w *World) RaycastOn(snap *Snapshot, origin, dir mgl64.Vec3) (Hit, bool) {
	hit, ok := w.caster.Cast(snap, origin, dir)
	w.observer.ObserveRaycast(ok)
	return hit, ok
}

func addChange(m *VoxelMap, pos vec.Vec3, t block.Type) (Change, map[vec.Vec3]struct{}) {
	applied := !m.IsOccupied(pos)
	d := m.Add(pos, t)
	return Change{
		Type:     EventTypeBlockAdded,
		Position: pos,
		Block:    t,
		Applied:  applied,
		Delta:    d,
	}, touchedBy(pos, d)
}

func removeChange(m *VoxelMap, pos vec.Vec3) (Change, map[vec.Vec3]struct{}) {
	t, applied := m.Block(pos)
	d := m.Remove(pos)
	return Change{
		Type:     EventTypeBlockRemoved,
		Position: pos,
		Block:    t,
		Applied:  applied,
		Delta:    d,
	}, touchedBy(pos, d)
}

func touchedBy(pos vec.Vec3, d Delta) map[vec.Vec3]struct{} {
	touched := make(map[vec.Vec3]struct{}, 1+d.Size())
	touched[pos] = struct{}{}
	for _, p := range d.Entered {
		touched[p] = struct{}{}
	}
	for _, p := range d.Left {
		touched[p] = struct{}{}
	}
	return touched
}

package world

import (
	"sort"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// column - неизменяемое содержимое одной колонки чанка в снапшоте
type column struct {
	blocks  map[vec.Vec3]block.Type
	exposed map[vec.Vec3]struct{}
}

func (c *column) clone() *column {
	nc := &column{
		blocks:  make(map[vec.Vec3]block.Type, len(c.blocks)),
		exposed: make(map[vec.Vec3]struct{}, len(c.exposed)),
	}
	for p, t := range c.blocks {
		nc.blocks[p] = t
	}
	for p := range c.exposed {
		nc.exposed[p] = struct{}{}
	}
	return nc
}

// Snapshot - неизменяемый срез состояния карты.
// Колонки, которых мутация не коснулась, разделяются с предыдущим снапшотом.
// Читать можно из любого числа горутин без блокировок.
type Snapshot struct {
	version      uint64
	columns      map[vec.Vec2]*column
	blockCount   int
	exposedCount int
}

// NewSnapshot строит снапшот всей карты
func NewSnapshot(m *VoxelMap, version uint64) *Snapshot {
	s := &Snapshot{
		version: version,
		columns: make(map[vec.Vec2]*column),
	}
	for p, t := range m.blocks {
		c := s.columnFor(p.Column())
		c.blocks[p] = t
	}
	for p := range m.exposed {
		c := s.columnFor(p.Column())
		c.exposed[p] = struct{}{}
	}
	s.blockCount = m.Len()
	s.exposedCount = m.ExposedCount()
	return s
}

func (s *Snapshot) columnFor(key vec.Vec2) *column {
	c, ok := s.columns[key]
	if !ok {
		c = &column{
			blocks:  make(map[vec.Vec3]block.Type),
			exposed: make(map[vec.Vec3]struct{}),
		}
		s.columns[key] = c
	}
	return c
}

// derive создаёт следующий снапшот, переписывая только колонки с позициями touched.
// Состояние каждой позиции берётся из m.
func (s *Snapshot) derive(m *VoxelMap, touched map[vec.Vec3]struct{}, version uint64) *Snapshot {
	next := &Snapshot{
		version:      version,
		columns:      make(map[vec.Vec2]*column, len(s.columns)),
		blockCount:   m.Len(),
		exposedCount: m.ExposedCount(),
	}
	for k, c := range s.columns {
		next.columns[k] = c
	}

	cloned := make(map[vec.Vec2]bool)
	for p := range touched {
		key := p.Column()
		if !cloned[key] {
			if old, ok := next.columns[key]; ok {
				next.columns[key] = old.clone()
			} else {
				next.columns[key] = &column{
					blocks:  make(map[vec.Vec3]block.Type),
					exposed: make(map[vec.Vec3]struct{}),
				}
			}
			cloned[key] = true
		}
		c := next.columns[key]

		if t, ok := m.Block(p); ok {
			c.blocks[p] = t
		} else {
			delete(c.blocks, p)
		}
		if m.InExposedSet(p) {
			c.exposed[p] = struct{}{}
		} else {
			delete(c.exposed, p)
		}
	}

	for key := range cloned {
		if len(next.columns[key].blocks) == 0 {
			delete(next.columns, key)
		}
	}
	return next
}

// Version возвращает номер снапшота; растёт с каждой применённой командой
func (s *Snapshot) Version() uint64 { return s.version }

// Len возвращает число блоков
func (s *Snapshot) Len() int { return s.blockCount }

// ExposedCount возвращает число открытых блоков
func (s *Snapshot) ExposedCount() int { return s.exposedCount }

// ColumnCount возвращает число непустых колонок
func (s *Snapshot) ColumnCount() int { return len(s.columns) }

// IsOccupied реализует Occupancy
func (s *Snapshot) IsOccupied(pos vec.Vec3) bool {
	_, ok := s.Block(pos)
	return ok
}

// Block возвращает тип блока в pos
func (s *Snapshot) Block(pos vec.Vec3) (block.Type, bool) {
	c, ok := s.columns[pos.Column()]
	if !ok {
		return block.Air, false
	}
	t, ok := c.blocks[pos]
	return t, ok
}

// IsExposed сообщает, входит ли pos в множество открытых блоков
func (s *Snapshot) IsExposed(pos vec.Vec3) bool {
	c, ok := s.columns[pos.Column()]
	if !ok {
		return false
	}
	_, ok = c.exposed[pos]
	return ok
}

// Exposed возвращает все открытые позиции, отсортированные
func (s *Snapshot) Exposed() []vec.Vec3 {
	out := make([]vec.Vec3, 0, s.exposedCount)
	for _, c := range s.columns {
		for p := range c.exposed {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

// ExposedNear возвращает открытые позиции в квадрате radius по X/Z вокруг center.
// Просматриваются только колонки, пересекающие квадрат.
func (s *Snapshot) ExposedNear(center vec.Vec3, radius int) []vec.Vec3 {
	if radius < 0 {
		return nil
	}
	lo := vec.Vec3{X: center.X - radius, Z: center.Z - radius}.Column()
	hi := vec.Vec3{X: center.X + radius, Z: center.Z + radius}.Column()

	var out []vec.Vec3
	for cx := lo.X; cx <= hi.X; cx++ {
		for cz := lo.Y; cz <= hi.Y; cz++ {
			c, ok := s.columns[vec.Vec2{X: cx, Y: cz}]
			if !ok {
				continue
			}
			for p := range c.exposed {
				if withinXZ(p, center, radius) {
					out = append(out, p)
				}
			}
		}
	}
	sortPositions(out)
	return out
}

// Columns возвращает ключи непустых колонок в стабильном порядке
func (s *Snapshot) Columns() []vec.Vec2 {
	keys := make([]vec.Vec2, 0, len(s.columns))
	for k := range s.columns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}

// ColumnBlocks обходит блоки одной колонки
func (s *Snapshot) ColumnBlocks(key vec.Vec2, fn func(pos vec.Vec3, t block.Type)) {
	c, ok := s.columns[key]
	if !ok {
		return
	}
	for p, t := range c.blocks {
		fn(p, t)
	}
}

// ForEach обходит все блоки снапшота
func (s *Snapshot) ForEach(fn func(pos vec.Vec3, t block.Type)) {
	for _, c := range s.columns {
		for p, t := range c.blocks {
			fn(p, t)
		}
	}
}

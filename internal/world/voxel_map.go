package world

import (
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Occupancy - всё, что нужно рейкастеру и физике: занята ли клетка
type Occupancy interface {
	IsOccupied(pos vec.Vec3) bool
}

// VoxelMap - разреженная карта блоков с производным множеством открытых позиций.
// Позиция присутствует в карте тогда и только тогда, когда в ней есть блок.
// Открытой считается занятая позиция, у которой хотя бы один из шести соседей пуст.
//
// VoxelMap не синхронизирована: владелец один (см. World).
type VoxelMap struct {
	blocks  map[vec.Vec3]block.Type
	exposed map[vec.Vec3]struct{}
}

// NewVoxelMap создаёт пустую карту
func NewVoxelMap() *VoxelMap {
	return &VoxelMap{
		blocks:  make(map[vec.Vec3]block.Type),
		exposed: make(map[vec.Vec3]struct{}),
	}
}

// Add ставит блок в pos. Если позиция уже занята, ничего не происходит:
// выигрывает первый записавший, перезапись не поддерживается.
// Air блоком не является и тоже игнорируется.
func (m *VoxelMap) Add(pos vec.Vec3, t block.Type) Delta {
	var d Delta
	if !t.Valid() {
		return d
	}
	if _, ok := m.blocks[pos]; ok {
		return d
	}
	m.blocks[pos] = t

	if m.IsExposed(pos) {
		m.exposed[pos] = struct{}{}
		d.Entered = append(d.Entered, pos)
	}

	// Соседи могут только закрыться
	for _, n := range pos.Neighbors() {
		if _, ok := m.blocks[n]; !ok {
			continue
		}
		if _, was := m.exposed[n]; was && !m.IsExposed(n) {
			delete(m.exposed, n)
			d.Left = append(d.Left, n)
		}
	}
	return d
}

// Remove убирает блок из pos. Для пустой позиции ничего не делает.
func (m *VoxelMap) Remove(pos vec.Vec3) Delta {
	var d Delta
	if _, ok := m.blocks[pos]; !ok {
		return d
	}
	delete(m.blocks, pos)
	if _, was := m.exposed[pos]; was {
		delete(m.exposed, pos)
		d.Left = append(d.Left, pos)
	}

	// Соседи могут только открыться: pos теперь воздух
	for _, n := range pos.Neighbors() {
		if _, ok := m.blocks[n]; !ok {
			continue
		}
		if _, was := m.exposed[n]; !was {
			m.exposed[n] = struct{}{}
			d.Entered = append(d.Entered, n)
		}
	}
	return d
}

// IsOccupied возвращает true, если в pos есть блок
func (m *VoxelMap) IsOccupied(pos vec.Vec3) bool {
	_, ok := m.blocks[pos]
	return ok
}

// IsExposed вычисляет открытость по текущему содержимому карты (без кэша)
func (m *VoxelMap) IsExposed(pos vec.Vec3) bool {
	if _, ok := m.blocks[pos]; !ok {
		return false
	}
	for _, n := range pos.Neighbors() {
		if _, ok := m.blocks[n]; !ok {
			return true
		}
	}
	return false
}

// InExposedSet проверяет кэшированное множество открытых блоков
func (m *VoxelMap) InExposedSet(pos vec.Vec3) bool {
	_, ok := m.exposed[pos]
	return ok
}

// Block возвращает тип блока в pos; ok=false для воздуха
func (m *VoxelMap) Block(pos vec.Vec3) (block.Type, bool) {
	t, ok := m.blocks[pos]
	return t, ok
}

// Len возвращает число блоков
func (m *VoxelMap) Len() int {
	return len(m.blocks)
}

// ExposedCount возвращает размер множества открытых блоков
func (m *VoxelMap) ExposedCount() int {
	return len(m.exposed)
}

// Exposed возвращает отсортированный список открытых позиций
func (m *VoxelMap) Exposed() []vec.Vec3 {
	out := make([]vec.Vec3, 0, len(m.exposed))
	for p := range m.exposed {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// ExposedNear возвращает открытые позиции, у которых |x-cx| и |z-cz| не больше radius.
// Высота не ограничивается, как и в дальности прорисовки по колонкам.
func (m *VoxelMap) ExposedNear(center vec.Vec3, radius int) []vec.Vec3 {
	var out []vec.Vec3
	for p := range m.exposed {
		if withinXZ(p, center, radius) {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

// ForEach обходит все блоки в произвольном порядке; fn возвращает false для остановки
func (m *VoxelMap) ForEach(fn func(pos vec.Vec3, t block.Type) bool) {
	for p, t := range m.blocks {
		if !fn(p, t) {
			return
		}
	}
}

// Verify пересчитывает множество открытых блоков с нуля и сверяет с кэшем
func (m *VoxelMap) Verify() error {
	for p := range m.exposed {
		if !m.IsExposed(p) {
			return fmt.Errorf("позиция %v в множестве открытых, но закрыта", p)
		}
	}
	for p := range m.blocks {
		if m.IsExposed(p) && !m.InExposedSet(p) {
			return fmt.Errorf("позиция %v открыта, но отсутствует в множестве", p)
		}
	}
	return nil
}

func withinXZ(p, center vec.Vec3, radius int) bool {
	dx := p.X - center.X
	dz := p.Z - center.Z
	return dx >= -radius && dx <= radius && dz >= -radius && dz <= radius
}

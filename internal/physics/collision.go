package physics

import (
	"math"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// BlockHalfSize - половина ребра блока; блок (x,y,z) занимает [x-0.5, x+0.5] по каждой оси
const BlockHalfSize = 0.5

// Occupancy отвечает, занята ли клетка. Реализуется world.VoxelMap и world.Snapshot.
type Occupancy interface {
	IsOccupied(pos vec.Vec3) bool
}

// AABB представляет коллайдер игрока: квадрат Width×Width по X/Z
// и высота Height вверх от ступней
type AABB struct {
	Width  float64
	Height float64
}

// PlayerBox - коллайдер игрока по умолчанию
var PlayerBox = AABB{Width: 0.6, Height: 1.8}

// Bounds возвращает углы коллайдера для позиции ступней
func (b AABB) Bounds(feet mgl64.Vec3) (min, max mgl64.Vec3) {
	hw := b.Width / 2
	min = mgl64.Vec3{feet[0] - hw, feet[1], feet[2] - hw}
	max = mgl64.Vec3{feet[0] + hw, feet[1] + b.Height, feet[2] + hw}
	return min, max
}

// Collides проверяет пересечение коллайдера с блоками мира.
// Перебираются все клетки, которые может задеть коллайдер.
func Collides(occ Occupancy, feet mgl64.Vec3, box AABB) bool {
	min, max := box.Bounds(feet)
	lo := vec.Round(min)
	hi := vec.Round(max)

	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				cell := vec.Vec3{X: x, Y: y, Z: z}
				if !occ.IsOccupied(cell) {
					continue
				}
				if overlapsBlock(min, max, cell) {
					return true
				}
			}
		}
	}
	return false
}

// overlapsBlock - строгая проверка пересечения: касание граней не считается
func overlapsBlock(min, max mgl64.Vec3, cell vec.Vec3) bool {
	c := cell.Center()
	for i := 0; i < 3; i++ {
		if min[i] >= c[i]+BlockHalfSize || max[i] <= c[i]-BlockHalfSize {
			return false
		}
	}
	return true
}

// ResolveMove возвращает to, если там нет столкновения, иначе from.
// Упрощённая модель: выталкивания по оси наименьшего проникновения нет.
func ResolveMove(occ Occupancy, from, to mgl64.Vec3, box AABB) mgl64.Vec3 {
	if Collides(occ, to, box) {
		return from
	}
	return to
}

// ClampXZ удерживает позицию в пределах [-halfExtent, halfExtent] по X и Z
func ClampXZ(pos mgl64.Vec3, halfExtent float64) mgl64.Vec3 {
	if halfExtent < 0 || math.IsNaN(halfExtent) {
		return pos
	}
	pos[0] = mgl64.Clamp(pos[0], -halfExtent, halfExtent)
	pos[2] = mgl64.Clamp(pos[2], -halfExtent, halfExtent)
	return pos
}

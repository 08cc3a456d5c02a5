package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 представляет позицию вокселя в целочисленной сетке
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Направления шести граней в фиксированном порядке: +X, -X, +Y, -Y, +Z, -Z
var FaceOffsets = [6]Vec3{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// Neighbors возвращает шесть соседей по граням
func (v Vec3) Neighbors() [6]Vec3 {
	var out [6]Vec3
	for i, off := range FaceOffsets {
		out[i] = v.Add(off)
	}
	return out
}

// IsFaceAdjacent проверяет, что позиции отличаются ровно на одну грань
func (v Vec3) IsFaceAdjacent(other Vec3) bool {
	d := abs(v.X-other.X) + abs(v.Y-other.Y) + abs(v.Z-other.Z)
	return d == 1
}

// Column возвращает координаты колонки чанка (X/Z), в которую попадает позиция
func (v Vec3) Column() Vec2 {
	return Vec2{X: floorDiv(v.X, ChunkSize), Y: floorDiv(v.Z, ChunkSize)}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Center возвращает центр вокселя в мировых координатах
func (v Vec3) Center() mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X), float64(v.Y), float64(v.Z)}
}

// Less задаёт порядок X, затем Y, затем Z (для стабильной сортировки)
func (v Vec3) Less(other Vec3) bool {
	if v.X != other.X {
		return v.X < other.X
	}
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	return v.Z < other.Z
}

// Round округляет мировую точку до ближайшего вокселя.
// Половины округляются к чётному (банковское округление): 2.5 -> 2, 1.5 -> 2, -0.5 -> 0.
func Round(p mgl64.Vec3) Vec3 {
	return Vec3{
		X: int(math.RoundToEven(p.X())),
		Y: int(math.RoundToEven(p.Y())),
		Z: int(math.RoundToEven(p.Z())),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

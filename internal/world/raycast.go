package world

import (
	"math"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultRayStep        = 0.1
	DefaultRayMaxDistance = 10.0
)

// Hit - результат попадания луча: первый занятый воксель и пустая клетка перед ним
type Hit struct {
	Block    vec.Vec3 `json:"block"`
	Adjacent vec.Vec3 `json:"adjacent"`
	Distance float64  `json:"distance"`
}

// Raycaster ищет первый занятый воксель вдоль луча.
// Нулевое или NaN направление всегда даёт "нет попадания".
type Raycaster interface {
	Cast(occ Occupancy, origin, dir mgl64.Vec3) (Hit, bool)
}

// MarchRaycaster шагает по лучу с фиксированным шагом и округляет позицию
// до ближайшего вокселя (vec.Round). Это эвристика: крупный шаг может
// проскочить тонкие детали или указать не ту грань.
// Направление используется как есть, нормализует вызывающий.
type MarchRaycaster struct {
	Step        float64
	MaxDistance float64
}

// NewMarchRaycaster создаёт рейкастер; неположительные значения заменяются умолчаниями
func NewMarchRaycaster(step, maxDistance float64) MarchRaycaster {
	r := MarchRaycaster{Step: step, MaxDistance: maxDistance}
	if r.Step <= 0 {
		r.Step = DefaultRayStep
	}
	if r.MaxDistance <= 0 {
		r.MaxDistance = DefaultRayMaxDistance
	}
	return r
}

// Cast выполняет не более int(MaxDistance/Step) шагов.
// Adjacent - округлённая позиция на шаг назад; если луч начинается внутри блока,
// Adjacent может совпасть с Block.
func (r MarchRaycaster) Cast(occ Occupancy, origin, dir mgl64.Vec3) (Hit, bool) {
	if !validDirection(dir) || r.Step <= 0 {
		return Hit{}, false
	}
	step := dir.Mul(r.Step)
	steps := int(r.MaxDistance / r.Step)
	cur := origin
	for i := 0; i < steps; i++ {
		cell := vec.Round(cur)
		if occ.IsOccupied(cell) {
			return Hit{
				Block:    cell,
				Adjacent: vec.Round(cur.Sub(step)),
				Distance: float64(i) * step.Len(),
			}, true
		}
		cur = cur.Add(step)
	}
	return Hit{}, false
}

// GridRaycaster - точный обход сетки (Amanatides–Woo) по тем же клеткам,
// что и у MarchRaycaster: клетка c покрывает [c-0.5, c+0.5) по каждой оси.
// Adjacent - предыдущая пройденная клетка, всегда смежная по грани.
type GridRaycaster struct {
	MaxDistance float64
}

// NewGridRaycaster создаёт точный рейкастер
func NewGridRaycaster(maxDistance float64) GridRaycaster {
	if maxDistance <= 0 {
		maxDistance = DefaultRayMaxDistance
	}
	return GridRaycaster{MaxDistance: maxDistance}
}

// Cast обходит клетки в порядке пересечения лучом до MaxDistance включительно
func (r GridRaycaster) Cast(occ Occupancy, origin, dir mgl64.Vec3) (Hit, bool) {
	if !validDirection(dir) || !finite(origin) {
		return Hit{}, false
	}
	d := dir.Normalize()
	s := origin.Add(mgl64.Vec3{0.5, 0.5, 0.5})

	var (
		cell   [3]int
		stepI  [3]int
		tMax   [3]float64
		tDelta [3]float64
	)
	for i := 0; i < 3; i++ {
		f := math.Floor(s[i])
		cell[i] = int(f)
		switch {
		case d[i] > 0:
			stepI[i] = 1
			tMax[i] = (f + 1 - s[i]) / d[i]
			tDelta[i] = 1 / d[i]
		case d[i] < 0:
			stepI[i] = -1
			tMax[i] = (s[i] - f) / -d[i]
			tDelta[i] = -1 / d[i]
		default:
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	cur := vec.Vec3{X: cell[0], Y: cell[1], Z: cell[2]}
	prev := cur
	t := 0.0
	for {
		if occ.IsOccupied(cur) {
			return Hit{Block: cur, Adjacent: prev, Distance: t}, true
		}
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		if tMax[axis] > r.MaxDistance {
			return Hit{}, false
		}
		t = tMax[axis]
		tMax[axis] += tDelta[axis]
		cell[axis] += stepI[axis]
		prev = cur
		cur = vec.Vec3{X: cell[0], Y: cell[1], Z: cell[2]}
	}
}

// NewRaycaster выбирает реализацию по имени режима: "grid" или "march" (по умолчанию)
func NewRaycaster(mode string, step, maxDistance float64) Raycaster {
	if mode == "grid" {
		return NewGridRaycaster(maxDistance)
	}
	return NewMarchRaycaster(step, maxDistance)
}

func finite(p mgl64.Vec3) bool {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func validDirection(dir mgl64.Vec3) bool {
	l := dir.Len()
	return l > 0 && !math.IsNaN(l) && !math.IsInf(l, 0)
}

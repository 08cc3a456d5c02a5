package world

import (
	"sort"

	"github.com/annel0/voxel-world/internal/vec"
)

// Delta описывает изменение множества открытых блоков после мутации.
// Рендер добавляет примитивы для Entered и удаляет для Left.
type Delta struct {
	Entered []vec.Vec3 `json:"entered,omitempty"`
	Left    []vec.Vec3 `json:"left,omitempty"`
}

// Empty возвращает true, если множество открытых блоков не изменилось
func (d Delta) Empty() bool {
	return len(d.Entered) == 0 && len(d.Left) == 0
}

// Size возвращает общее число изменённых позиций
func (d Delta) Size() int {
	return len(d.Entered) + len(d.Left)
}

// Merge объединяет последовательные дельты в одну чистую дельту.
// Позиция, вошедшая и затем покинувшая множество (или наоборот), из результата исчезает.
func (d Delta) Merge(next Delta) Delta {
	var acc DeltaAccumulator
	acc.Add(d)
	acc.Add(next)
	return acc.Result()
}

// DeltaAccumulator копит чистое изменение множества открытых блоков
// для последовательности дельт. Нулевое значение готово к работе.
type DeltaAccumulator struct {
	net map[vec.Vec3]int8
}

// Add учитывает очередную дельту
func (a *DeltaAccumulator) Add(d Delta) {
	if d.Empty() {
		return
	}
	if a.net == nil {
		a.net = make(map[vec.Vec3]int8, d.Size())
	}
	for _, p := range d.Left {
		a.bump(p, -1)
	}
	for _, p := range d.Entered {
		a.bump(p, +1)
	}
}

func (a *DeltaAccumulator) bump(p vec.Vec3, by int8) {
	v := a.net[p] + by
	if v == 0 {
		delete(a.net, p)
		return
	}
	a.net[p] = v
}

// Len возвращает число позиций с ненулевым чистым изменением
func (a *DeltaAccumulator) Len() int {
	return len(a.net)
}

// Result возвращает отсортированную чистую дельту
func (a *DeltaAccumulator) Result() Delta {
	var out Delta
	for p, v := range a.net {
		if v > 0 {
			out.Entered = append(out.Entered, p)
		} else {
			out.Left = append(out.Left, p)
		}
	}
	sortPositions(out.Entered)
	sortPositions(out.Left)
	return out
}

// Reset очищает накопленное состояние
func (a *DeltaAccumulator) Reset() {
	a.net = nil
}

func sortPositions(ps []vec.Vec3) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}

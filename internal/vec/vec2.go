package vec

// ChunkSize - ширина колонки чанка по X и Z
const ChunkSize = 16

// Vec2 представляет координаты колонки чанка (X, Z мира хранятся в X, Y)
type Vec2 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Contains проверяет, лежит ли позиция в этой колонке
func (v Vec2) Contains(p Vec3) bool {
	return p.Column() == v
}

// floorDiv делит с округлением вниз, чтобы -1 попадал в колонку -1, а не 0
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

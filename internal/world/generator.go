package world

import (
	"math/rand"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Generator производит пары (позиция, тип блока) для первичного заполнения мира.
// Алгоритм генерации для карты - чёрный ящик.
type Generator interface {
	Generate(emit func(pos vec.Vec3, t block.Type))
}

// GeneratorFunc адаптирует функцию к интерфейсу Generator
type GeneratorFunc func(emit func(pos vec.Vec3, t block.Type))

// Generate вызывает f
func (f GeneratorFunc) Generate(emit func(pos vec.Vec3, t block.Type)) { f(emit) }

// FlatGenerator кладёт слой травы на y=-1 и слой камня на y=-2
// в квадрате [-HalfExtent, HalfExtent] по X и Z
type FlatGenerator struct {
	HalfExtent int
}

// Generate реализует Generator
func (g FlatGenerator) Generate(emit func(pos vec.Vec3, t block.Type)) {
	h := g.HalfExtent
	for x := -h; x <= h; x++ {
		for z := -h; z <= h; z++ {
			emit(vec.Vec3{X: x, Y: -1, Z: z}, block.Grass)
			emit(vec.Vec3{X: x, Y: -2, Z: z}, block.Stone)
		}
	}
}

// HillsGenerator добавляет поверх плоского мира холмы: диски радиуса 3..6,
// уложенные в 2..5 слоёв из травы, камня и песка. Детерминирован по Seed.
type HillsGenerator struct {
	HalfExtent int
	Count      int
	Seed       int64
}

var hillBlocks = [...]block.Type{block.Grass, block.Stone, block.Sand}

// Generate реализует Generator
func (g HillsGenerator) Generate(emit func(pos vec.Vec3, t block.Type)) {
	rng := rand.New(rand.NewSource(g.Seed))
	margin := g.HalfExtent - 5
	if margin < 0 {
		margin = 0
	}

	for i := 0; i < g.Count; i++ {
		cx := randRange(rng, -margin, margin)
		cz := randRange(rng, -margin, margin)
		height := randRange(rng, 2, 5)
		radius := randRange(rng, 3, 6)

		for y := 0; y < height; y++ {
			for dx := -radius; dx <= radius; dx++ {
				for dz := -radius; dz <= radius; dz++ {
					if dx*dx+dz*dz > radius*radius {
						continue
					}
					emit(vec.Vec3{X: cx + dx, Y: y, Z: cz + dz}, hillBlocks[rng.Intn(len(hillBlocks))])
				}
			}
		}
	}
}

// Compose выполняет генераторы по очереди
func Compose(gens ...Generator) Generator {
	return GeneratorFunc(func(emit func(pos vec.Vec3, t block.Type)) {
		for _, g := range gens {
			g.Generate(emit)
		}
	})
}

// Populate заполняет карту через Add и возвращает чистую дельту
func Populate(m *VoxelMap, gen Generator) Delta {
	var acc DeltaAccumulator
	gen.Generate(func(pos vec.Vec3, t block.Type) {
		acc.Add(m.Add(pos, t))
	})
	return acc.Result()
}

// randRange возвращает случайное число в [lo, hi]
func randRange(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

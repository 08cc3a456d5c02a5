package world

import (
	"testing"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatGeneratorLayers(t *testing.T) {
	m := NewVoxelMap()
	d := Populate(m, FlatGenerator{HalfExtent: 3})

	assert.Equal(t, 2*7*7, m.Len())
	top, ok := m.Block(vec.Vec3{X: 3, Y: -1, Z: -3})
	require.True(t, ok)
	assert.Equal(t, block.Grass, top)
	bottom, _ := m.Block(vec.Vec3{Y: -2})
	assert.Equal(t, block.Stone, bottom)

	// Двухслойная плита: открыты все блоки
	assert.Equal(t, m.Len(), m.ExposedCount())
	assert.Len(t, d.Entered, m.ExposedCount())
	assert.Empty(t, d.Left)
}

func TestHillsGeneratorIsDeterministic(t *testing.T) {
	gen := HillsGenerator{HalfExtent: 30, Count: 20, Seed: 42}

	m1 := NewVoxelMap()
	Populate(m1, gen)
	m2 := NewVoxelMap()
	Populate(m2, gen)

	assert.Equal(t, m1.Len(), m2.Len())
	assert.Equal(t, m1.Exposed(), m2.Exposed())
	m1.ForEach(func(p vec.Vec3, bt block.Type) bool {
		other, ok := m2.Block(p)
		assert.True(t, ok)
		assert.Equal(t, bt, other)
		assert.GreaterOrEqual(t, p.Y, 0)
		assert.Less(t, p.Y, 5)
		return true
	})
	require.NoError(t, m1.Verify())
}

func TestHillsGeneratorSmallExtent(t *testing.T) {
	m := NewVoxelMap()
	Populate(m, HillsGenerator{HalfExtent: 2, Count: 1, Seed: 1})
	assert.Greater(t, m.Len(), 0)
}

func TestComposeFlatAndHills(t *testing.T) {
	m := NewVoxelMap()
	d := Populate(m, Compose(FlatGenerator{HalfExtent: 30}, HillsGenerator{HalfExtent: 30, Count: 20, Seed: 9}))
	require.NoError(t, m.Verify())

	// Дельта массового заполнения равна итоговому множеству открытых блоков
	assert.Equal(t, m.Exposed(), d.Entered)
	assert.Empty(t, d.Left)
}

package world

import (
	"testing"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/stretchr/testify/assert"
)

func TestDeltaMergeCancelsOpposites(t *testing.T) {
	a := vec.Vec3{X: 1}
	b := vec.Vec3{Y: 2}

	d := Delta{Entered: []vec.Vec3{a, b}}.Merge(Delta{Left: []vec.Vec3{a}})
	assert.Equal(t, []vec.Vec3{b}, d.Entered)
	assert.Empty(t, d.Left)

	d = Delta{Left: []vec.Vec3{b}}.Merge(Delta{Entered: []vec.Vec3{b}})
	assert.True(t, d.Empty())
}

func TestDeltaAccumulatorMatchesNetChange(t *testing.T) {
	m := NewVoxelMap()
	m.Add(origin, block.Stone)
	before := exposedSet(m)

	var acc DeltaAccumulator
	for _, n := range origin.Neighbors() {
		acc.Add(m.Add(n, block.Stone))
	}
	acc.Add(m.Remove(vec.Vec3{Z: -1}))
	acc.Add(m.Add(vec.Vec3{Z: -1}, block.Sand))

	assertDeltaMatches(t, before, exposedSet(m), acc.Result())
	assert.Equal(t, 7, acc.Len())

	acc.Reset()
	assert.Equal(t, 0, acc.Len())
	assert.True(t, acc.Result().Empty())
}

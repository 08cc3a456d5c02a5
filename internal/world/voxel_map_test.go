package world

import (
	"math/rand"
	"testing"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = vec.Vec3{}

func TestVoxelMap_IsolatedBlockIsExposed(t *testing.T) {
	m := NewVoxelMap()
	for _, p := range []vec.Vec3{{}, {X: -40, Y: 7, Z: 1 << 20}, {X: 3, Y: -3, Z: 3}} {
		d := m.Add(p, block.Stone)
		assert.Equal(t, []vec.Vec3{p}, d.Entered, "одиночный блок должен сразу стать открытым")
		assert.Empty(t, d.Left)
		assert.True(t, m.IsExposed(p))
		assert.True(t, m.InExposedSet(p))
	}
	require.NoError(t, m.Verify())
}

func TestVoxelMap_CenterClosesAfterSixNeighbors(t *testing.T) {
	m := NewVoxelMap()
	m.Add(origin, block.Stone)

	neighbors := origin.Neighbors()
	for i, n := range neighbors {
		d := m.Add(n, block.Dirt)
		assert.Contains(t, d.Entered, n)

		if i < len(neighbors)-1 {
			assert.True(t, m.IsExposed(origin), "центр закрыт слишком рано, соседей: %d", i+1)
			assert.Empty(t, d.Left)
		} else {
			assert.False(t, m.IsExposed(origin), "центр должен закрыться после шестого соседа")
			assert.Equal(t, []vec.Vec3{origin}, d.Left)
		}
		require.NoError(t, m.Verify())
	}

	for _, n := range neighbors {
		assert.True(t, m.IsExposed(n), "у соседа %v пять пустых граней", n)
	}
	assert.Equal(t, 6, m.ExposedCount())
}

func TestVoxelMap_SurroundedBlockNeverExposed(t *testing.T) {
	m := NewVoxelMap()
	for _, n := range origin.Neighbors() {
		m.Add(n, block.Stone)
	}
	d := m.Add(origin, block.Brick)
	assert.Empty(t, d.Entered, "полностью окружённый блок не должен открываться")
	assert.False(t, m.IsExposed(origin))
	assert.False(t, m.InExposedSet(origin))
	require.NoError(t, m.Verify())
}

func TestVoxelMap_AddIsFirstWriterWins(t *testing.T) {
	m := NewVoxelMap()
	first := m.Add(origin, block.Grass)
	exposedBefore := m.Exposed()

	second := m.Add(origin, block.Water)
	assert.False(t, first.Empty())
	assert.True(t, second.Empty())

	got, ok := m.Block(origin)
	require.True(t, ok)
	assert.Equal(t, block.Grass, got, "перезапись не поддерживается")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, exposedBefore, m.Exposed())
}

func TestVoxelMap_AirIsNotStored(t *testing.T) {
	m := NewVoxelMap()
	d := m.Add(origin, block.Air)
	assert.True(t, d.Empty())
	assert.False(t, m.IsOccupied(origin))
}

func TestVoxelMap_RemoveTwiceIsNoop(t *testing.T) {
	m := NewVoxelMap()
	m.Add(origin, block.Stone)
	m.Add(vec.Vec3{X: 1}, block.Stone)

	d := m.Remove(origin)
	assert.Equal(t, []vec.Vec3{origin}, d.Left)
	exposed := m.Exposed()

	again := m.Remove(origin)
	assert.True(t, again.Empty())
	assert.Equal(t, exposed, m.Exposed())
	_, ok := m.Block(origin)
	assert.False(t, ok)
}

func TestVoxelMap_RemoveOpensNeighbors(t *testing.T) {
	m := NewVoxelMap()
	m.Add(origin, block.Stone)
	for _, n := range origin.Neighbors() {
		m.Add(n, block.Stone)
	}
	// Снимаем +X: центр открывается
	d := m.Remove(vec.Vec3{X: 1})
	assert.Equal(t, []vec.Vec3{origin}, d.Entered)
	assert.Equal(t, []vec.Vec3{{X: 1}}, d.Left)
	require.NoError(t, m.Verify())
}

func TestVoxelMap_ExposedNear(t *testing.T) {
	m := NewVoxelMap()
	Populate(m, FlatGenerator{HalfExtent: 10})

	near := m.ExposedNear(origin, 2)
	// Верхний слой травы 5x5 открыт, камень под ним тоже (пустота снизу)
	assert.Len(t, near, 50)
	for _, p := range near {
		assert.LessOrEqual(t, abs(p.X), 2)
		assert.LessOrEqual(t, abs(p.Z), 2)
	}
}

// Свойство: после каждой операции кэш равен полному пересчёту,
// а дельта равна разнице множеств до и после.
func TestVoxelMap_RandomSequencesKeepExposureConsistent(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		m := NewVoxelMap()
		types := block.All()

		for step := 0; step < 600; step++ {
			p := vec.Vec3{X: rng.Intn(6) - 3, Y: rng.Intn(6) - 3, Z: rng.Intn(6) - 3}
			before := exposedSet(m)

			var d Delta
			if rng.Intn(3) == 0 {
				d = m.Remove(p)
			} else {
				d = m.Add(p, types[rng.Intn(len(types))])
			}

			require.NoError(t, m.Verify(), "seed=%d step=%d", seed, step)
			assert.Equal(t, recompute(m), exposedSet(m), "seed=%d step=%d", seed, step)
			assertDeltaMatches(t, before, exposedSet(m), d)
		}
	}
}

func exposedSet(m *VoxelMap) map[vec.Vec3]bool {
	out := make(map[vec.Vec3]bool)
	for _, p := range m.Exposed() {
		out[p] = true
	}
	return out
}

func recompute(m *VoxelMap) map[vec.Vec3]bool {
	out := make(map[vec.Vec3]bool)
	m.ForEach(func(p vec.Vec3, _ block.Type) bool {
		if m.IsOccupied(p) && m.IsExposed(p) {
			out[p] = true
		}
		return true
	})
	return out
}

func assertDeltaMatches(t *testing.T, before, after map[vec.Vec3]bool, d Delta) {
	t.Helper()
	var want Delta
	for p := range after {
		if !before[p] {
			want.Entered = append(want.Entered, p)
		}
	}
	for p := range before {
		if !after[p] {
			want.Left = append(want.Left, p)
		}
	}
	sortPositions(want.Entered)
	sortPositions(want.Left)
	got := Delta{Entered: append([]vec.Vec3(nil), d.Entered...), Left: append([]vec.Vec3(nil), d.Left...)}
	sortPositions(got.Entered)
	sortPositions(got.Left)
	assert.Equal(t, want, got)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

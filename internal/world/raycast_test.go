package world

import (
	"math"
	"math/rand"
	"testing"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleBlockMap(p vec.Vec3) *VoxelMap {
	m := NewVoxelMap()
	m.Add(p, block.Stone)
	return m
}

func TestMarchRaycaster_HitsBlockAlongX(t *testing.T) {
	m := singleBlockMap(vec.Vec3{X: 2})
	r := NewMarchRaycaster(0.1, 10)

	hit, ok := r.Cast(m, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0})
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 2}, hit.Block)
	assert.Equal(t, vec.Vec3{X: 1}, hit.Adjacent)
	assert.InDelta(t, 1.5, hit.Distance, 1e-9)
}

// Старт ровно на половине: 2.5 округляется к 2, блок найден на нулевом шаге
func TestMarchRaycaster_HalfwayOriginRoundsToEven(t *testing.T) {
	m := singleBlockMap(vec.Vec3{X: 2})
	r := NewMarchRaycaster(0.1, 10)

	hit, ok := r.Cast(m, mgl64.Vec3{2.5, 0, 0}, mgl64.Vec3{1, 0, 0})
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 2}, hit.Block)
	assert.Zero(t, hit.Distance)

	// 3.5 округляется к 4: луч начинается за блоком и уходит от него
	_, ok = r.Cast(m, mgl64.Vec3{3.5, 0, 0}, mgl64.Vec3{1, 0, 0})
	assert.False(t, ok)
}

func TestGridRaycaster_HitsBlockAlongX(t *testing.T) {
	m := singleBlockMap(vec.Vec3{X: 2})
	r := NewGridRaycaster(10)

	hit, ok := r.Cast(m, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0})
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 2}, hit.Block)
	assert.Equal(t, vec.Vec3{X: 1}, hit.Adjacent)
	assert.InDelta(t, 1.5, hit.Distance, 1e-9)
}

func TestRaycasters_NoBlocksMeansNoHit(t *testing.T) {
	m := NewVoxelMap()
	// Блок дальше максимальной дистанции
	m.Add(vec.Vec3{X: 50}, block.Stone)

	casters := map[string]Raycaster{
		"march": NewMarchRaycaster(0.1, 10),
		"grid":  NewGridRaycaster(10),
	}
	rng := rand.New(rand.NewSource(7))
	for name, r := range casters {
		for i := 0; i < 100; i++ {
			dir := mgl64.Vec3{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
			if dir.Len() == 0 {
				continue
			}
			_, ok := r.Cast(m, mgl64.Vec3{}, dir.Normalize())
			assert.False(t, ok, "%s: луч %v не должен ничего найти", name, dir)
		}
	}
}

func TestRaycasters_DegenerateDirection(t *testing.T) {
	m := singleBlockMap(vec.Vec3{})
	for _, r := range []Raycaster{NewMarchRaycaster(0, 0), NewGridRaycaster(0)} {
		_, ok := r.Cast(m, mgl64.Vec3{}, mgl64.Vec3{})
		assert.False(t, ok, "нулевое направление - нет попадания")
		_, ok = r.Cast(m, mgl64.Vec3{}, mgl64.Vec3{math.NaN(), 0, 0})
		assert.False(t, ok)
	}
	_, ok := NewGridRaycaster(10).Cast(m, mgl64.Vec3{math.Inf(1), 0, 0}, mgl64.Vec3{1, 0, 0})
	assert.False(t, ok)
}

func TestMarchRaycaster_DefaultsApplied(t *testing.T) {
	r := NewMarchRaycaster(-1, 0)
	assert.Equal(t, DefaultRayStep, r.Step)
	assert.Equal(t, DefaultRayMaxDistance, r.MaxDistance)
}

func TestGridRaycaster_NegativeDirection(t *testing.T) {
	m := singleBlockMap(vec.Vec3{Y: -3})
	hit, ok := NewGridRaycaster(10).Cast(m, mgl64.Vec3{0, 0.2, 0}, mgl64.Vec3{0, -1, 0})
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{Y: -3}, hit.Block)
	assert.Equal(t, vec.Vec3{Y: -2}, hit.Adjacent)
	assert.InDelta(t, 2.7, hit.Distance, 1e-9)
}

func TestGridRaycaster_AdjacentIsAlwaysFaceNeighbor(t *testing.T) {
	m := NewVoxelMap()
	Populate(m, FlatGenerator{HalfExtent: 8})
	r := NewGridRaycaster(20)
	rng := rand.New(rand.NewSource(3))

	hits := 0
	for i := 0; i < 300; i++ {
		start := mgl64.Vec3{rng.Float64()*10 - 5, 3 + rng.Float64()*2, rng.Float64()*10 - 5}
		dir := ViewDirection(rng.Float64()*360, -10-rng.Float64()*80)
		hit, ok := r.Cast(m, start, dir)
		if !ok {
			continue
		}
		hits++
		assert.True(t, hit.Block.IsFaceAdjacent(hit.Adjacent), "луч %v -> %v: %+v", start, dir, hit)
		assert.False(t, m.IsOccupied(hit.Adjacent))
	}
	assert.Greater(t, hits, 0)
}

func TestRaycasters_AgreeOnAxisAlignedRays(t *testing.T) {
	m := NewVoxelMap()
	Populate(m, FlatGenerator{HalfExtent: 4})
	march := NewMarchRaycaster(0.05, 10)
	grid := NewGridRaycaster(10)

	for x := -3; x <= 3; x++ {
		start := mgl64.Vec3{float64(x), 3, 0}
		down := mgl64.Vec3{0, -1, 0}
		h1, ok1 := march.Cast(m, start, down)
		h2, ok2 := grid.Cast(m, start, down)
		require.True(t, ok1)
		require.True(t, ok2)
		assert.Equal(t, h2.Block, h1.Block)
		assert.Equal(t, h2.Adjacent, h1.Adjacent)
	}
}

func TestNewRaycasterSelectsMode(t *testing.T) {
	assert.IsType(t, GridRaycaster{}, NewRaycaster("grid", 0.1, 10))
	assert.IsType(t, MarchRaycaster{}, NewRaycaster("march", 0.1, 10))
	assert.IsType(t, MarchRaycaster{}, NewRaycaster("", 0.1, 10))
}

func TestViewDirection(t *testing.T) {
	d := ViewDirection(0, 0)
	assert.InDelta(t, 1, d.X(), 1e-9)
	assert.InDelta(t, 0, d.Y(), 1e-9)

	d = ViewDirection(90, 0)
	assert.InDelta(t, 1, d.Z(), 1e-9)

	d = ViewDirection(0, 90)
	assert.InDelta(t, 1, d.Y(), 1e-9)
	assert.InDelta(t, 1, ViewDirection(33, -47).Len(), 1e-9)
}

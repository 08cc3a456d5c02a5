package vec

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestNeighborsOrderAndAdjacency(t *testing.T) {
	p := Vec3{X: 3, Y: -2, Z: 7}
	n := p.Neighbors()

	assert.Equal(t, Vec3{X: 4, Y: -2, Z: 7}, n[0])
	assert.Equal(t, Vec3{X: 3, Y: -2, Z: 6}, n[5])
	for _, q := range n {
		assert.True(t, p.IsFaceAdjacent(q), "сосед %v должен быть смежным по грани", q)
	}
	assert.False(t, p.IsFaceAdjacent(p))
	assert.False(t, p.IsFaceAdjacent(Vec3{X: 4, Y: -1, Z: 7}))
}

func TestRoundHalvesToEven(t *testing.T) {
	assert.Equal(t, Vec3{X: 2, Y: -2, Z: 0}, Round(mgl64.Vec3{1.5, -1.5, 0.49}))
	assert.Equal(t, Vec3{X: 2, Y: -2, Z: 0}, Round(mgl64.Vec3{2.5, -2.5, 0.5}))
	assert.Equal(t, Vec3{X: 0, Y: 4, Z: 0}, Round(mgl64.Vec3{-0.5, 3.5, -0.4}))
	assert.Equal(t, Vec3{X: 1, Y: 0, Z: -1}, Round(mgl64.Vec3{1.4, -0.4, -0.6}))
}

func TestColumnFloorsNegativeCoordinates(t *testing.T) {
	assert.Equal(t, Vec2{X: 0, Y: 0}, Vec3{X: 0, Z: 15}.Column())
	assert.Equal(t, Vec2{X: -1, Y: 1}, Vec3{X: -1, Z: 16}.Column())
	assert.Equal(t, Vec2{X: -2, Y: -1}, Vec3{X: -17, Z: -16}.Column())
	assert.True(t, Vec2{X: -1, Y: 0}.Contains(Vec3{X: -16, Y: 99, Z: 3}))
}

package physics

import (
	"testing"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

type cells map[vec.Vec3]bool

func (c cells) IsOccupied(pos vec.Vec3) bool { return c[pos] }

func floor() cells {
	c := cells{}
	for x := -3; x <= 3; x++ {
		for z := -3; z <= 3; z++ {
			c[vec.Vec3{X: x, Y: -1, Z: z}] = true
		}
	}
	return c
}

func TestCollides_StandingOnFloor(t *testing.T) {
	// Верх блоков пола на y=-0.5: ступни ровно на поверхности не пересекают пол
	assert.False(t, Collides(floor(), mgl64.Vec3{0, -0.5, 0}, PlayerBox))
	assert.True(t, Collides(floor(), mgl64.Vec3{0, -0.6, 0}, PlayerBox))
}

func TestCollides_HeadHitsBlock(t *testing.T) {
	c := cells{{X: 0, Y: 2, Z: 0}: true}
	// Коллайдер 1.8 от y=0 доходит до 1.8 > 1.5 (низ блока y=2)
	assert.True(t, Collides(c, mgl64.Vec3{0, 0, 0}, PlayerBox))
	assert.False(t, Collides(c, mgl64.Vec3{0, -0.4, 0}, PlayerBox))
}

func TestCollides_SideContact(t *testing.T) {
	c := cells{{X: 1, Y: 0, Z: 0}: true}
	// Блок x=1 начинается с 0.5; ширина 0.6 → край игрока в 0.1+0.3=0.4
	assert.False(t, Collides(c, mgl64.Vec3{0.1, 0, 0}, PlayerBox))
	assert.True(t, Collides(c, mgl64.Vec3{0.25, 0, 0}, PlayerBox))
}

func TestCollides_NegativeCoordinates(t *testing.T) {
	c := cells{{X: -2, Y: 0, Z: -2}: true}
	assert.True(t, Collides(c, mgl64.Vec3{-1.8, -0.2, -2.1}, PlayerBox))
	assert.False(t, Collides(c, mgl64.Vec3{-1.1, -0.2, -2.1}, PlayerBox))
}

func TestResolveMove(t *testing.T) {
	c := cells{{X: 1, Y: 0, Z: 0}: true}
	from := mgl64.Vec3{0, 0, 0}

	assert.Equal(t, from, ResolveMove(c, from, mgl64.Vec3{0.6, 0, 0}, PlayerBox))
	to := mgl64.Vec3{0, 0, 0.4}
	assert.Equal(t, to, ResolveMove(c, from, to, PlayerBox))
}

func TestClampXZ(t *testing.T) {
	p := ClampXZ(mgl64.Vec3{30, 7, -40}, 25)
	assert.Equal(t, mgl64.Vec3{25, 7, -25}, p)

	inside := mgl64.Vec3{1, 2, 3}
	assert.Equal(t, inside, ClampXZ(inside, 25))
	assert.Equal(t, mgl64.Vec3{30, 7, -40}, ClampXZ(mgl64.Vec3{30, 7, -40}, -1))
}

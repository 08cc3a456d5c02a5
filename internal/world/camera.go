package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ViewDirection переводит углы камеры (в градусах) в единичный вектор взгляда.
// Yaw вращает в плоскости XZ от +X к +Z, pitch поднимает к +Y.
func ViewDirection(yawDeg, pitchDeg float64) mgl64.Vec3 {
	yaw := mgl64.DegToRad(yawDeg)
	pitch := mgl64.DegToRad(pitchDeg)

	d := mgl64.Vec3{
		math.Cos(yaw) * math.Cos(pitch),
		math.Sin(pitch),
		math.Sin(yaw) * math.Cos(pitch),
	}
	if l := d.Len(); l > 0 && !math.IsNaN(l) {
		return d.Mul(1 / l)
	}
	return mgl64.Vec3{0, 0, 1}
}

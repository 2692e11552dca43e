package camera

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Rotation is the model orientation in radians about each axis.
type Rotation struct {
	X, Y, Z float64
}

// Advance returns r integrated by rate over dt.
func (r Rotation) Advance(rate Rotation, dt float64) Rotation {
	return Rotation{
		X: r.X + rate.X*dt,
		Y: r.Y + rate.Y*dt,
		Z: r.Z + rate.Z*dt,
	}
}

// Matrix returns Rx·Ry·Rz.
func (r Rotation) Matrix() mgl64.Mat4 {
	return mgl64.HomogRotate3DX(r.X).
		Mul4(mgl64.HomogRotate3DY(r.Y)).
		Mul4(mgl64.HomogRotate3DZ(r.Z))
}

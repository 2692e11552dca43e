// Package camera models the virtual range sensor: a perspective pinhole
// looking down -Z at a model placed at the origin, and the inverse mapping
// from rendered pixels back to 3D positions.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidParameter is wrapped by every error returned from Build.
var ErrInvalidParameter = errors.New("invalid camera parameter")

// Vec3 is a position in the world frame.
type Vec3 = mgl64.Vec3

// Model is an immutable snapshot of the sensor intrinsics and extrinsics
// together with the matrices derived from them.
type Model struct {
	fov, near, far, distance float64
	width, height            int

	projection mgl64.Mat4
	view       mgl64.Mat4
	pv         mgl64.Mat4
	inv        mgl64.Mat4
}

// Build validates the parameters and derives the projection and view
// matrices. fov is the vertical field of view in degrees.
func Build(fov, near, far, distance float64, width, height int) (*Model, error) {
	switch {
	case !(fov > 0 && fov < 180):
		return nil, fmt.Errorf("%w: fov must be in (0, 180) degrees, got %g", ErrInvalidParameter, fov)
	case !(near > 0):
		return nil, fmt.Errorf("%w: near plane must be positive, got %g", ErrInvalidParameter, near)
	case !(far > near):
		return nil, fmt.Errorf("%w: far plane %g must be beyond near plane %g", ErrInvalidParameter, far, near)
	case math.IsNaN(distance) || math.IsInf(distance, 0):
		return nil, fmt.Errorf("%w: camera distance must be finite, got %g", ErrInvalidParameter, distance)
	case width <= 0 || height <= 0:
		return nil, fmt.Errorf("%w: image size must be non-zero, got %dx%d", ErrInvalidParameter, width, height)
	}

	m := &Model{
		fov:      fov,
		near:     near,
		far:      far,
		distance: distance,
		width:    width,
		height:   height,
	}
	m.projection = mgl64.Perspective(
		mgl64.DegToRad(fov),
		float64(width)/float64(height),
		near, far,
	)
	m.view = mgl64.Translate3D(0, 0, -distance)
	m.pv = m.projection.Mul4(m.view)
	m.inv = m.pv.Inv()
	return m, nil
}

// WithDistance returns a copy of the model moved to a new camera distance.
func (m *Model) WithDistance(distance float64) (*Model, error) {
	return Build(m.fov, m.near, m.far, distance, m.width, m.height)
}

// WithPlanes returns a copy of the model with new clipping planes.
func (m *Model) WithPlanes(near, far float64) (*Model, error) {
	return Build(m.fov, near, far, m.distance, m.width, m.height)
}

func (m *Model) FOV() float64      { return m.fov }
func (m *Model) Near() float64     { return m.near }
func (m *Model) Far() float64      { return m.far }
func (m *Model) Distance() float64 { return m.distance }
func (m *Model) Width() int        { return m.width }
func (m *Model) Height() int       { return m.height }

func (m *Model) Projection() mgl64.Mat4     { return m.projection }
func (m *Model) View() mgl64.Mat4           { return m.view }
func (m *Model) ProjectionView() mgl64.Mat4 { return m.pv }

// Inverse returns (Projection·View)⁻¹.
func (m *Model) Inverse() mgl64.Mat4 { return m.inv }

// Position returns the sensor origin in the world frame.
func (m *Model) Position() Vec3 {
	return Vec3{0, 0, m.distance}
}

// Project maps a world point to continuous pixel coordinates and the depth
// value the renderer stores for it. Pixel (i, j) spans [i, i+1) x [j, j+1)
// with row 0 at the top of the image; depth is in [0, 1] between the near
// and far planes.
func (m *Model) Project(p Vec3) (px, py, depth float64) {
	c := m.pv.Mul4x1(p.Vec4(1))
	return m.ClipToPixel(c)
}

// ClipToPixel performs the perspective divide and viewport mapping for a
// clip-space position.
func (m *Model) ClipToPixel(c mgl64.Vec4) (px, py, depth float64) {
	w := c.W()
	px = (c.X()/w + 1) / 2 * float64(m.width)
	py = (1 - c.Y()/w) / 2 * float64(m.height)
	depth = (c.Z()/w + 1) / 2
	return px, py, depth
}

// Unproject reconstructs the world position rendered at pixel (px, py)
// with stored depth value depth. It is the exact inverse of Project.
func (m *Model) Unproject(px, py, depth float64) Vec3 {
	ndc := mgl64.Vec4{
		2*px/float64(m.width) - 1,
		1 - 2*py/float64(m.height),
		2*depth - 1,
		1,
	}
	p := m.inv.Mul4x1(ndc)
	return p.Vec3().Mul(1 / p.W())
}

// FitPlanes returns clipping planes which bracket a model of the given
// bounding radius seen from distance, keeping the planes as tight as
// possible to preserve depth precision.
func FitPlanes(distance, radius float64) (near, far float64) {
	margin := radius * 1.01
	near = distance - margin
	if floor := distance * 1e-3; near < floor {
		near = floor
	}
	far = distance + margin
	if far <= near {
		far = near * 2
	}
	return near, far
}

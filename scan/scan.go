// Package scan converts rendered depth buffers into point clouds.
package scan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seqsense/lidarsim/camera"
	"github.com/seqsense/lidarsim/render"
)

// Sentinel is the depth value meaning "no surface hit". The renderer clears
// to it and never stores it for a fragment.
const Sentinel = render.ClearDepth

// Scan is one extracted point cloud with the parameters active at capture.
type Scan struct {
	ID         uuid.UUID
	Index      int
	CapturedAt time.Time

	Rotation camera.Rotation
	Camera   *camera.Model

	// Points are world frame positions in row-major pixel order.
	// Pixels holds the buffer index each point was reconstructed from.
	Points []camera.Vec3
	Pixels []int
}

// IsHit reports whether a depth sample represents a surface.
func IsHit(d float32) bool {
	return d != Sentinel
}

// Extract reconstructs the world position of every non-background sample
// of buf. Extraction is deterministic and allocation is bounded by the
// number of hits.
func Extract(buf *render.DepthBuffer, cam *camera.Model, rot camera.Rotation) *Scan {
	if buf.Width != cam.Width() || buf.Height != cam.Height() {
		panic(fmt.Sprintf("scan: buffer %dx%d does not match camera %dx%d",
			buf.Width, buf.Height, cam.Width(), cam.Height()))
	}
	if len(buf.Depth) != buf.Width*buf.Height {
		panic(fmt.Sprintf("scan: buffer has %d samples, expected %d",
			len(buf.Depth), buf.Width*buf.Height))
	}

	var n int
	for _, d := range buf.Depth {
		if IsHit(d) {
			n++
		}
	}
	s := &Scan{
		Rotation: rot,
		Camera:   cam,
		Points:   make([]camera.Vec3, 0, n),
		Pixels:   make([]int, 0, n),
	}
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			i := y*buf.Width + x
			d := buf.Depth[i]
			if !IsHit(d) {
				continue
			}
			s.Points = append(s.Points, cam.Unproject(float64(x)+0.5, float64(y)+0.5, float64(d)))
			s.Pixels = append(s.Pixels, i)
		}
	}
	return s
}

// Len returns the number of points.
func (s *Scan) Len() int {
	return len(s.Points)
}

// Float32s flattens the points to x0, y0, z0, x1, ... with an extra zero
// per point when reserved is set.
func (s *Scan) Float32s(reserved bool) []float32 {
	return s.AppendFloat32s(nil, reserved)
}

// AppendFloat32s appends the flattened points to dst.
func (s *Scan) AppendFloat32s(dst []float32, reserved bool) []float32 {
	for _, p := range s.Points {
		dst = append(dst, float32(p[0]), float32(p[1]), float32(p[2]))
		if reserved {
			dst = append(dst, 0)
		}
	}
	return dst
}

// Stamp assigns the capture identity. Index is the capture counter of the
// producing controller.
func (s *Scan) Stamp(index int, now time.Time) {
	s.ID = uuid.New()
	s.Index = index
	s.CapturedAt = now
}

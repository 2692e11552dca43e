// Package render produces depth buffers of the scanned model as seen from
// the virtual sensor.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/seqsense/lidarsim/camera"
)

// ErrRender is wrapped by every error returned from Renderer.Render.
var ErrRender = errors.New("render failed")

// Renderer issues one render pass of the model under the given rotation.
// showAuxiliary draws decoration which must never reach extraction.
type Renderer interface {
	Render(cam *camera.Model, rot camera.Rotation, showAuxiliary bool) (*DepthBuffer, error)
}

// Option configures a Rasterizer.
type Option func(*Rasterizer)

// WithScale applies a uniform scale factor to the model.
func WithScale(s float64) Option {
	return func(r *Rasterizer) { r.scale = s }
}

// WithColor enables the colour plane of rendered buffers.
func WithColor(enable bool) Option {
	return func(r *Rasterizer) { r.color = enable }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rasterizer) {
		if l != nil {
			r.logger = l
		}
	}
}

// Rasterizer is a software z-buffer renderer with OpenGL conventions:
// depth range [0, 1], strict less depth test, pixel centre sampling and a
// top-left fill rule.
type Rasterizer struct {
	mesh   *Mesh
	scale  float64
	color  bool
	logger *slog.Logger

	min, max mgl64.Vec3
}

// NewRasterizer prepares mesh for rendering.
func NewRasterizer(mesh *Mesh, opts ...Option) (*Rasterizer, error) {
	r := &Rasterizer{
		mesh:   mesh,
		scale:  1,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(r)
	}
	if mesh == nil {
		return nil, fmt.Errorf("%w: no mesh", ErrRender)
	}
	if !(r.scale > 0) || math.IsInf(r.scale, 0) {
		return nil, fmt.Errorf("%w: scale must be positive, got %g", ErrRender, r.scale)
	}
	r.min, r.max = mesh.Bounds()
	r.logger.Debug("Rasterizer ready",
		slog.Int("triangles", len(mesh.Triangles)),
		slog.Float64("scale", r.scale),
	)
	return r, nil
}

// Radius returns the scaled bounding radius of the model.
func (r *Rasterizer) Radius() float64 {
	return r.mesh.Radius() * r.scale
}

// Render implements Renderer.
func (r *Rasterizer) Render(cam *camera.Model, rot camera.Rotation, showAuxiliary bool) (*DepthBuffer, error) {
	if cam == nil {
		return nil, fmt.Errorf("%w: no camera", ErrRender)
	}
	mvp := cam.ProjectionView().
		Mul4(rot.Matrix()).
		Mul4(mgl64.Scale3D(r.scale, r.scale, r.scale))
	for _, v := range mvp {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite model-view-projection matrix", ErrRender)
		}
	}

	buf := NewDepthBuffer(cam.Width(), cam.Height(), r.color)
	for _, t := range r.mesh.Triangles {
		clip := [3]mgl64.Vec4{
			mvp.Mul4x1(t[0].Vec4(1)),
			mvp.Mul4x1(t[1].Vec4(1)),
			mvp.Mul4x1(t[2].Vec4(1)),
		}
		poly := clipNear(clip[:])
		for i := 1; i+1 < len(poly); i++ {
			fillTriangle(buf,
				toScreen(cam, poly[0]),
				toScreen(cam, poly[i]),
				toScreen(cam, poly[i+1]),
				surfaceShade,
			)
		}
	}
	// An empty mesh has no bounding box.
	if showAuxiliary && len(r.mesh.Triangles) > 0 {
		r.drawBox(buf, cam, mvp)
	}
	return buf, nil
}

var boxEdges = [12][2]int{
	{0, 1}, {1, 3}, {3, 2}, {2, 0},
	{4, 5}, {5, 7}, {7, 6}, {6, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func (r *Rasterizer) drawBox(buf *DepthBuffer, cam *camera.Model, mvp mgl64.Mat4) {
	var corners [8]mgl64.Vec4
	for i := range corners {
		c := r.min
		if i&1 != 0 {
			c[0] = r.max[0]
		}
		if i&2 != 0 {
			c[1] = r.max[1]
		}
		if i&4 != 0 {
			c[2] = r.max[2]
		}
		corners[i] = mvp.Mul4x1(c.Vec4(1))
	}
	for _, e := range boxEdges {
		a, b, ok := clipNearSegment(corners[e[0]], corners[e[1]])
		if !ok {
			continue
		}
		drawLine(buf, toScreen(cam, a), toScreen(cam, b), auxShade)
	}
}

type screenVertex struct {
	x, y, d float64
}

func toScreen(cam *camera.Model, c mgl64.Vec4) screenVertex {
	x, y, d := cam.ClipToPixel(c)
	return screenVertex{x: x, y: y, d: d}
}

// nearDist is positive on the visible side of the near plane (z >= -w).
func nearDist(c mgl64.Vec4) float64 {
	return c.Z() + c.W()
}

// clipNear clips a convex polygon against the near plane.
func clipNear(poly []mgl64.Vec4) []mgl64.Vec4 {
	out := make([]mgl64.Vec4, 0, len(poly)+1)
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		da, db := nearDist(a), nearDist(b)
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			out = append(out, a.Add(b.Sub(a).Mul(t)))
		}
	}
	return out
}

func clipNearSegment(a, b mgl64.Vec4) (mgl64.Vec4, mgl64.Vec4, bool) {
	da, db := nearDist(a), nearDist(b)
	switch {
	case da < 0 && db < 0:
		return a, b, false
	case da < 0:
		a = a.Add(b.Sub(a).Mul(da / (da - db)))
	case db < 0:
		b = a.Add(b.Sub(a).Mul(da / (da - db)))
	}
	return a, b, true
}

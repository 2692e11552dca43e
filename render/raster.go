package render

import (
	"image/color"
	"math"
)

type shader func(d float64) color.RGBA

func surfaceShade(d float64) color.RGBA {
	v := uint8(55 + 200*(1-d))
	return color.RGBA{R: v, G: v, B: v, A: 0xFF}
}

func auxShade(float64) color.RGBA {
	return color.RGBA{R: 0xFF, G: 0x40, B: 0x40, A: 0xFF}
}

// plot applies the depth test at pixel (x, y).
func plot(buf *DepthBuffer, x, y int, d float64, shade shader) {
	if !buf.InBounds(x, y) || !(d >= 0) {
		return
	}
	d32 := float32(d)
	if d32 >= ClearDepth {
		return
	}
	i := y*buf.Width + x
	if d32 >= buf.Depth[i] {
		return
	}
	buf.Depth[i] = d32
	if buf.Color != nil {
		buf.Color.SetRGBA(x, y, shade(d))
	}
}

// edge evaluates the edge function of a->b at (x, y). Endpoints are put in
// a canonical order first so that an edge shared by two triangles yields
// exactly negated values and no pixel is lost or drawn twice along it.
func edge(a, b screenVertex, x, y float64) float64 {
	if b.y < a.y || (b.y == a.y && b.x < a.x) {
		return -edgeFn(b, a, x, y)
	}
	return edgeFn(a, b, x, y)
}

func edgeFn(a, b screenVertex, x, y float64) float64 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

// isTopLeft reports whether a->b is a top or left edge of a triangle with
// positive area in y-down screen space.
func isTopLeft(a, b screenVertex) bool {
	return (a.y == b.y && b.x > a.x) || b.y < a.y
}

func covers(w float64, a, b screenVertex) bool {
	return w > 0 || (w == 0 && isTopLeft(a, b))
}

func fillTriangle(buf *DepthBuffer, v0, v1, v2 screenVertex, shade shader) {
	area := edge(v0, v1, v2.x, v2.y)
	if area < 0 {
		v1, v2 = v2, v1
		area = -area
	}
	if !(area > 1e-12) {
		return
	}

	minX := int(math.Max(0, math.Floor(math.Min(v0.x, math.Min(v1.x, v2.x)))))
	maxX := int(math.Min(float64(buf.Width-1), math.Ceil(math.Max(v0.x, math.Max(v1.x, v2.x)))))
	minY := int(math.Max(0, math.Floor(math.Min(v0.y, math.Min(v1.y, v2.y)))))
	maxY := int(math.Min(float64(buf.Height-1), math.Ceil(math.Max(v0.y, math.Max(v1.y, v2.y)))))

	for y := minY; y <= maxY; y++ {
		cy := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			cx := float64(x) + 0.5
			w0 := edge(v1, v2, cx, cy)
			w1 := edge(v2, v0, cx, cy)
			w2 := edge(v0, v1, cx, cy)
			if !covers(w0, v1, v2) || !covers(w1, v2, v0) || !covers(w2, v0, v1) {
				continue
			}
			d := (w0*v0.d + w1*v1.d + w2*v2.d) / area
			plot(buf, x, y, d, shade)
		}
	}
}

func drawLine(buf *DepthBuffer, a, b screenVertex, shade shader) {
	dx, dy := b.x-a.x, b.y-a.y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		plot(buf, int(math.Floor(a.x)), int(math.Floor(a.y)), a.d, shade)
		return
	}
	// Lines leaving the frustum sideways can be arbitrarily long.
	if steps > 4*(buf.Width+buf.Height) {
		steps = 4 * (buf.Width + buf.Height)
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		plot(buf,
			int(math.Floor(a.x+dx*t)),
			int(math.Floor(a.y+dy*t)),
			a.d+(b.d-a.d)*t,
			shade,
		)
	}
}

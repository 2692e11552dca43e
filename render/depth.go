package render

import (
	"image"
)

// ClearDepth is the value every depth sample holds before a render pass.
// No surface hit is ever stored with this value.
const ClearDepth float32 = 1

// DepthBuffer holds one rendered frame. Samples are row-major with row 0
// at the top of the image.
type DepthBuffer struct {
	Width, Height int
	Depth         []float32
	Color         *image.RGBA
}

// NewDepthBuffer allocates a cleared buffer, with a colour plane if color
// is set.
func NewDepthBuffer(width, height int, color bool) *DepthBuffer {
	b := &DepthBuffer{
		Width:  width,
		Height: height,
		Depth:  make([]float32, width*height),
	}
	if color {
		b.Color = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	b.Clear()
	return b
}

// Clear resets depth to ClearDepth and colour to opaque black.
func (b *DepthBuffer) Clear() {
	for i := range b.Depth {
		b.Depth[i] = ClearDepth
	}
	if b.Color != nil {
		pix := b.Color.Pix
		for i := 0; i < len(pix); i += 4 {
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 0xFF
		}
	}
}

// At returns the depth sample at pixel (x, y).
func (b *DepthBuffer) At(x, y int) float32 {
	return b.Depth[y*b.Width+x]
}

// InBounds reports whether pixel (x, y) is inside the buffer.
func (b *DepthBuffer) InBounds(x, y int) bool {
	return 0 <= x && x < b.Width && 0 <= y && y < b.Height
}

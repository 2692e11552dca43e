package scan

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"

	"github.com/seqsense/lidarsim/camera"
	"github.com/seqsense/lidarsim/render"
)

func testCamera(t *testing.T, width, height int) *camera.Model {
	t.Helper()
	cam, err := camera.Build(20, 800, 1200, 1000, width, height)
	if err != nil {
		t.Fatal(err)
	}
	return cam
}

func TestExtractBackground(t *testing.T) {
	cam := testCamera(t, 8, 6)
	s := Extract(render.NewDepthBuffer(8, 6, false), cam, camera.Rotation{})
	if s.Len() != 0 {
		t.Errorf("Background must not produce points, got %d", s.Len())
	}
	if b := s.Float32s(true); len(b) != 0 {
		t.Errorf("Empty scan must flatten to nothing, got %d values", len(b))
	}
}

func TestExtractCount(t *testing.T) {
	cam := testCamera(t, 8, 6)
	buf := render.NewDepthBuffer(8, 6, false)
	hits := []int{47, 3, 0, 20, 21, 9}
	for _, i := range hits {
		buf.Depth[i] = 0.5
	}
	// Just below the sentinel is still a surface.
	buf.Depth[30] = math.Nextafter32(Sentinel, 0)

	s := Extract(buf, cam, camera.Rotation{X: 0.5})
	if s.Len() != len(hits)+1 {
		t.Fatalf("Expected %d points, got %d", len(hits)+1, s.Len())
	}
	expected := []int{0, 3, 9, 20, 21, 30, 47}
	if diff := cmp.Diff(expected, s.Pixels); diff != "" {
		t.Errorf("Points must be in row-major order (-want +got):\n%s", diff)
	}
	if s.Rotation.X != 0.5 {
		t.Error("Rotation must be recorded")
	}
}

func TestExtractDeterministic(t *testing.T) {
	cam := testCamera(t, 16, 16)
	buf := render.NewDepthBuffer(16, 16, false)
	for i := range buf.Depth {
		if i%3 != 0 {
			buf.Depth[i] = float32(i) / float32(len(buf.Depth)+1)
		}
	}
	a := Extract(buf, cam, camera.Rotation{}).Float32s(false)
	b := Extract(buf, cam, camera.Rotation{}).Float32s(false)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Extraction must be reproducible (-first +second):\n%s", diff)
	}
}

func TestExtractUnproject(t *testing.T) {
	cam := testCamera(t, 64, 64)
	p := mgl64.Vec3{10, -20, 5}
	px, py, d := cam.Project(p)

	buf := render.NewDepthBuffer(64, 64, false)
	x, y := int(math.Floor(px)), int(math.Floor(py))
	buf.Depth[y*64+x] = float32(d)

	s := Extract(buf, cam, camera.Rotation{})
	if s.Len() != 1 {
		t.Fatalf("Expected 1 point, got %d", s.Len())
	}
	expected := cam.Unproject(float64(x)+0.5, float64(y)+0.5, float64(float32(d)))
	if !s.Points[0].ApproxEqualThreshold(expected, 1e-9) {
		t.Errorf("Expected %v, got %v", expected, s.Points[0])
	}
	if math.Abs(s.Points[0].Z()-p.Z()) > 0.5 {
		t.Errorf("Reconstructed depth %f too far from %f", s.Points[0].Z(), p.Z())
	}
}

func TestExtractSizeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Size mismatch must panic")
		}
	}()
	Extract(render.NewDepthBuffer(4, 4, false), testCamera(t, 8, 8), camera.Rotation{})
}

func TestFloat32s(t *testing.T) {
	s := &Scan{Points: []camera.Vec3{{1, 2, 3}, {4, 5, 6}}}
	testCases := map[string]struct {
		reserved bool
		expected []float32
	}{
		"XYZ":      {false, []float32{1, 2, 3, 4, 5, 6}},
		"Reserved": {true, []float32{1, 2, 3, 0, 4, 5, 6, 0}},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tt.expected, s.Float32s(tt.reserved)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractRenderedSquare(t *testing.T) {
	a := mgl64.Vec3{-100, -100, 0}
	b := mgl64.Vec3{100, -100, 0}
	c := mgl64.Vec3{100, 100, 0}
	d := mgl64.Vec3{-100, 100, 0}
	r, err := render.NewRasterizer(&render.Mesh{Triangles: []render.Triangle{{a, b, c}, {a, c, d}}})
	if err != nil {
		t.Fatal(err)
	}
	near, far := camera.FitPlanes(1000, r.Radius())
	cam, err := camera.Build(20, near, far, 1000, 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := r.Render(cam, camera.Rotation{}, false)
	if err != nil {
		t.Fatal(err)
	}

	// tan(10°)·1000 = 176.3, so the square spans pixels 14..49 on both axes.
	const expected = 36 * 36
	s := Extract(buf, cam, camera.Rotation{})
	if s.Len() != expected {
		t.Fatalf("Expected %d points, got %d", expected, s.Len())
	}
	z0 := s.Points[0].Z()
	if math.Abs(z0) > 1e-2 {
		t.Errorf("Expected z=0, got %f", z0)
	}
	for i, p := range s.Points {
		if math.Abs(p.Z()-z0) > 1e-4 {
			t.Errorf("Point %d: expected z=%f shared by the plane, got %f", i, z0, p.Z())
		}
		if math.Abs(p.X()) > 100 || math.Abs(p.Y()) > 100 {
			t.Errorf("Point %d (%v) is outside of the square", i, p)
		}
	}
	if s.Pixels[0] != 14*64+14 || s.Pixels[len(s.Pixels)-1] != 49*64+49 {
		t.Errorf("Unexpected silhouette corners %d, %d", s.Pixels[0], s.Pixels[len(s.Pixels)-1])
	}
}

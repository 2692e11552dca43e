package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

var errMalformedOBJ = errors.New("malformed obj")

// Triangle is a face of the model in model coordinates.
type Triangle [3]mgl64.Vec3

// Mesh is the renderable model.
type Mesh struct {
	Triangles []Triangle
}

// Bounds returns the axis aligned bounding box of all vertices.
func (m *Mesh) Bounds() (min, max mgl64.Vec3) {
	if len(m.Triangles) == 0 {
		return
	}
	min = m.Triangles[0][0]
	max = min
	for _, t := range m.Triangles {
		for _, v := range t {
			for i := 0; i < 3; i++ {
				min[i] = math.Min(min[i], v[i])
				max[i] = math.Max(max[i], v[i])
			}
		}
	}
	return min, max
}

// Radius returns the distance of the farthest vertex from the origin,
// the point the model rotates about.
func (m *Mesh) Radius() float64 {
	var r float64
	for _, t := range m.Triangles {
		for _, v := range t {
			r = math.Max(r, v.Len())
		}
	}
	return r
}

// LoadOBJFile reads a Wavefront OBJ file.
func LoadOBJFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := LoadOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadOBJ reads vertex and face records of a Wavefront OBJ stream.
// Polygons are fan triangulated; all other records are ignored.
func LoadOBJ(r io.Reader) (*Mesh, error) {
	var verts []mgl64.Vec3
	m := &Mesh{}

	s := bufio.NewScanner(r)
	for n := 1; s.Scan(); n++ {
		args := strings.Fields(s.Text())
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "v":
			if len(args) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", errMalformedOBJ, n)
			}
			var v mgl64.Vec3
			for i := range v {
				f, err := strconv.ParseFloat(args[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", errMalformedOBJ, n, err)
				}
				v[i] = f
			}
			verts = append(verts, v)
		case "f":
			if len(args) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs 3 vertices", errMalformedOBJ, n)
			}
			face := make([]mgl64.Vec3, 0, len(args)-1)
			for _, a := range args[1:] {
				idx, err := strconv.Atoi(strings.SplitN(a, "/", 2)[0])
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", errMalformedOBJ, n, err)
				}
				if idx < 0 {
					idx = len(verts) + idx + 1
				}
				if idx < 1 || idx > len(verts) {
					return nil, fmt.Errorf("%w: line %d: vertex index %s out of range", errMalformedOBJ, n, a)
				}
				face = append(face, verts[idx-1])
			}
			for i := 1; i+1 < len(face); i++ {
				m.Triangles = append(m.Triangles, Triangle{face[0], face[i], face[i+1]})
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

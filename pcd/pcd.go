// Package pcd persists scans as PCD point cloud files with a YAML sidecar
// describing the capture.
package pcd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/lidarsim/scan"
)

type Format int

const (
	Binary Format = iota
	Ascii
)

func (f Format) String() string {
	switch f {
	case Binary:
		return "binary"
	case Ascii:
		return "ascii"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// ParseFormat parses the DATA name of a format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "binary":
		return Binary, nil
	case "ascii":
		return Ascii, nil
	}
	return 0, fmt.Errorf("unknown pcd format %q", s)
}

// Writer stores scans under a filename stem. The zero value writes binary
// PCD and logs nothing.
type Writer struct {
	Format Format
	Logger *slog.Logger
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}

// WritePoints writes the points of s to <stem>.pcd and returns the path.
func (w *Writer) WritePoints(s *scan.Scan, stem string) (string, error) {
	path := stem + ".pcd"
	var buf bytes.Buffer
	if err := w.encode(&buf, s); err != nil {
		return "", &PersistenceError{Op: "encode", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	w.logger().Info("Point cloud written",
		slog.String("path", path),
		slog.Int("points", s.Len()),
		slog.String("format", w.Format.String()),
	)
	return path, nil
}

func (w *Writer) encode(wr io.Writer, s *scan.Scan) error {
	pp, err := pointCloud(s)
	if err != nil {
		return err
	}
	switch w.Format {
	case Binary:
		return pc.Marshal(pp, wr)
	case Ascii:
		return marshalASCII(pp, wr)
	}
	return fmt.Errorf("unsupported pcd format %v", w.Format)
}

func header(s *scan.Scan) pc.PointCloudHeader {
	vp := []float32{0, 0, 0, 1, 0, 0, 0}
	if s.Camera != nil {
		p := s.Camera.Position()
		vp[0], vp[1], vp[2] = float32(p[0]), float32(p[1]), float32(p[2])
	}
	return pc.PointCloudHeader{
		Version:   0.7,
		Fields:    []string{"x", "y", "z"},
		Size:      []int{4, 4, 4},
		Type:      []string{"F", "F", "F"},
		Count:     []int{1, 1, 1},
		Width:     s.Len(),
		Height:    1,
		Viewpoint: vp,
	}
}

func pointCloud(s *scan.Scan) (*pc.PointCloud, error) {
	pp := &pc.PointCloud{
		PointCloudHeader: header(s),
		Points:           s.Len(),
	}
	pp.Data = make([]byte, pp.Points*pp.Stride())
	if pp.Points == 0 {
		return pp, nil
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, err
	}
	for _, p := range s.Points {
		it.SetVec3(mat.Vec3{float32(p[0]), float32(p[1]), float32(p[2])})
		it.Incr()
	}
	return pp, nil
}

func marshalASCII(pp *pc.PointCloud, w io.Writer) error {
	bw := bufio.NewWriter(w)
	h := pp.PointCloudHeader
	fmt.Fprintf(bw, "VERSION %s\n", formatFloat(h.Version))
	fmt.Fprintf(bw, "FIELDS%s\n", joinStrings(h.Fields))
	fmt.Fprintf(bw, "SIZE%s\n", joinInts(h.Size))
	fmt.Fprintf(bw, "TYPE%s\n", joinStrings(h.Type))
	fmt.Fprintf(bw, "COUNT%s\n", joinInts(h.Count))
	fmt.Fprintf(bw, "WIDTH %d\n", h.Width)
	fmt.Fprintf(bw, "HEIGHT %d\n", h.Height)
	bw.WriteString("VIEWPOINT")
	for _, v := range h.Viewpoint {
		bw.WriteString(" " + formatFloat(v))
	}
	bw.WriteString("\n")
	fmt.Fprintf(bw, "POINTS %d\n", pp.Points)
	bw.WriteString("DATA ascii\n")

	if pp.Points > 0 {
		it, err := pp.Vec3Iterator()
		if err != nil {
			return err
		}
		for ; it.IsValid(); it.Incr() {
			v := it.Vec3()
			fmt.Fprintf(bw, "%s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
		}
	}
	return bw.Flush()
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func joinStrings(s []string) string {
	var b bytes.Buffer
	for _, v := range s {
		b.WriteByte(' ')
		b.WriteString(v)
	}
	return b.String()
}

func joinInts(s []int) string {
	var b bytes.Buffer
	for _, v := range s {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

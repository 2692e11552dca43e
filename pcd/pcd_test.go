package pcd

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/seqsense/lidarsim/camera"
	"github.com/seqsense/lidarsim/scan"
)

func testScan(t *testing.T) *scan.Scan {
	t.Helper()
	cam, err := camera.Build(20, 900, 1100, 1000, 32, 24)
	require.NoError(t, err)
	s := &scan.Scan{
		Rotation: camera.Rotation{X: 0.5, Y: 1.0, Z: 0.0},
		Camera:   cam,
		Points:   []camera.Vec3{{1, 2, 3}, {-4.5, 0.25, 100}},
		Pixels:   []int{3, 70},
	}
	s.Stamp(7, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return s
}

func TestWritePointsBinary(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "scan")
	s := testScan(t)

	w := &Writer{}
	path, err := w.WritePoints(s, stem)
	require.NoError(t, err)
	assert.Equal(t, stem+".pcd", path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	pp, err := pc.Unmarshal(f)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y", "z"}, pp.Fields)
	assert.Equal(t, 2, pp.Points)
	assert.Equal(t, 2, pp.Width)
	assert.Equal(t, 1, pp.Height)
	assert.Equal(t, []float32{0, 0, 1000, 1, 0, 0, 0}, pp.Viewpoint)

	it, err := pp.Vec3Iterator()
	require.NoError(t, err)
	var got []mat.Vec3
	for ; it.IsValid(); it.Incr() {
		got = append(got, it.Vec3())
	}
	assert.Equal(t, []mat.Vec3{{1, 2, 3}, {-4.5, 0.25, 100}}, got)
}

func TestWritePointsASCII(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "scan")
	w := &Writer{Format: Ascii}
	path, err := w.WritePoints(testScan(t), stem)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())

	expected := []string{
		"VERSION 0.7",
		"FIELDS x y z",
		"SIZE 4 4 4",
		"TYPE F F F",
		"COUNT 1 1 1",
		"WIDTH 2",
		"HEIGHT 1",
		"VIEWPOINT 0 0 1000 1 0 0 0",
		"POINTS 2",
		"DATA ascii",
		"1 2 3",
		"-4.5 0.25 100",
	}
	assert.Equal(t, expected, lines)
}

func TestWritePointsEmpty(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "empty")
	testCases := map[string]Format{
		"Binary": Binary,
		"Ascii":  Ascii,
	}
	for name, format := range testCases {
		format := format
		t.Run(name, func(t *testing.T) {
			w := &Writer{Format: format}
			path, err := w.WritePoints(&scan.Scan{}, stem+name)
			require.NoError(t, err)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(b), "POINTS 0\n")
		})
	}
}

func TestWriteMetadata(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "scan")
	s := testScan(t)

	w := &Writer{}
	path, err := w.WriteMetadata(s, stem)
	require.NoError(t, err)
	assert.Equal(t, stem+".yaml", path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var m Metadata
	require.NoError(t, yaml.Unmarshal(b, &m))

	assert.Equal(t, RotationMeta{X: 0.5, Y: 1.0, Z: 0.0}, m.Rotation)
	assert.Equal(t, CameraMeta{
		FOV: 20, Near: 900, Far: 1100, Distance: 1000, Width: 32, Height: 24,
	}, m.Camera)
	assert.Equal(t, 7, m.Index)
	assert.Equal(t, 2, m.Points)
	assert.Equal(t, s.ID.String(), m.ID)
	assert.True(t, s.CapturedAt.Equal(m.CapturedAt))
}

func TestWriteOverwrite(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "scan")
	w := &Writer{Format: Ascii}
	s := testScan(t)

	_, err := w.WritePoints(s, stem)
	require.NoError(t, err)
	s.Points = s.Points[:1]
	path, err := w.WritePoints(s, stem)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "POINTS 1\n")
}

func TestWriteError(t *testing.T) {
	testCases := map[string]struct {
		prepare func(t *testing.T, dir string) string
		op      string
	}{
		"NoDirectory": {
			prepare: func(t *testing.T, dir string) string {
				return filepath.Join(dir, "missing", "scan")
			},
			op: "create",
		},
		"TargetIsDirectory": {
			prepare: func(t *testing.T, dir string) string {
				require.NoError(t, os.Mkdir(filepath.Join(dir, "scan.pcd"), 0o755))
				return filepath.Join(dir, "scan")
			},
			op: "rename",
		},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			stem := tt.prepare(t, dir)

			w := &Writer{}
			_, err := w.WritePoints(testScan(t), stem)
			require.Error(t, err)

			var perr *PersistenceError
			require.True(t, errors.As(err, &perr), "expected PersistenceError, got %T", err)
			assert.Equal(t, tt.op, perr.Op)
			assert.Equal(t, stem+".pcd", perr.Path)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temporary file %s left behind", e.Name())
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	testCases := map[string]struct {
		in       string
		expected Format
		err      bool
	}{
		"Default": {"", Binary, false},
		"Binary":  {"binary", Binary, false},
		"Ascii":   {"ascii", Ascii, false},
		"Unknown": {"binary_compressed", 0, true},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			f, err := ParseFormat(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

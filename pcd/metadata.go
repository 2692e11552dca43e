package pcd

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/seqsense/lidarsim/scan"
)

// Metadata is the sidecar content stored next to each point cloud.
type Metadata struct {
	Index      int          `yaml:"index"`
	ID         string       `yaml:"id,omitempty"`
	CapturedAt time.Time    `yaml:"captured_at"`
	Rotation   RotationMeta `yaml:"rotation"`
	Camera     CameraMeta   `yaml:"camera"`
	Points     int          `yaml:"points"`
}

type RotationMeta struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type CameraMeta struct {
	FOV      float64 `yaml:"fov"`
	Near     float64 `yaml:"near"`
	Far      float64 `yaml:"far"`
	Distance float64 `yaml:"distance"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
}

// NewMetadata collects the capture parameters of s.
func NewMetadata(s *scan.Scan) Metadata {
	m := Metadata{
		Index:      s.Index,
		CapturedAt: s.CapturedAt,
		Rotation:   RotationMeta{X: s.Rotation.X, Y: s.Rotation.Y, Z: s.Rotation.Z},
		Points:     s.Len(),
	}
	if s.ID != uuid.Nil {
		m.ID = s.ID.String()
	}
	if c := s.Camera; c != nil {
		m.Camera = CameraMeta{
			FOV:      c.FOV(),
			Near:     c.Near(),
			Far:      c.Far(),
			Distance: c.Distance(),
			Width:    c.Width(),
			Height:   c.Height(),
		}
	}
	return m
}

// WriteMetadata writes the capture parameters of s to <stem>.yaml and
// returns the path.
func (w *Writer) WriteMetadata(s *scan.Scan, stem string) (string, error) {
	path := stem + ".yaml"
	b, err := yaml.Marshal(NewMetadata(s))
	if err != nil {
		return "", &PersistenceError{Op: "encode", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, b); err != nil {
		return "", err
	}
	w.logger().Debug("Metadata written", slog.String("path", path))
	return path, nil
}

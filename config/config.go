// Package config holds the run settings of the simulator and reads them
// from a YAML file and the positional command line.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Axes is a per-axis value in radians or radians per second.
type Axes struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type Config struct {
	Model           string  `yaml:"model"`
	Scale           float64 `yaml:"scale"`
	RotationRate    Axes    `yaml:"rotation_rate"`
	InitialRotation Axes    `yaml:"initial_rotation"`
	Distance        float64 `yaml:"distance"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	FOV             float64 `yaml:"fov"`

	// Output enables capture-and-exit to <Output>.pcd. Port enables
	// streaming. At most one of them is set.
	Output    string `yaml:"output"`
	Port      int    `yaml:"port"`
	Frequency int    `yaml:"frequency"`

	Format          string  `yaml:"format"`
	ReservedChannel bool    `yaml:"reserved_channel"`
	FrameRate       float64 `yaml:"frame_rate"`
	InteractiveStem string  `yaml:"interactive_stem"`
	CameraSpeed     float64 `yaml:"camera_speed"`
	SendQueue       int     `yaml:"send_queue"`
}

func Default() *Config {
	return &Config{
		Model:           "test.obj",
		Scale:           1,
		Distance:        1000,
		Width:           256,
		Height:          256,
		FOV:             20,
		Frequency:       50,
		Format:          "binary",
		FrameRate:       60,
		InteractiveStem: "buffer",
		CameraSpeed:     36,
		SendQueue:       4,
	}
}

// Streaming reports whether scans are published.
func (c *Config) Streaming() bool {
	return c.Port > 0
}

const maxFileSize = 1 << 20

// LoadFile overlays the settings of a YAML file on c. Keys absent from the
// file keep their current values; unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	clean := filepath.Clean(path)
	switch ext := filepath.Ext(clean); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}
	fi, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fi.Size(), maxFileSize)
	}
	b, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ParseArgs overlays positional arguments on c:
//
//	model scale rx ry rz irx iry irz distance width height fov (-f stem | -p port) frequency
//
// Every argument is optional but each requires the ones before it.
func (c *Config) ParseArgs(args []string) error {
	floats := []*float64{
		&c.Scale,
		&c.RotationRate.X, &c.RotationRate.Y, &c.RotationRate.Z,
		&c.InitialRotation.X, &c.InitialRotation.Y, &c.InitialRotation.Z,
		&c.Distance,
	}
	if len(args) == 0 {
		return nil
	}
	c.Model = args[0]
	args = args[1:]

	for i, p := range floats {
		if i >= len(args) {
			return nil
		}
		v, err := parseFloat(args[i], 2+i)
		if err != nil {
			return err
		}
		*p = v
	}
	args = args[len(floats):]

	ints := []*int{&c.Width, &c.Height}
	for i, p := range ints {
		if i >= len(args) {
			return nil
		}
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return fmt.Errorf("%w: argument %d: %v", ErrInvalid, 10+i, err)
		}
		*p = v
	}
	args = args[len(ints):]

	if len(args) == 0 {
		return nil
	}
	fov, err := parseFloat(args[0], 12)
	if err != nil {
		return err
	}
	c.FOV = fov
	args = args[1:]

	if len(args) == 0 {
		return nil
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: mode %s requires a value", ErrInvalid, args[0])
	}
	switch args[0] {
	case "-f":
		c.Output, c.Port = args[1], 0
	case "-p":
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: port: %v", ErrInvalid, err)
		}
		c.Output, c.Port = "", port
	default:
		return fmt.Errorf("%w: unknown mode %q, expected -f or -p", ErrInvalid, args[0])
	}
	args = args[2:]

	if len(args) == 0 {
		return nil
	}
	freq, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: frequency: %v", ErrInvalid, err)
	}
	c.Frequency = freq
	if len(args) > 1 {
		return fmt.Errorf("%w: unexpected arguments %q", ErrInvalid, args[1:])
	}
	return nil
}

func parseFloat(s string, pos int) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d: %v", ErrInvalid, pos, err)
	}
	return v, nil
}

// Validate checks the settings that do not depend on the model.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

	check(c.Model != "", "model path is empty")
	check(c.Scale > 0 && finite(c.Scale), "scale must be positive, got %g", c.Scale)
	check(finite(c.Distance), "distance must be finite, got %g", c.Distance)
	check(c.Width > 0, "width must be positive, got %d", c.Width)
	check(c.Height > 0, "height must be positive, got %d", c.Height)
	check(c.FOV > 0 && c.FOV < 180, "fov must be in (0, 180), got %g", c.FOV)
	check(c.Port >= 0 && c.Port < 65535, "port must be in [1, 65534], got %d", c.Port)
	check(c.Output == "" || c.Port == 0, "output and port are mutually exclusive")
	check(c.Frequency >= 1, "frequency must be positive, got %d", c.Frequency)
	check(c.Format == "binary" || c.Format == "ascii", "format must be binary or ascii, got %q", c.Format)
	check(c.FrameRate > 0 && finite(c.FrameRate), "frame_rate must be positive, got %g", c.FrameRate)
	check(c.InteractiveStem != "", "interactive_stem is empty")
	check(finite(c.CameraSpeed), "camera_speed must be finite, got %g", c.CameraSpeed)
	check(c.SendQueue >= 1, "send_queue must be positive, got %d", c.SendQueue)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Package capture runs the frame loop that renders the model, turns the
// depth buffer into scans and routes them to disk or to the stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/seqsense/lidarsim/camera"
	"github.com/seqsense/lidarsim/render"
	"github.com/seqsense/lidarsim/scan"
	"github.com/seqsense/lidarsim/stream"
)

var ErrNoPreview = errors.New("capture: no color preview available")

// ScanWriter persists scans.
type ScanWriter interface {
	WritePoints(s *scan.Scan, stem string) (string, error)
	WriteMetadata(s *scan.Scan, stem string) (string, error)
}

// Config describes a Controller. Renderer, Camera and Writer are required.
type Config struct {
	Renderer render.Renderer
	Camera   *camera.Model
	Writer   ScanWriter

	// Transport receives a scan every Frequency frames when Streaming is
	// set. It defaults to stream.Nop.
	Transport stream.Transport
	Streaming bool
	Frequency int

	Rotation camera.Rotation
	Rate     camera.Rotation

	// OutputStem enables capture-and-exit: the second frame is written to
	// <OutputStem>.pcd and the loop ends.
	OutputStem string
	// InteractiveStem prefixes scans requested with EventCapture.
	InteractiveStem string

	// CameraSpeed is the distance moved per EventMove step.
	CameraSpeed float64
	// Radius refits the near and far planes after a camera move when
	// positive.
	Radius float64

	FrameRate float64
	Input     <-chan Event
	Logger    *slog.Logger
}

// Controller owns the loop state. It must be driven from one goroutine.
type Controller struct {
	renderer  render.Renderer
	cam       *camera.Model
	writer    ScanWriter
	transport stream.Transport
	streaming bool
	frequency int

	rot  camera.Rotation
	rate camera.Rotation

	outputStem      string
	interactiveStem string
	cameraSpeed     float64
	radius          float64
	interval        time.Duration
	input           <-chan Event
	logger          *slog.Logger
	now             func() time.Time

	last      time.Time
	counter   int
	captures  int
	published int
	armed     bool
	captureRq bool
	preview   *render.DepthBuffer
}

// New validates cfg and returns a controller at frame zero.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Renderer == nil:
		return nil, errors.New("capture: renderer is required")
	case cfg.Camera == nil:
		return nil, errors.New("capture: camera is required")
	case cfg.Writer == nil:
		return nil, errors.New("capture: writer is required")
	case cfg.Frequency < 1:
		return nil, fmt.Errorf("capture: frequency must be positive, got %d", cfg.Frequency)
	}
	if cfg.Transport == nil {
		cfg.Transport = stream.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.InteractiveStem == "" {
		cfg.InteractiveStem = "buffer"
	}
	interval := time.Second / 60
	if cfg.FrameRate > 0 && !math.IsInf(cfg.FrameRate, 0) {
		interval = time.Duration(float64(time.Second) / cfg.FrameRate)
	}
	return &Controller{
		renderer:        cfg.Renderer,
		cam:             cfg.Camera,
		writer:          cfg.Writer,
		transport:       cfg.Transport,
		streaming:       cfg.Streaming,
		frequency:       cfg.Frequency,
		rot:             cfg.Rotation,
		rate:            cfg.Rate,
		outputStem:      cfg.OutputStem,
		interactiveStem: cfg.InteractiveStem,
		cameraSpeed:     cfg.CameraSpeed,
		radius:          cfg.Radius,
		interval:        interval,
		input:           cfg.Input,
		logger:          cfg.Logger,
		now:             time.Now,
	}, nil
}

func (c *Controller) Rotation() camera.Rotation { return c.rot }
func (c *Controller) Camera() *camera.Model     { return c.cam }
func (c *Controller) Counter() int              { return c.counter }

// Preview returns the buffer rendered by the last tick.
func (c *Controller) Preview() *render.DepthBuffer { return c.preview }

// Tick runs one loop iteration at time now. It returns true when the loop
// must stop. A non-nil error is always fatal.
func (c *Controller) Tick(now time.Time) (bool, error) {
	var dt float64
	if !c.last.IsZero() {
		dt = now.Sub(c.last).Seconds()
	}
	c.last = now

	c.drainFailures()
	if c.handleEvents() {
		return true, nil
	}

	var finished bool
	switch {
	case c.armed:
		if err := c.capture(c.outputStem, now); err != nil {
			return true, err
		}
		finished = true
	case c.captureRq:
		c.captureRq = false
		stem := fmt.Sprintf("%s_%d", c.interactiveStem, c.captures)
		if err := c.capture(stem, now); err != nil {
			var rerr renderError
			if errors.As(err, &rerr) {
				return true, err
			}
			c.logger.Error("Capture failed", slog.Any("error", err))
		}
	}

	c.rot = c.rot.Advance(c.rate, dt)

	if c.streaming {
		buf, err := c.renderer.Render(c.cam, c.rot, false)
		if err != nil {
			return true, err
		}
		c.preview = buf
		if c.counter == c.frequency {
			c.publish(buf, now)
			c.counter = 0
		}
	} else {
		buf, err := c.renderer.Render(c.cam, c.rot, true)
		if err != nil {
			return true, err
		}
		c.preview = buf
	}

	if c.outputStem != "" {
		c.armed = true
	}
	c.counter++
	return finished, nil
}

// Run ticks at the configured frame rate until the loop finishes, a fatal
// error occurs or ctx is cancelled. Cancellation is not an error.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		done, err := c.Tick(c.now())
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type renderError struct{ error }

func (e renderError) Unwrap() error { return e.error }

func (c *Controller) capture(stem string, now time.Time) error {
	buf, err := c.renderer.Render(c.cam, c.rot, false)
	if err != nil {
		return renderError{err}
	}
	s := scan.Extract(buf, c.cam, c.rot)
	s.Stamp(c.captures, now)
	c.captures++

	pcdPath, err := c.writer.WritePoints(s, stem)
	if err != nil {
		return err
	}
	yamlPath, err := c.writer.WriteMetadata(s, stem)
	if err != nil {
		return err
	}
	c.logger.Info("Scan captured",
		slog.String("points", pcdPath),
		slog.String("metadata", yamlPath),
		slog.Int("count", s.Len()),
	)
	return nil
}

func (c *Controller) publish(buf *render.DepthBuffer, now time.Time) {
	s := scan.Extract(buf, c.cam, c.rot)
	s.Stamp(c.published, now)
	err := c.transport.Publish(s)
	switch {
	case err == nil:
		c.published++
		c.logger.Debug("Scan published", slog.Int("index", s.Index), slog.Int("points", s.Len()))
	case errors.Is(err, stream.ErrNotStreaming):
		c.logger.Debug("Scan dropped, no subscriber")
	default:
		c.logger.Warn("Publish failed", slog.Any("error", err))
	}
}

func (c *Controller) drainFailures() {
	ch := c.transport.Failures()
	if ch == nil {
		return
	}
	for {
		select {
		case err := <-ch:
			c.logger.Warn("Stream send failed", slog.Any("error", err))
		default:
			return
		}
	}
}

// handleEvents applies pending input and reports whether quit was asked.
func (c *Controller) handleEvents() bool {
	if c.input == nil {
		return false
	}
	for {
		select {
		case e, ok := <-c.input:
			if !ok {
				c.input = nil
				return false
			}
			if c.handle(e) {
				return true
			}
		default:
			return false
		}
	}
}

func (c *Controller) handle(e Event) bool {
	switch e.Kind {
	case EventQuit:
		c.logger.Info("Quit requested")
		return true
	case EventCapture:
		c.captureRq = true
	case EventMove:
		c.move(e.Delta * c.cameraSpeed)
	case EventProbe:
		c.probe(e.X, e.Y)
	case EventSnapshot:
		if err := c.snapshot(e.Path); err != nil {
			c.logger.Error("Snapshot failed", slog.String("path", e.Path), slog.Any("error", err))
		}
	default:
		c.logger.Warn("Unknown event", slog.String("kind", e.Kind.String()))
	}
	return false
}

func (c *Controller) move(delta float64) {
	cam, err := c.cam.WithDistance(c.cam.Distance() + delta)
	if err == nil && c.radius > 0 {
		cam, err = cam.WithPlanes(camera.FitPlanes(cam.Distance(), c.radius))
	}
	if err != nil {
		c.logger.Warn("Camera move rejected", slog.Float64("delta", delta), slog.Any("error", err))
		return
	}
	c.cam = cam
	c.logger.Info("Camera moved",
		slog.Float64("distance", cam.Distance()),
		slog.Float64("near", cam.Near()),
		slog.Float64("far", cam.Far()),
	)
}

func (c *Controller) probe(x, y float64) {
	buf, err := c.renderer.Render(c.cam, c.rot, false)
	if err != nil {
		c.logger.Error("Probe render failed", slog.Any("error", err))
		return
	}
	attrs := []any{
		slog.Float64("x", x),
		slog.Float64("y", y),
		slog.Float64("camera_z", c.cam.Distance()),
		slog.Float64("near", c.cam.Near()),
		slog.Float64("far", c.cam.Far()),
	}
	ix, iy := int(math.Floor(x)), int(math.Floor(y))
	if !buf.InBounds(ix, iy) {
		c.logger.Info("Probe outside of view", attrs...)
		return
	}
	d := buf.At(ix, iy)
	if !scan.IsHit(d) {
		c.logger.Info("Probe hit background", attrs...)
		return
	}
	p := c.cam.Unproject(x, y, float64(d))
	attrs = append(attrs,
		slog.Float64("depth", float64(d)),
		slog.Any("position", []float64{p[0], p[1], p[2]}),
	)
	c.logger.Info("Probe", attrs...)
}

func (c *Controller) snapshot(path string) error {
	if c.preview == nil || c.preview.Color == nil {
		return ErrNoPreview
	}
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, c.preview.Color); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.logger.Info("Snapshot written", slog.String("path", path))
	return nil
}

func encoderFor(path string) (func(io.Writer, image.Image) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode, nil
	case ".bmp":
		return bmp.Encode, nil
	case ".tif", ".tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	}
	return nil, fmt.Errorf("capture: unsupported snapshot format %q", filepath.Ext(path))
}

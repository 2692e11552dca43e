// Command lidarsim renders a mesh into a depth buffer and turns it into
// synthetic LiDAR point clouds, written as PCD files or streamed over
// ZeroMQ.
//
// Usage:
//
//	lidarsim [-config sim.yaml] [-v] [model scale rx ry rz irx iry irz distance width height fov (-f stem | -p port) frequency]
//
// Commands read from stdin while running:
//
//	save               write the current view to <interactive_stem>_<n>.pcd
//	move <seconds>     move the camera by seconds*camera_speed
//	click <x> <y>      print the surface position under a pixel
//	snapshot <file>    write the last preview frame (.png, .bmp, .tiff)
//	quit               exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seqsense/lidarsim/camera"
	"github.com/seqsense/lidarsim/capture"
	"github.com/seqsense/lidarsim/config"
	"github.com/seqsense/lidarsim/pcd"
	"github.com/seqsense/lidarsim/render"
	"github.com/seqsense/lidarsim/stream"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

func run(args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("lidarsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML settings file, overridden by positional arguments")
	verbose := fs.Bool("v", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: lidarsim [flags] [model scale rx ry rz irx iry irz distance width height fov (-f stem | -p port) frequency]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			logger.Error("Failed to load config", slog.Any("error", err))
			return 1
		}
	}
	if err := cfg.ParseArgs(fs.Args()); err != nil {
		logger.Error("Invalid arguments", slog.Any("error", err))
		fs.Usage()
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := simulate(ctx, cfg, stdin, logger); err != nil {
		logger.Error("Simulation failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func simulate(ctx context.Context, cfg *config.Config, stdin io.Reader, logger *slog.Logger) error {
	logger.Info("Loading model", slog.String("path", cfg.Model), slog.Float64("scale", cfg.Scale))
	mesh, err := render.LoadOBJFile(cfg.Model)
	if err != nil {
		return err
	}
	rast, err := render.NewRasterizer(mesh,
		render.WithScale(cfg.Scale),
		render.WithColor(true),
		render.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	near, far := camera.FitPlanes(cfg.Distance, rast.Radius())
	cam, err := camera.Build(cfg.FOV, near, far, cfg.Distance, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	logger.Debug("Camera ready",
		slog.Float64("fov", cam.FOV()),
		slog.Float64("near", cam.Near()),
		slog.Float64("far", cam.Far()),
		slog.Float64("distance", cam.Distance()),
	)

	format, err := pcd.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	var transport stream.Transport = stream.Nop{}
	if cfg.Streaming() {
		pub, err := stream.Listen(ctx, cfg.Port, stream.Options{
			Reserved:  cfg.ReservedChannel,
			QueueSize: cfg.SendQueue,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Failed to close publisher", slog.Any("error", err))
			}
		}()
		if err := pub.AwaitSubscriber(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		transport = pub
	}

	events := make(chan capture.Event, 16)
	con := &console{events: events, logger: logger}
	go con.Serve(ctx, stdin)

	ctrl, err := capture.New(capture.Config{
		Renderer:        rast,
		Camera:          cam,
		Writer:          &pcd.Writer{Format: format, Logger: logger},
		Transport:       transport,
		Streaming:       cfg.Streaming(),
		Frequency:       cfg.Frequency,
		Rotation:        camera.Rotation(cfg.InitialRotation),
		Rate:            camera.Rotation(cfg.RotationRate),
		OutputStem:      cfg.Output,
		InteractiveStem: cfg.InteractiveStem,
		CameraSpeed:     cfg.CameraSpeed,
		Radius:          rast.Radius(),
		FrameRate:       cfg.FrameRate,
		Input:           events,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	return ctrl.Run(ctx)
}

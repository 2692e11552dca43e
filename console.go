package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/seqsense/lidarsim/capture"
)

type console struct {
	events chan<- capture.Event
	logger *slog.Logger
}

var errArgumentNumber = errors.New("invalid number of arguments")
var errInvalidCommand = errors.New("invalid command")

var consoleCommands = map[string]func(args []string) (capture.Event, error){
	"save": func(args []string) (capture.Event, error) {
		if len(args) != 0 {
			return capture.Event{}, errArgumentNumber
		}
		return capture.Event{Kind: capture.EventCapture}, nil
	},
	"quit": func(args []string) (capture.Event, error) {
		if len(args) != 0 {
			return capture.Event{}, errArgumentNumber
		}
		return capture.Event{Kind: capture.EventQuit}, nil
	},
	"move": func(args []string) (capture.Event, error) {
		v, err := parseFloats(args, 1)
		if err != nil {
			return capture.Event{}, err
		}
		return capture.Event{Kind: capture.EventMove, Delta: v[0]}, nil
	},
	"click": func(args []string) (capture.Event, error) {
		v, err := parseFloats(args, 2)
		if err != nil {
			return capture.Event{}, err
		}
		return capture.Event{Kind: capture.EventProbe, X: v[0], Y: v[1]}, nil
	},
	"snapshot": func(args []string) (capture.Event, error) {
		if len(args) != 1 {
			return capture.Event{}, errArgumentNumber
		}
		return capture.Event{Kind: capture.EventSnapshot, Path: args[0]}, nil
	},
}

func parseFloats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, errArgumentNumber
	}
	v := make([]float64, n)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	return v, nil
}

// Parse converts a command line into an event. Empty lines yield ok=false.
func (c *console) Parse(line string) (e capture.Event, ok bool, err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return capture.Event{}, false, nil
	}
	fn, ok := consoleCommands[args[0]]
	if !ok {
		return capture.Event{}, false, errInvalidCommand
	}
	e, err = fn(args[1:])
	if err != nil {
		return capture.Event{}, false, err
	}
	return e, true, nil
}

// Serve reads commands from r until EOF or ctx is done.
func (c *console) Serve(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		e, ok, err := c.Parse(line)
		if err != nil {
			c.logger.Warn("Ignoring command", slog.String("line", line), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		select {
		case c.events <- e:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		c.logger.Warn("Console input failed", slog.Any("error", err))
	}
}

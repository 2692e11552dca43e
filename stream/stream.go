// Package stream publishes scans to a remote subscriber.
//
// The wire format is the raw point array: little-endian float32 x, y, z per
// point, followed by one zero float per point when the reserved channel is
// enabled. There is no header.
package stream

import (
	"errors"
	"fmt"

	"github.com/seqsense/lidarsim/scan"
)

var (
	ErrNotStreaming = errors.New("stream: no subscriber yet")
	ErrClosed       = errors.New("stream: transport closed")
)

// Transport delivers scans produced by the capture loop.
type Transport interface {
	// Publish hands s to the transport. It blocks only for the local
	// handoff and never waits for delivery.
	Publish(s *scan.Scan) error
	// Failures reports asynchronous send failures. It may return nil when
	// the transport never fails.
	Failures() <-chan error
	Close() error
}

// SendError is reported on Failures when a message could not be sent.
type SendError struct {
	Index int
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("stream: send message %d: %v", e.Index, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Nop is the transport used when streaming is disabled.
type Nop struct{}

func (Nop) Publish(*scan.Scan) error { return nil }
func (Nop) Failures() <-chan error   { return nil }
func (Nop) Close() error             { return nil }

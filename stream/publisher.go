package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"

	"github.com/seqsense/lidarsim/scan"
)

type State int32

const (
	AwaitingSubscriber State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case AwaitingSubscriber:
		return "AwaitingSubscriber"
	case Streaming:
		return "Streaming"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const (
	defaultQueueSize    = 4
	defaultFailureQueue = 16
)

// Options configures a Publisher.
type Options struct {
	// Reserved appends a zero float after each point.
	Reserved bool
	// QueueSize is the number of messages waiting for the sender.
	QueueSize int
	Logger    *slog.Logger
}

// sender is the part of a socket used by the send goroutine.
type sender interface {
	Send(msg zmq4.Msg) error
	Close() error
}

// Publisher is a ZeroMQ publisher gated by a one-shot rendezvous. Scans
// are only sent after a subscriber completed the handshake on the sync
// socket.
type Publisher struct {
	pub        sender
	rendezvous zmq4.Socket
	reserved   bool
	logger     *slog.Logger

	state    atomic.Int32
	queue    chan *message
	failures chan error
	done     chan struct{}

	mu     sync.Mutex
	closed bool
	sent   int
}

// Listen binds the data socket to tcp://*:port and the sync socket to
// tcp://*:port+1. The returned publisher is AwaitingSubscriber.
func Listen(ctx context.Context, port int, opts Options) (*Publisher, error) {
	if port <= 0 || port >= 65535 {
		return nil, fmt.Errorf("stream: invalid port %d", port)
	}
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(fmt.Sprintf("tcp://*:%d", port)); err != nil {
		pub.Close()
		return nil, fmt.Errorf("stream: listen data socket on port %d: %w", port, err)
	}
	rep := zmq4.NewRep(ctx)
	if err := rep.Listen(fmt.Sprintf("tcp://*:%d", port+1)); err != nil {
		rep.Close()
		pub.Close()
		return nil, fmt.Errorf("stream: listen sync socket on port %d: %w", port+1, err)
	}
	p := newPublisher(pub, opts)
	p.rendezvous = rep
	p.logger.Info("Waiting for subscriber",
		slog.Int("port", port),
		slog.Int("sync_port", port+1),
	)
	return p, nil
}

func newPublisher(pub sender, opts Options) *Publisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		pub:      pub,
		reserved: opts.Reserved,
		logger:   opts.Logger,
		queue:    make(chan *message, opts.QueueSize),
		failures: make(chan error, defaultFailureQueue),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) State() State {
	return State(p.state.Load())
}

// AwaitSubscriber blocks until a subscriber sends its sync request, then
// acknowledges it with an empty frame. Once it returns nil the publisher
// is Streaming for the rest of its life.
func (p *Publisher) AwaitSubscriber(ctx context.Context) error {
	if p.State() == Streaming {
		return nil
	}
	if p.rendezvous == nil {
		return errors.New("stream: no sync socket")
	}
	errCh := make(chan error, 1)
	go func() {
		if _, err := p.rendezvous.Recv(); err != nil {
			errCh <- fmt.Errorf("stream: receive sync request: %w", err)
			return
		}
		if err := p.rendezvous.Send(zmq4.NewMsg([]byte{})); err != nil {
			errCh <- fmt.Errorf("stream: send sync reply: %w", err)
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	p.state.Store(int32(Streaming))
	p.logger.Info("Subscriber connected")
	return nil
}

// Publish encodes s into a new buffer and queues it for sending.
// Before the handshake it returns ErrNotStreaming and sends nothing.
func (p *Publisher) Publish(s *scan.Scan) error {
	if p.State() != Streaming {
		return ErrNotStreaming
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	m := newMessage(p.sent, s, p.reserved)
	p.sent++
	p.queue <- m
	return nil
}

func (p *Publisher) Failures() <-chan error {
	return p.failures
}

func (p *Publisher) run() {
	defer close(p.done)
	for m := range p.queue {
		if err := p.pub.Send(zmq4.NewMsg(m.payload)); err != nil {
			p.report(&SendError{Index: m.index, Err: err})
			continue
		}
		p.logger.Debug("Scan queued", slog.Int("index", m.index), slog.Int("bytes", len(m.payload)))
	}
}

func (p *Publisher) report(err error) {
	select {
	case p.failures <- err:
	default:
		p.logger.Warn("Dropping send failure report", slog.Any("error", err))
	}
}

// Close sends the queued messages and closes both sockets.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	errs := []error{p.pub.Close()}
	if p.rendezvous != nil {
		errs = append(errs, p.rendezvous.Close())
	}
	return errors.Join(errs...)
}

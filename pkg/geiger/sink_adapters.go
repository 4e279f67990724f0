package geiger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("geiger: channel sink closed")

// MeasurementHandler receives every measurement dispatched to a callback sink.
type MeasurementHandler func(context.Context, Measurement) error

// NewCallbackSink adapts a MeasurementHandler into a full Sink implementation so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn MeasurementHandler) Sink {
	if name == "" {
		name = "callback"
	}
	s := &callbackSink{name: name, fn: fn}
	s.enabled.Store(true)
	return s
}

// NewChannelSink exposes measurements via a channel; it returns the sink, the read-only channel,
// and a close function that the caller may invoke during shutdown. The channel is
// closed when either the close function or the sink's Close runs.
func NewChannelSink(name string, buffer int) (Sink, <-chan Measurement, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Measurement, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, s.close
}

type callbackSink struct {
	name    string
	fn      MeasurementHandler
	enabled atomic.Bool
}

func (s *callbackSink) Update(ctx context.Context, m Measurement) error {
	if s.fn == nil {
		return fmt.Errorf("%w: callback sink %q: nil handler", ErrSink, s.name)
	}
	return s.fn(ctx, m)
}

func (s *callbackSink) Name() string  { return s.name }
func (s *callbackSink) Enabled() bool { return s.enabled.Load() }

func (s *callbackSink) Close() error {
	s.enabled.Store(false)
	return nil
}

type channelSink struct {
	name   string
	ch     chan Measurement
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (s *channelSink) Update(ctx context.Context, m Measurement) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: channel sink %q: %v", ErrSink, s.name, ctx.Err())
	case s.ch <- m:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) Enabled() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *channelSink) Close() error {
	s.close()
	return nil
}

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		// wait for in-flight senders before closing the data channel
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

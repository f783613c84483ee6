package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 5 * time.Second
)

// Dispatcher fans events out to sinks on a background goroutine so callers
// never block on sink I/O. When the queue is full new events are dropped.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts a dispatcher. A nil logger falls back to slog.Default.
func NewDispatcher(logger *slog.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		timeout: DefaultSendTimeout,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Publish enqueues e. It reports false when the dispatcher is closed or full.
func (d *Dispatcher) Publish(e Event) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || len(d.sinks) == 0 {
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("history queue full, dropping event", "type", e.Type, "pid", e.Task.PID)
		return false
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for e := range d.queue {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, e); err != nil {
				d.logger.Warn("history sink send failed", "type", e.Type, "pid", e.Task.PID, "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting events, drains the queue and closes sinks that
// implement io.Closer. It waits for the drain or ctx, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, s := range d.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				d.logger.Warn("history sink close failed", "error", err)
			}
		}
	}
	return nil
}

// Package dispatcher routes UI and API commands to their handlers.
//
// Handlers can run inline, on a shared serial event loop (so map and overlay
// mutations never interleave), or asynchronously behind a bounded queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spaceweb/impactsim/internal/logging"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

// Event is one inbound command, e.g. ":MAP:CLICK:" with ["40.7","-74.0"].
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
	serial     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Serial runs the handler on the dispatcher's event loop; Dispatch waits for
// its result. Serial handlers never run concurrently with each other and must
// not dispatch serial commands themselves.
func Serial() Option {
	return func(c *config) {
		c.serial = true
	}
}

type loopRequest struct {
	event Event
	h     HandlerFunc
	reply chan loopReply
}

type loopReply struct {
	result any
	err    error
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   logging.Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	mu      sync.RWMutex
	buffers map[string]chan Event
	closed  bool
	workers sync.WaitGroup

	loop     chan loopRequest
	loopOnce sync.Once
	done     chan struct{}
}

// New creates a Dispatcher. Metrics go to the global OTel meter (no-op if not configured).
func New(logger logging.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
		loop:     make(chan loopRequest),
		done:     make(chan struct{}),
	}

	if err := d.instrument(meter()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) instrument(m metric.Meter) error {
	var err error
	if d.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Commands handled off the caller's goroutine")); err != nil {
		return fmt.Errorf("processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Commands rejected by a full queue")); err != nil {
		return fmt.Errorf("dropped counter: %w", err)
	}
	if d.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Commands waiting per queue")); err != nil {
		return fmt.Errorf("queue gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, buf := range d.buffers {
			o.ObserveInt64(d.queueSize, int64(len(buf)), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, d.queueSize)
	if err != nil {
		return fmt.Errorf("queue gauge callback: %w", err)
	}
	return nil
}

// Register adds a handler for the given command. Register all handlers
// before the first Dispatch.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	switch {
	case cfg.serial:
		handler = d.withLoop(command, handler)
	case cfg.bufferSize > 0:
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler, stamping it if needed.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Close stops accepting events, drains every buffered queue and stops the
// event loop. It returns early with ctx's error if draining takes too long.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	close(d.done)

	drained := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) withLoop(command string, h HandlerFunc) HandlerFunc {
	d.loopOnce.Do(func() { go d.runLoop() })
	cmdAttr := attribute.String("command", command)

	return func(e Event) (any, error) {
		reply := make(chan loopReply, 1)
		select {
		case d.loop <- loopRequest{event: e, h: h, reply: reply}:
		case <-d.done:
			return nil, ErrClosed
		}
		r := <-reply
		d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		return r.result, r.err
	}
}

func (d *Dispatcher) runLoop() {
	for {
		select {
		case req := <-d.loop:
			result, err := req.h(req.event)
			req.reply <- loopReply{result: result, err: err}
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("queued event failed", "command", command, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		}
	}()

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}

		if blocking {
			buffer <- e
			return "queued", nil
		}

		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}

// Package worker records every successful launch into the impact history.
package worker

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
)

// CmdRecordImpact carries one JSON-encoded core.ImpactRecord.
const CmdRecordImpact = ":RECORD:IMPACT:"

// DefaultBufferSize bounds the number of launches waiting to be recorded.
const DefaultBufferSize = 1000

// Sink receives every impact after the storage backend accepted it.
type Sink interface {
	WriteImpact(core.ImpactRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(core.ImpactRecord) error

func (f SinkFunc) WriteImpact(r core.ImpactRecord) error { return f(r) }

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger     logging.Logger
	Parser     *parser.Parser
	Backend    storage.Backend
	Sinks      []Sink
	BufferSize int
}

// Manager records launches asynchronously through the dispatcher.
type Manager struct {
	deps     Dependencies
	recorded atomic.Uint64
	failed   atomic.Uint64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = logging.Nop{}
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(nil, nil)
	}
	if deps.BufferSize <= 0 {
		deps.BufferSize = DefaultBufferSize
	}
	return &Manager{deps: deps}
}

// RegisterHandlers registers the recording handler with the dispatcher.
// Recording is buffered so a slow database never holds up the map.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdRecordImpact, m.handleRecordImpact, dispatcher.Buffered(m.deps.BufferSize), dispatcher.Logged())
}

// Watch turns every EventLaunched published by c into a :RECORD:IMPACT: event.
func (m *Manager) Watch(c *overlay.Coordinator, d *dispatcher.Dispatcher) (cancel func()) {
	return c.Subscribe(func(s overlay.Snapshot) {
		if s.Event != overlay.EventLaunched || s.Result == nil || s.Parameters == nil {
			return
		}
		if err := m.Enqueue(d, core.NewImpactRecord(*s.Parameters, *s.Result)); err != nil {
			m.deps.Logger.Warn("Launch not recorded", "error", err)
		}
	})
}

// Enqueue dispatches rec for recording.
func (m *Manager) Enqueue(d *dispatcher.Dispatcher, rec core.ImpactRecord) error {
	args, err := parser.FormatImpactRecord(rec)
	if err != nil {
		return fmt.Errorf("encode impact record: %w", err)
	}
	_, err = d.Dispatch(dispatcher.Event{Command: CmdRecordImpact, Args: args})
	return err
}

func (m *Manager) handleRecordImpact(e dispatcher.Event) (any, error) {
	rec, err := m.deps.Parser.ParseImpactRecord(e.Args)
	if err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("failed to record impact: %w", err)
	}

	if m.deps.Backend != nil {
		if err := m.deps.Backend.RecordImpact(&rec); err != nil {
			m.failed.Add(1)
			return nil, fmt.Errorf("failed to store impact %s: %w", rec.ID, err)
		}
	}

	var sinkErrs []error
	for _, s := range m.deps.Sinks {
		if err := s.WriteImpact(rec); err != nil {
			sinkErrs = append(sinkErrs, err)
		}
	}
	m.recorded.Add(1)

	if err := errors.Join(sinkErrs...); err != nil {
		return rec.ID, fmt.Errorf("impact %s stored, sinks failed: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Stats returns how many impacts were recorded and how many failed.
func (m *Manager) Stats() (recorded, failed uint64) {
	return m.recorded.Load(), m.failed.Load()
}

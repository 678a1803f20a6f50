// Package websocket implements a storage.Backend that streams each recorded impact
// to a remote history collector.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/spaceweb/impactsim/pkg/streaming"
)

// DefaultKeep is how many sent records ListImpacts can return.
const DefaultKeep = 500

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
	Keep   int
}

// Backend streams impact records to a collector and keeps a local tail of what it sent.
type Backend struct {
	conn *connection
	cfg  Config

	mu     sync.RWMutex
	sent   []core.ImpactRecord
	closed bool
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Nop{}
	}
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects and waits for the collector to acknowledge the session.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	hello, err := streaming.Marshal(streaming.TypeHello, streaming.HelloPayload{
		Service:   logging.ServiceName,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	b.conn.mu.Lock()
	b.conn.hello = hello
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(hello, streaming.TypeHello, ackTimeout)
}

// Close ends the session once the collector has everything queued before it.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var ackErr error
	if data, err := streaming.Marshal(streaming.TypeGoodbye, struct{}{}); err == nil {
		ackErr = b.conn.sendAndWait(data, streaming.TypeGoodbye, ackTimeout)
	}
	if err := b.conn.close(); err != nil {
		return err
	}
	return ackErr
}

// RecordImpact sends the record without waiting for the collector.
func (b *Backend) RecordImpact(r *core.ImpactRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}

	data, err := streaming.Marshal(streaming.TypeImpact, streaming.ImpactPayload{Record: *r})
	if err != nil {
		return err
	}
	b.conn.send(data)

	b.sent = append(b.sent, *r)
	if len(b.sent) > b.cfg.Keep {
		b.sent = append([]core.ImpactRecord(nil), b.sent[len(b.sent)-b.cfg.Keep:]...)
	}
	return nil
}

// ListImpacts returns the records sent during this session, newest first.
func (b *Backend) ListImpacts(_ context.Context, limit int) ([]core.ImpactRecord, error) {
	b.mu.RLock()
	out := make([]core.ImpactRecord, len(b.sent))
	copy(out, b.sent)
	b.mu.RUnlock()
	return storage.Newest(out, limit), nil
}

// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
)

// Backend keeps the impact history in memory and exports it to JSON on Close
type Backend struct {
	cfg       config.MemoryConfig
	startedAt time.Time
	records   []core.ImpactRecord

	lastExportPath string
	closed         bool
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:       cfg,
		startedAt: time.Now().UTC(),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the collected history. A backend with no records writes nothing.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if len(b.records) == 0 || b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// RecordImpact appends a copy of the record
func (b *Backend) RecordImpact(r *core.ImpactRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}
	b.records = append(b.records, *r)
	return nil
}

// ListImpacts returns the newest records first
func (b *Backend) ListImpacts(_ context.Context, limit int) ([]core.ImpactRecord, error) {
	b.mu.RLock()
	out := make([]core.ImpactRecord, len(b.records))
	copy(out, b.records)
	b.mu.RUnlock()

	return storage.Newest(out, limit), nil
}

// Len returns the number of recorded impacts
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// GetExportedFilePath returns the path of the last export, empty before Close.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Package storage defines the impact history backends share.
package storage

import (
	"context"
	"errors"
	"slices"

	"github.com/spaceweb/impactsim/pkg/core"
)

// ErrClosed is returned when recording into a backend after Close.
var ErrClosed = errors.New("storage backend closed")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// RecordImpact stores one successful launch. Writes may be deferred.
	RecordImpact(r *core.ImpactRecord) error

	// ListImpacts returns the newest records first. limit <= 0 returns everything.
	ListImpacts(ctx context.Context, limit int) ([]core.ImpactRecord, error)
}

// Flusher is implemented by backends that batch writes.
type Flusher interface {
	Flush() error
}

// Exportable is an optional interface for storage backends that produce
// a history file when closed.
type Exportable interface {
	GetExportedFilePath() string
}

// Newest sorts records newest first and applies limit, in place.
func Newest(records []core.ImpactRecord, limit int) []core.ImpactRecord {
	slices.SortStableFunc(records, func(a, b core.ImpactRecord) int {
		return b.LaunchedAt.Compare(a.LaunchedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

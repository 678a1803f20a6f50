// Package gormstorage implements the storage.Backend interface on top of GORM
// with an internal write queue drained by a background writer goroutine.
// The SQLite and Postgres backends embed it and only add connection handling.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaceweb/impactsim/internal/database"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/model"
	"github.com/spaceweb/impactsim/internal/model/convert"
	"github.com/spaceweb/impactsim/internal/queue"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"

	"gorm.io/gorm"
)

// DefaultWriteInterval is how often queued impacts are written.
const DefaultWriteInterval = time.Second

// ErrNoDatabase is returned by Init when neither DB nor Connect was provided.
var ErrNoDatabase = errors.New("no database configured")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Connect       func() (*gorm.DB, error) // used by Init when DB is nil
	Logger        logging.Logger
	ServiceName   string
	WriteInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	pending  *queue.Queue[model.Impact]
	writeMu  sync.Mutex
	closed   atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = logging.Nop{}
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:    deps,
		pending: queue.New[model.Impact](),
	}
}

// Init connects if needed, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		if b.deps.Connect == nil {
			return ErrNoDatabase
		}
		db, err := b.deps.Connect()
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		b.deps.DB = db
	}

	if err := database.Migrate(b.deps.DB, b.deps.ServiceName); err != nil {
		b.deps.Logger.Error("Failed to migrate impact history", "error", err)
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// DB returns the connection the backend writes to. Nil before Init when Connect is used.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Close stops the writer and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
	}
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// RecordImpact queues a record for the next write cycle.
func (b *Backend) RecordImpact(r *core.ImpactRecord) error {
	if b.closed.Load() {
		return storage.ErrClosed
	}
	b.pending.Push(convert.CoreToImpact(*r))
	return nil
}

// Pending returns the number of queued records not yet written.
func (b *Backend) Pending() int {
	return b.pending.Len()
}

// Flush writes all queued records now.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return writeQueue(b.deps.DB, b.pending, "impacts", b.deps.Logger)
}

// ListImpacts flushes pending writes and reads the newest rows.
func (b *Backend) ListImpacts(ctx context.Context, limit int) ([]core.ImpactRecord, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	if !b.closed.Load() {
		if err := b.Flush(); err != nil {
			return nil, err
		}
	}

	q := b.deps.DB.WithContext(ctx).Order("launched_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.Impact
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list impacts: %w", err)
	}
	return convert.ImpactsToCore(rows)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches are requeued for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log logging.Logger) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating "+name, "error", err, "count", len(items))
		tx.Rollback()
		q.Requeue(items)
		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.Requeue(items)
		return fmt.Errorf("commit %s: %w", name, err)
	}
	log.Debug("Wrote "+name, "count", len(items))
	return nil
}

// writerLoop periodically drains the queue into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}

// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating the
// in-memory DB and the periodic disk dump.
package sqlitestorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaceweb/impactsim/internal/database"
	"github.com/spaceweb/impactsim/internal/logging"
	gormstorage "github.com/spaceweb/impactsim/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval  time.Duration
	DumpPath      string // Path for periodic VACUUM INTO dumps
	WriteInterval time.Duration
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      logging.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a new SQLite storage backend on a private in-memory database.
func New(cfg Config, logger logging.Logger) (*Backend, error) {
	if logger == nil {
		logger = logging.Nop{}
	}

	db, err := database.OpenSQLite(memoryDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        logger,
		ServiceName:   logging.ServiceName,
		WriteInterval: cfg.WriteInterval,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// memoryDSN names the in-memory database so separate backends never share one.
func memoryDSN() string {
	return fmt.Sprintf("file:impactsim-%s?mode=memory&cache=shared", uuid.NewString())
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes queued impacts and takes a final dump.
func (b *Backend) Close() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()

		if err = b.Backend.Close(); err != nil {
			return
		}
		if b.cfg.DumpPath != "" {
			err = b.Dump()
		}
		if sqlDB, dbErr := b.db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	})
	return err
}

// Dump writes a point-in-time snapshot of the database to DumpPath.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Flush(); err != nil {
				b.log.Error("Error writing queued impacts before dump", "error", err)
			}
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}

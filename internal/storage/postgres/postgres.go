// Package postgres implements the storage.Backend interface on PostgreSQL.
// When Postgres cannot be reached at Init the history falls back to a local SQLite file.
package postgres

import (
	"github.com/rs/zerolog"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/database"
	"github.com/spaceweb/impactsim/internal/logging"
	gormstorage "github.com/spaceweb/impactsim/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB           config.DBConfig
	FallbackPath string // SQLite file used when Postgres is unreachable
	Logger       logging.Logger
	DBLogger     zerolog.Logger
}

// Backend implements storage.Backend using GORM/PostgreSQL with queue-based batch writes.
type Backend struct {
	*gormstorage.Backend
	manager *database.Manager
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	b := &Backend{
		manager: database.NewManager(deps.DBLogger, deps.DB, deps.FallbackPath),
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		Connect:     b.connect,
		Logger:      deps.Logger,
		ServiceName: deps.DB.Database,
	})
	return b
}

func (b *Backend) connect() (*gorm.DB, error) {
	if err := b.manager.Connect(); err != nil {
		return nil, err
	}
	return b.manager.DB, nil
}

// UsingFallback reports whether Init fell back to local SQLite.
func (b *Backend) UsingFallback() bool {
	return b.manager.UsingFallback()
}

// Close writes queued impacts and releases the connection pool.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.manager.Close()
}

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is the shared in-memory SQLite database used when no path is given.
const MemoryDSN = "file::memory:?cache=shared"

// Manager owns the history database connection. It prefers Postgres and
// falls back to a SQLite file when Postgres cannot be reached.
type Manager struct {
	DB *gorm.DB

	cfg          config.DBConfig
	fallbackPath string
	sqlDB        *sql.DB
	fallback     bool
	log          zerolog.Logger
}

// NewManager creates a new database manager. fallbackPath is the SQLite file used
// when Postgres cannot be reached; empty means in memory.
func NewManager(log zerolog.Logger, cfg config.DBConfig, fallbackPath string) *Manager {
	return &Manager{cfg: cfg, fallbackPath: fallbackPath, log: log}
}

// Connect opens Postgres, or the SQLite fallback when Postgres does not answer a ping.
func (m *Manager) Connect() error {
	db, err := pinged(OpenPostgres(m.cfg))
	if err == nil {
		m.log.Info().Str("host", m.cfg.Host).Msg("Connected to Postgres")
		return m.use(db, false)
	}

	m.log.Error().Err(err).Msg("Postgres unavailable, falling back to SQLite")
	db, err = OpenSQLite(m.fallbackPath)
	if err != nil {
		return fmt.Errorf("open SQLite fallback: %w", err)
	}
	m.log.Info().Str("path", m.fallbackPath).Msg("Using local SQLite DB")
	return m.use(db, true)
}

func pinged(db *gorm.DB, err error) (*gorm.DB, error) {
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (m *Manager) use(db *gorm.DB, fallback bool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("access sql pool: %w", err)
	}
	if !fallback {
		sqlDB.SetMaxOpenConns(10)
	}
	m.DB, m.sqlDB, m.fallback = db, sqlDB, fallback
	return nil
}

// UsingFallback reports whether Connect ended up on SQLite.
func (m *Manager) UsingFallback() bool {
	return m.fallback
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.sqlDB == nil {
		return nil
	}
	return m.sqlDB.Close()
}

// PostgresDSN renders the libpq connection string for a DBConfig.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
}

// OpenPostgres returns a connection to the Postgres database.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite returns a connection to a SQLite database.
// If path is empty, uses a shared in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// Migrate creates the history tables and seeds the service_infos row once.
func Migrate(db *gorm.DB, serviceName string) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var count int64
	if err := db.Model(&model.ServiceInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read service_infos: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := db.Create(&model.ServiceInfo{
		ServiceName:    serviceName,
		SchemaVersion:  model.SchemaVersion,
		DefaultMapZoom: config.GetMapConfig().Zoom,
	}).Error; err != nil {
		return fmt.Errorf("failed to create service_infos entry: %w", err)
	}
	return nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	if dir := filepath.Dir(sqliteFilePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating DB dir: %w", err)
		}
	}

	// remove existing file if it exists
	if _, err := os.Stat(sqliteFilePath); err == nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	err := db.Exec("VACUUM INTO ?", sqliteFilePath).Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}

	return nil
}

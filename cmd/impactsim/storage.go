package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/internal/storage/memory"
	pgstorage "github.com/spaceweb/impactsim/internal/storage/postgres"
	sqlitestorage "github.com/spaceweb/impactsim/internal/storage/sqlite"
	wsstorage "github.com/spaceweb/impactsim/internal/storage/websocket"
)

// initStorage creates and initializes the configured history backend. When the
// backend cannot start, launches are still kept in memory for the session.
func initStorage(storageCfg config.StorageConfig, log logging.Logger, dbLog zerolog.Logger) storage.Backend {
	backend, err := createStorageBackend(storageCfg, log, dbLog)
	if err == nil {
		err = backend.Init()
	}
	if err != nil {
		log.Error("Failed to initialize storage backend, keeping history in memory", "type", storageCfg.Type, "error", err)
		backend = memory.New(storageCfg.Memory)
		_ = backend.Init()
	}
	return backend
}

func createStorageBackend(storageCfg config.StorageConfig, log logging.Logger, dbLog zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		log.Info("Postgres storage backend selected")
		return pgstorage.New(pgstorage.Dependencies{
			DB:           config.GetDBConfig(),
			FallbackPath: fallbackDBPath(storageCfg),
			Logger:       log,
			DBLogger:     dbLog,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		log.Info("SQLite storage backend selected", "dumpPath", storageCfg.SQLite.Path)
		return backend, nil

	case "websocket":
		log.Info("WebSocket storage backend selected", "url", storageCfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:    storageCfg.WebSocket.URL,
			Secret: storageCfg.WebSocket.Secret,
		}, log), nil

	case "memory", "":
		log.Info("Memory storage backend selected", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// fallbackDBPath puts the Postgres fallback file next to the SQLite dump,
// stamped with the session start so sessions never overwrite each other.
func fallbackDBPath(storageCfg config.StorageConfig) string {
	dir := filepath.Dir(storageCfg.SQLite.Path)
	return filepath.Join(dir, fmt.Sprintf("%s_%s.db", AppName, SessionStartTime.Format("20060102_150405")))
}

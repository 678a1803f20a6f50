package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host: "db", Port: "5433", Username: "u", Password: "p", Database: "impactsim",
	})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=impactsim sslmode=disable", dsn)
}

func TestOpenSQLite_MigrateIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	require.NoError(t, Migrate(db, "impactsim"))
	require.NoError(t, Migrate(db, "impactsim"))

	assert.True(t, db.Migrator().HasTable(&model.Impact{}))

	var infos []model.ServiceInfo
	require.NoError(t, db.Find(&infos).Error)
	require.Len(t, infos, 1)
	assert.Equal(t, "impactsim", infos[0].ServiceName)
	assert.Equal(t, model.SchemaVersion, infos[0].SchemaVersion)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenSQLite(filepath.Join(dir, "live.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db, "impactsim"))

	target := filepath.Join(dir, "dumps", "snapshot.db")
	require.NoError(t, DumpMemoryDBToDisk(db, target))
	_, err = os.Stat(target)
	require.NoError(t, err)

	// a second dump replaces the first
	require.NoError(t, DumpMemoryDBToDisk(db, target))

	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestManager_FallsBackToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	m := NewManager(zerolog.Nop(), config.DBConfig{
		Host: "127.0.0.1", Port: "1", Username: "nobody", Database: "impactsim",
	}, path)

	require.NoError(t, m.Connect())
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.UsingFallback())
	require.NoError(t, Migrate(m.DB, "impactsim"))
	assert.True(t, m.DB.Migrator().HasTable(&model.Impact{}))
}

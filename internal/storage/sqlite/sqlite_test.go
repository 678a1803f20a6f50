package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spaceweb/impactsim/internal/database"
	"github.com/spaceweb/impactsim/internal/model"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func impact() *core.ImpactRecord {
	return &core.ImpactRecord{
		ID:         uuid.New(),
		LaunchedAt: time.Now().UTC(),
		Parameters: core.AsteroidParameters{DiameterMeters: 10, VelocityKmPerSec: 20, ImpactAngleDegrees: 45, DensityKgM3: core.DensityIce},
		Result:     core.ImpactResult{Location: core.Selection{Latitude: 48.8566, Longitude: 2.3522}},
	}
}

func TestBackends_DoNotShareMemory(t *testing.T) {
	a, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	defer a.Close()

	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, a.RecordImpact(impact()))

	la, err := a.ListImpacts(context.Background(), 0)
	require.NoError(t, err)
	lb, err := b.ListImpacts(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, la, 1)
	assert.Empty(t, lb)
}

func TestClose_WritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "impacts.db")
	b, err := New(Config{DumpPath: path, DumpInterval: time.Hour, WriteInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordImpact(impact()))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&model.Impact{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpLoop_WritesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

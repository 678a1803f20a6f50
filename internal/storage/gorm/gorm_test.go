package gormstorage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/spaceweb/impactsim/internal/model"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Flusher = (*Backend)(nil)
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "history.db")), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestBackend(t *testing.T, interval time.Duration) *Backend {
	t.Helper()
	b := New(Dependencies{DB: openTestDB(t), ServiceName: "impactsim", WriteInterval: interval})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testRecord(at time.Time, diameter float64) *core.ImpactRecord {
	return &core.ImpactRecord{
		ID:         uuid.New(),
		LaunchedAt: at,
		Parameters: core.AsteroidParameters{
			DiameterMeters:     diameter,
			VelocityKmPerSec:   20,
			ImpactAngleDegrees: 45,
			DensityKgM3:        core.DensityRock,
		},
		Result: core.ImpactResult{
			Location:            core.Selection{Latitude: 35.6762, Longitude: 139.6503},
			EnergyMegatonsTNT:   75.0859,
			ShockwaveRadiusKm:   9.1486,
			EstimatedCasualties: 1314721,
		},
	}
}

func TestInit_NoDatabase(t *testing.T) {
	b := New(Dependencies{})
	assert.ErrorIs(t, b.Init(), ErrNoDatabase)
	assert.NoError(t, b.Close())
}

func TestInit_ConnectError(t *testing.T) {
	boom := errors.New("boom")
	b := New(Dependencies{Connect: func() (*gorm.DB, error) { return nil, boom }})
	assert.ErrorIs(t, b.Init(), boom)
}

func TestInit_UsesConnect(t *testing.T) {
	db := openTestDB(t)
	b := New(Dependencies{Connect: func() (*gorm.DB, error) { return db, nil }})
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Same(t, db, b.DB())
	assert.True(t, db.Migrator().HasTable(&model.Impact{}))
}

func TestRecordImpact_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t, time.Hour)

	require.NoError(t, b.RecordImpact(testRecord(time.Now().UTC(), 100)))
	assert.Equal(t, 1, b.Pending())

	var count int64
	require.NoError(t, b.DB().Model(&model.Impact{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())
	require.NoError(t, b.DB().Model(&model.Impact{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWriterLoop_Drains(t *testing.T) {
	b := newTestBackend(t, 10*time.Millisecond)
	require.NoError(t, b.RecordImpact(testRecord(time.Now().UTC(), 100)))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestListImpacts_NewestFirst(t *testing.T) {
	b := newTestBackend(t, time.Hour)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	first := testRecord(base, 10)
	second := testRecord(base.Add(time.Minute), 50)
	third := testRecord(base.Add(2*time.Minute), 500)
	for _, r := range []*core.ImpactRecord{second, first, third} {
		require.NoError(t, b.RecordImpact(r))
	}

	list, err := b.ListImpacts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, third.ID, list[0].ID)
	assert.Equal(t, first.ID, list[2].ID)
	assert.Equal(t, 500.0, list[0].Parameters.DiameterMeters)
	assert.Equal(t, int64(1314721), list[0].Result.EstimatedCasualties)
	assert.InDelta(t, 139.6503, list[0].Result.Location.Longitude, 1e-9)

	limited, err := b.ListImpacts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, third.ID, limited[0].ID)
}

func TestListImpacts_StoresProjectedLocation(t *testing.T) {
	b := newTestBackend(t, time.Hour)
	require.NoError(t, b.RecordImpact(testRecord(time.Now().UTC(), 100)))
	require.NoError(t, b.Flush())

	var row model.Impact
	require.NoError(t, b.DB().First(&row).Error)
	xy, ok := row.Location.XY()
	require.True(t, ok)
	assert.Greater(t, xy.X, 1.5e7, "Tokyo is far east in web mercator")
	assert.Equal(t, "rock", row.Material)
}

func TestClose_FlushesAndRejects(t *testing.T) {
	db := openTestDB(t)
	b := New(Dependencies{DB: db, WriteInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordImpact(testRecord(time.Now().UTC(), 100)))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.Impact{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.ErrorIs(t, b.RecordImpact(testRecord(time.Now(), 1)), storage.ErrClosed)

	list, err := b.ListImpacts(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

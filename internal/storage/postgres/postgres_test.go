package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestNew_DoesNotConnect(t *testing.T) {
	b := New(Dependencies{DB: config.DBConfig{Host: "127.0.0.1", Port: "1"}})
	require.NotNil(t, b)
	assert.Nil(t, b.DB())
}

func TestInit_FallsBackToSQLite(t *testing.T) {
	b := New(Dependencies{
		DB:           config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "nobody", Database: "impactsim"},
		FallbackPath: filepath.Join(t.TempDir(), "fallback.db"),
		DBLogger:     zerolog.Nop(),
	})
	require.NoError(t, b.Init())
	defer b.Close()

	assert.True(t, b.UsingFallback())

	rec := &core.ImpactRecord{
		ID:         uuid.New(),
		LaunchedAt: time.Now().UTC(),
		Parameters: core.AsteroidParameters{DiameterMeters: 50, VelocityKmPerSec: 11, ImpactAngleDegrees: 90, DensityKgM3: core.DensityRock},
	}
	require.NoError(t, b.RecordImpact(rec))

	list, err := b.ListImpacts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

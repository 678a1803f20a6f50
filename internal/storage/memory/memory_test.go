// internal/storage/memory/memory_test.go
package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Exportable = (*Backend)(nil)
)

func record(at time.Time, casualties int64) *core.ImpactRecord {
	return &core.ImpactRecord{
		ID:         uuid.New(),
		LaunchedAt: at,
		Parameters: core.AsteroidParameters{
			DiameterMeters:     100,
			VelocityKmPerSec:   20,
			ImpactAngleDegrees: 45,
			DensityKgM3:        core.DensityIron,
		},
		Result: core.ImpactResult{
			Location:            core.Selection{Latitude: 51.5074, Longitude: -0.1278},
			EnergyMegatonsTNT:   200.2,
			EstimatedCasualties: casualties,
		},
	}
}

func TestRecordAndList(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.RecordImpact(record(base, 1)))
	require.NoError(t, b.RecordImpact(record(base.Add(time.Minute), 2)))
	require.NoError(t, b.RecordImpact(record(base.Add(2*time.Minute), 3)))
	assert.Equal(t, 3, b.Len())

	all, err := b.ListImpacts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].Result.EstimatedCasualties)
	assert.Equal(t, int64(1), all[2].Result.EstimatedCasualties)

	two, err := b.ListImpacts(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestRecordImpact_CopiesRecord(t *testing.T) {
	b := New(config.MemoryConfig{})
	r := record(time.Now(), 10)
	require.NoError(t, b.RecordImpact(r))
	r.Result.EstimatedCasualties = 99

	list, _ := b.ListImpacts(context.Background(), 0)
	assert.Equal(t, int64(10), list[0].Result.EstimatedCasualties)
}

func TestClose_RejectsFurtherRecords(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err := b.RecordImpact(record(time.Now(), 1))
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.Empty(t, b.GetExportedFilePath(), "empty history writes nothing")
}

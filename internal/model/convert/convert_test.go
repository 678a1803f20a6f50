package convert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/internal/model"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sampleRecord() core.ImpactRecord {
	return core.ImpactRecord{
		ID:         uuid.MustParse("6f1c1d1e-8a52-4c1e-9b0b-1f2d3c4b5a69"),
		LaunchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Parameters: core.AsteroidParameters{
			DiameterMeters:     100,
			VelocityKmPerSec:   20,
			ImpactAngleDegrees: 45,
			DensityKgM3:        core.DensityRock,
		},
		Result: core.ImpactResult{
			Location:             core.Selection{Latitude: 40.7128, Longitude: -74.0060},
			EnergyMegatonsTNT:    75.0859,
			FireballRadiusKm:     2.4756,
			CraterDiameterMeters: 2.9770,
			ShockwaveRadiusKm:    9.1486,
			ThermalRadiusKm:      8.8119,
			EstimatedCasualties:  1314721,
		},
	}
}

func TestCoreToImpact(t *testing.T) {
	rec := sampleRecord()
	row := CoreToImpact(rec)

	assert.Equal(t, "6f1c1d1e-8a52-4c1e-9b0b-1f2d3c4b5a69", row.ID)
	assert.Equal(t, "rock", row.Material)
	assert.Equal(t, 40.7128, row.Latitude)
	assert.Equal(t, int64(1314721), row.EstimatedCasualties)

	x, y := geo.Project(40.7128, -74.0060)
	xy, ok := row.Location.XY()
	require.True(t, ok)
	assert.InDelta(t, x, xy.X, 1e-6)
	assert.InDelta(t, y, xy.Y, 1e-6)
}

func TestCoreToImpact_CustomDensityHasNoMaterial(t *testing.T) {
	rec := sampleRecord()
	rec.Parameters.DensityKgM3 = 2500
	assert.Empty(t, CoreToImpact(rec).Material)
}

func TestRings(t *testing.T) {
	row := CoreToImpact(sampleRecord())
	rings, err := RingsFromJSON(row.Rings)
	require.NoError(t, err)
	require.Len(t, rings, 3)
	assert.Equal(t, "Fireball", rings[0].Label)
	assert.Equal(t, "Thermal", rings[1].Label)
	assert.Equal(t, "Shockwave", rings[2].Label)
	assert.InDelta(t, 9148.6, rings[2].RadiusMeters, 1e-6)

	none, err := RingsFromJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = RingsFromJSON(datatypes.JSON(`{`))
	assert.Error(t, err)
}

func TestImpactToCore_RoundTripsRecord(t *testing.T) {
	rec := sampleRecord()
	back, err := ImpactToCore(CoreToImpact(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestImpactToCore_BadID(t *testing.T) {
	_, err := ImpactToCore(model.Impact{ID: "not-a-uuid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-uuid")

	_, err = ImpactsToCore([]model.Impact{CoreToImpact(sampleRecord()), {ID: "x"}})
	assert.Error(t, err)
}

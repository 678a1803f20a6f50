package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaterial(t *testing.T) {
	tests := []struct {
		in          string
		wantMat     Material
		wantDensity float64
		wantErr     bool
	}{
		{"rock", MaterialRock, 3000, false},
		{"Iron", MaterialIron, 8000, false},
		{" ice ", MaterialIce, 1000, false},
		{"3000", MaterialRock, 3000, false},
		{"2500", "", 2500, false},
		{"-5", "", 0, true},
		{"cheese", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, d, err := ParseMaterial(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownMaterial)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMat, m)
			assert.Equal(t, tt.wantDensity, d)
		})
	}
}

func TestMaterialDisplayName(t *testing.T) {
	assert.Equal(t, "Rock", MaterialRock.DisplayName())
	assert.Equal(t, "", Material("").DisplayName())
}

func TestNewImpactRecord(t *testing.T) {
	params := AsteroidParameters{DiameterMeters: 100, VelocityKmPerSec: 20, ImpactAngleDegrees: 45, DensityKgM3: DensityRock}
	a := NewImpactRecord(params, ImpactResult{})
	b := NewImpactRecord(params, ImpactResult{})

	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.LaunchedAt.IsZero())
	m, ok := a.Parameters.Material()
	assert.True(t, ok)
	assert.Equal(t, MaterialRock, m)
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatEnergy(t *testing.T) {
	assert.Equal(t, "75.09 Megatons", FormatEnergy(75.0898))
	assert.Equal(t, "1.23e-03 MT", FormatEnergy(0.00123))
	assert.Equal(t, "0.01 Megatons", FormatEnergy(0.01))
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1315432, "1,315,432"},
		{100000, "100,000"},
		{-1234, "-1,234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCount(tt.in))
	}
}

func TestResultLines(t *testing.T) {
	r := ImpactResult{
		EnergyMegatonsTNT:    75.09,
		FireballRadiusKm:     2.475,
		CraterDiameterMeters: 2.98,
		ShockwaveRadiusKm:    9.15,
		ThermalRadiusKm:      8.81,
		EstimatedCasualties:  1315000,
	}
	lines := r.ResultLines()
	assert.Len(t, lines, 6)
	assert.Equal(t, [2]string{"Crater Diameter", "3 m"}, lines[2])
	assert.Equal(t, [2]string{"Casualties (est.)", "1,315,000"}, lines[5])
}

// pkg/core/impact.go
package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownMaterial is returned for names that are neither a material nor a positive density.
var ErrUnknownMaterial = errors.New("unknown material")

// Material is a named asteroid composition with a fixed bulk density.
type Material string

const (
	MaterialIce  Material = "ice"
	MaterialRock Material = "rock"
	MaterialIron Material = "iron"
)

// Densities in kg/m³ for the named materials.
const (
	DensityIce  float64 = 1000
	DensityRock float64 = 3000
	DensityIron float64 = 8000
)

// Materials lists the named materials in display order.
var Materials = []Material{MaterialIce, MaterialRock, MaterialIron}

// Density returns the bulk density of a named material.
func (m Material) Density() (float64, bool) {
	switch m {
	case MaterialIce:
		return DensityIce, true
	case MaterialRock:
		return DensityRock, true
	case MaterialIron:
		return DensityIron, true
	}
	return 0, false
}

// DisplayName returns the capitalized material name, e.g. "Rock".
func (m Material) DisplayName() string {
	s := string(m)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// MaterialForDensity maps a density back to its named material, if any.
func MaterialForDensity(density float64) (Material, bool) {
	for _, m := range Materials {
		if d, _ := m.Density(); d == density {
			return m, true
		}
	}
	return "", false
}

// ParseMaterial accepts a material name ("ice", "Rock") or a density ("3000").
// The density is returned in both cases; the material is empty for custom densities.
func ParseMaterial(s string) (Material, float64, error) {
	s = strings.TrimSpace(s)
	m := Material(strings.ToLower(s))
	if d, ok := m.Density(); ok {
		return m, d, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return "", 0, fmt.Errorf("%w %q", ErrUnknownMaterial, s)
	}
	named, _ := MaterialForDensity(d)
	return named, d, nil
}

// AsteroidParameters is an immutable snapshot of the asteroid controls taken at launch time.
type AsteroidParameters struct {
	DiameterMeters     float64 `json:"diameterMeters"`
	VelocityKmPerSec   float64 `json:"velocityKmPerSec"`
	ImpactAngleDegrees float64 `json:"impactAngleDegrees"`
	DensityKgM3        float64 `json:"materialDensityKgM3"`
}

// Material returns the named material matching the density, if any.
func (p AsteroidParameters) Material() (Material, bool) {
	return MaterialForDensity(p.DensityKgM3)
}

// Selection is a chosen impact coordinate in WGS84 degrees.
type Selection struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (s Selection) String() string {
	return fmt.Sprintf("%.4f,%.4f", s.Latitude, s.Longitude)
}

// ImpactResult is the computed consequence set for one selection and parameter snapshot.
type ImpactResult struct {
	Location             Selection `json:"location"`
	EnergyMegatonsTNT    float64   `json:"energyMegatonsTNT"`
	FireballRadiusKm     float64   `json:"fireballRadiusKm"`
	CraterDiameterMeters float64   `json:"craterDiameterMeters"`
	ShockwaveRadiusKm    float64   `json:"shockwaveRadiusKm"`
	ThermalRadiusKm      float64   `json:"thermalRadiusKm"`
	EstimatedCasualties  int64     `json:"estimatedCasualties"`
}

// ImpactRecord is one launch as kept in the impact history.
type ImpactRecord struct {
	ID         uuid.UUID          `json:"id"`
	LaunchedAt time.Time          `json:"launchedAt"`
	Parameters AsteroidParameters `json:"parameters"`
	Result     ImpactResult       `json:"result"`
}

// NewImpactRecord stamps a result with a fresh ID and the current time.
func NewImpactRecord(params AsteroidParameters, result ImpactResult) ImpactRecord {
	return ImpactRecord{
		ID:         uuid.New(),
		LaunchedAt: time.Now().UTC(),
		Parameters: params,
		Result:     result,
	}
}

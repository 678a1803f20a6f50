// Package impact converts asteroid parameters and a target coordinate into
// energy and damage estimates.
//
// The model is a scaling-law approximation. All coefficients and exponents are
// tuning constants kept for compatibility with the published simulator output;
// they are not physical law.
package impact

import (
	"errors"
	"fmt"
	"math"

	"github.com/spaceweb/impactsim/pkg/core"
)

// ErrInvalidParameter is returned when an asteroid parameter is outside its domain.
var ErrInvalidParameter = errors.New("invalid asteroid parameter")

const (
	// JoulesPerMegaton is the TNT equivalence used for energy conversion.
	JoulesPerMegaton = 4.184e15

	fireballCoefficient  = 0.44
	fireballExponent     = 0.4
	shockwaveCoefficient = 2.2
	shockwaveExponent    = 0.33
	thermalCoefficient   = 1.5
	thermalExponent      = 0.41
	craterEnergyScale    = 1e15
	craterExponent       = 0.25

	// CasualtiesPerKm2 is a flat density applied to the shockwave area.
	CasualtiesPerKm2 = 5000
)

// Validate checks the parameter domain without computing anything.
func Validate(p core.AsteroidParameters) error {
	switch {
	case !finite(p.DiameterMeters) || p.DiameterMeters <= 0:
		return fmt.Errorf("%w: diameter %v m", ErrInvalidParameter, p.DiameterMeters)
	case !finite(p.VelocityKmPerSec) || p.VelocityKmPerSec <= 0:
		return fmt.Errorf("%w: velocity %v km/s", ErrInvalidParameter, p.VelocityKmPerSec)
	case !finite(p.ImpactAngleDegrees) || p.ImpactAngleDegrees <= 0 || p.ImpactAngleDegrees > 90:
		return fmt.Errorf("%w: angle %v deg", ErrInvalidParameter, p.ImpactAngleDegrees)
	case !finite(p.DensityKgM3) || p.DensityKgM3 <= 0:
		return fmt.Errorf("%w: density %v kg/m3", ErrInvalidParameter, p.DensityKgM3)
	}
	return nil
}

// KineticEnergy returns the impactor's kinetic energy in joules.
func KineticEnergy(p core.AsteroidParameters) float64 {
	radius := p.DiameterMeters / 2
	volume := (4.0 / 3.0) * math.Pi * math.Pow(radius, 3)
	mass := volume * p.DensityKgM3
	v := p.VelocityKmPerSec * 1000
	return 0.5 * mass * v * v
}

// Compute runs the impact model for one parameter snapshot at one location.
func Compute(p core.AsteroidParameters, location core.Selection) (core.ImpactResult, error) {
	if err := Validate(p); err != nil {
		return core.ImpactResult{}, err
	}

	joules := KineticEnergy(p)
	if !finite(joules) {
		return core.ImpactResult{}, fmt.Errorf("%w: kinetic energy overflows", ErrInvalidParameter)
	}
	megatons := joules / JoulesPerMegaton

	shockwave := shockwaveCoefficient * scale(megatons, shockwaveExponent)
	area := math.Pi * shockwave * shockwave

	return core.ImpactResult{
		Location:             location,
		EnergyMegatonsTNT:    megatons,
		FireballRadiusKm:     fireballCoefficient * scale(megatons, fireballExponent),
		CraterDiameterMeters: scale(joules/craterEnergyScale, craterExponent) * math.Sin(p.ImpactAngleDegrees*math.Pi/180),
		ShockwaveRadiusKm:    shockwave,
		ThermalRadiusKm:      thermalCoefficient * scale(megatons, thermalExponent),
		EstimatedCasualties:  casualties(area),
	}, nil
}

// scale raises base to a fractional exponent, returning 0 for non-positive bases.
func scale(base, exp float64) float64 {
	if !(base > 0) {
		return 0
	}
	return math.Pow(base, exp)
}

func casualties(areaKm2 float64) int64 {
	n := math.Floor(areaKm2 * CasualtiesPerKm2)
	if n >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

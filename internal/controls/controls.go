// Package controls holds the user-adjustable asteroid parameters: the three
// sliders and the material select.
package controls

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/spaceweb/impactsim/pkg/core"
)

var (
	ErrUnknownPreset = errors.New("unknown diameter preset")
	ErrNotANumber    = errors.New("value is not a finite number")
)

// Range is a slider's bounds and step.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Clamp snaps v to the nearest step from Min and bounds it to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	if r.Step > 0 {
		v = r.Min + math.Round((v-r.Min)/r.Step)*r.Step
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

var (
	DiameterRange = Range{Min: 1, Max: 1000, Step: 1}
	VelocityRange = Range{Min: 11, Max: 70, Step: 1}
	AngleRange    = Range{Min: 15, Max: 90, Step: 5}
)

// DiameterPreset is a named reference size.
type DiameterPreset struct {
	Name   string  `json:"name"`
	Meters float64 `json:"meters"`
}

// DiameterPresets in ascending order.
var DiameterPresets = []DiameterPreset{
	{Name: "House", Meters: 10},
	{Name: "Stadium", Meters: 50},
	{Name: "City Block", Meters: 100},
	{Name: "Golden Gate", Meters: 500},
}

// FindDiameterPreset looks a preset up by name, ignoring case and spaces.
func FindDiameterPreset(name string) (DiameterPreset, error) {
	key := normalize(name)
	for _, p := range DiameterPresets {
		if normalize(p.Name) == key {
			return p, nil
		}
	}
	return DiameterPreset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// Values is a copy of the current control state.
type Values struct {
	Diameter float64       `json:"diameter"`
	Velocity float64       `json:"velocity"`
	Angle    float64       `json:"angle"`
	Material core.Material `json:"material"`
}

// Controls is safe for concurrent use.
type Controls struct {
	mu sync.RWMutex
	v  Values
}

// New returns controls initialised from v, clamped into range. An unknown
// material falls back to rock.
func New(v Values) *Controls {
	c := &Controls{}
	c.v = Values{
		Diameter: DiameterRange.Clamp(v.Diameter),
		Velocity: VelocityRange.Clamp(v.Velocity),
		Angle:    AngleRange.Clamp(v.Angle),
		Material: v.Material,
	}
	if _, ok := c.v.Material.Density(); !ok {
		c.v.Material = core.MaterialRock
	}
	return c
}

// Default returns the controls the page opens with: 100 m rock at 20 km/s, 45°.
func Default() *Controls {
	return New(Values{Diameter: 100, Velocity: 20, Angle: 45, Material: core.MaterialRock})
}

func (c *Controls) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Params snapshots the controls as launch parameters.
func (c *Controls) Params() core.AsteroidParameters {
	v := c.Values()
	density, _ := v.Material.Density()
	return core.AsteroidParameters{
		DiameterMeters:     v.Diameter,
		VelocityKmPerSec:   v.Velocity,
		ImpactAngleDegrees: v.Angle,
		DensityKgM3:        density,
	}
}

// SetDiameter clamps and stores d, returning the stored value.
func (c *Controls) SetDiameter(d float64) (float64, error) {
	return c.set(d, DiameterRange, &c.v.Diameter)
}

func (c *Controls) SetVelocity(v float64) (float64, error) {
	return c.set(v, VelocityRange, &c.v.Velocity)
}

func (c *Controls) SetAngle(a float64) (float64, error) {
	return c.set(a, AngleRange, &c.v.Angle)
}

func (c *Controls) set(v float64, r Range, dst *float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotANumber
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	*dst = r.Clamp(v)
	return *dst, nil
}

// SetMaterial selects one of ice, rock or iron.
func (c *Controls) SetMaterial(name string) (core.Material, error) {
	m, _, err := core.ParseMaterial(name)
	if err != nil {
		return "", err
	}
	if _, ok := m.Density(); !ok {
		return "", fmt.Errorf("%w: custom densities cannot be selected", core.ErrUnknownMaterial)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Material = m
	return m, nil
}

// ApplyPreset sets the diameter from a named preset.
func (c *Controls) ApplyPreset(name string) (DiameterPreset, error) {
	p, err := FindDiameterPreset(name)
	if err != nil {
		return DiameterPreset{}, err
	}
	_, err = c.SetDiameter(p.Meters)
	return p, err
}

// LaunchLabel is the caption of the launch action.
func (c *Controls) LaunchLabel() string {
	return "LAUNCH " + strings.ToUpper(c.Values().Material.DisplayName()) + " ASTEROID"
}

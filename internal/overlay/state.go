package overlay

import (
	"fmt"

	"github.com/spaceweb/impactsim/internal/mapsurface"
	"github.com/spaceweb/impactsim/pkg/core"
)

// State is the coordinator's lifecycle position.
type State int

const (
	// StateIdle: no selection, no result.
	StateIdle State = iota
	// StateSelected: a selection exists but nothing is displayed for it yet.
	StateSelected
	// StateResolved: a selection and its displayed result.
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelected:
		return "selected"
	case StateResolved:
		return "resolved"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event names the change that produced a Snapshot.
type Event string

const (
	EventSelected   Event = "selected"
	EventLaunched   Event = "launched"
	EventLaunchFail Event = "launch_failed"
	EventTornDown   Event = "torn_down"
)

// Ring indexes DamageCircles in draw order, innermost first.
type Ring int

const (
	RingFireball Ring = iota
	RingThermal
	RingShockwave
	ringCount
)

func (r Ring) String() string {
	switch r {
	case RingFireball:
		return "Fireball"
	case RingThermal:
		return "Thermal"
	case RingShockwave:
		return "Shockwave"
	}
	return fmt.Sprintf("ring(%d)", int(r))
}

// OverlayState is what the coordinator has on the map. A handle is zeroed as
// soon as its layer is removed.
type OverlayState struct {
	ActiveSelection *core.Selection
	ActiveResult    *core.ImpactResult
	SelectionMarker mapsurface.Handle
	ImpactMarker    mapsurface.Handle
	DamageCircles   [ringCount]mapsurface.Handle
}

// Handles lists the live handles: selection marker, impact marker, then rings.
func (o OverlayState) Handles() []mapsurface.Handle {
	out := make([]mapsurface.Handle, 0, 2+len(o.DamageCircles))
	for _, h := range append([]mapsurface.Handle{o.SelectionMarker, o.ImpactMarker}, o.DamageCircles[:]...) {
		if !h.IsZero() {
			out = append(out, h)
		}
	}
	return out
}

// impactHandles lists the impact marker and rings, the layers fitted after a launch.
func (o OverlayState) impactHandles() []mapsurface.Handle {
	out := make([]mapsurface.Handle, 0, 1+len(o.DamageCircles))
	if !o.ImpactMarker.IsZero() {
		out = append(out, o.ImpactMarker)
	}
	for _, h := range o.DamageCircles {
		if !h.IsZero() {
			out = append(out, h)
		}
	}
	return out
}

// Snapshot is the published view of the coordinator.
type Snapshot struct {
	State          State                    `json:"state"`
	Selection      *core.Selection          `json:"selection,omitempty"`
	Result         *core.ImpactResult       `json:"result,omitempty"`
	Parameters     *core.AsteroidParameters `json:"parameters,omitempty"` // snapshot that produced Result
	ResultsVisible bool                     `json:"resultsVisible"`
	CanLaunch      bool                     `json:"canLaunch"`
	Layers         int                      `json:"layers"`
	Event          Event                    `json:"event,omitempty"`
}

// VisibleResult returns the result only while the results panel is shown.
func (s Snapshot) VisibleResult() (core.ImpactResult, bool) {
	if !s.ResultsVisible || s.Result == nil {
		return core.ImpactResult{}, false
	}
	return *s.Result, true
}

package overlay

import (
	"github.com/spaceweb/impactsim/internal/mapsurface"
	"github.com/spaceweb/impactsim/pkg/core"
)

// SelectionIcon is the pin drawn at a chosen target.
func SelectionIcon() mapsurface.IconSpec {
	return mapsurface.IconSpec{
		ClassName: "location-marker",
		HTML:      "📍",
		Size:      [2]int{30, 40},
		Anchor:    &[2]int{15, 40},
	}
}

// ImpactIcon is the pulsing marker drawn at ground zero.
func ImpactIcon() mapsurface.IconSpec {
	return mapsurface.IconSpec{
		ClassName: "impact-marker",
		HTML:      `<div class="pulse"></div>`,
		Size:      [2]int{24, 24},
	}
}

var ringColors = [ringCount]string{
	RingFireball:  "#ff0000",
	RingThermal:   "#ff6600",
	RingShockwave: "#ffaa00",
}

// RingStyle returns the stroke and fill of a damage ring.
func RingStyle(r Ring) mapsurface.CircleStyle {
	return mapsurface.CircleStyle{
		Color:       ringColors[r],
		FillColor:   ringColors[r],
		FillOpacity: 0.2,
		Weight:      2,
		Label:       r.String(),
	}
}

// RingRadiiMeters returns the ring radii of a result in draw order.
func RingRadiiMeters(res core.ImpactResult) [ringCount]float64 {
	return [ringCount]float64{
		RingFireball:  res.FireballRadiusKm * 1000,
		RingThermal:   res.ThermalRadiusKm * 1000,
		RingShockwave: res.ShockwaveRadiusKm * 1000,
	}
}

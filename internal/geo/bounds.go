package geo

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spaceweb/impactsim/pkg/core"
)

// Bounds is a lat/lng bounding box backed by a planar envelope (X = lng, Y = lat).
// The zero value is empty.
type Bounds struct {
	env geom.Envelope
}

// PointBounds returns bounds enclosing a single point.
func PointBounds(p core.Selection) Bounds {
	return Bounds{}.Extend(p)
}

// CircleBounds returns the bounds of a spherical cap of radiusMeters around center.
func CircleBounds(center core.Selection, radiusMeters float64) Bounds {
	if radiusMeters <= 0 {
		return PointBounds(center)
	}

	δ := radiusMeters / EarthRadiusMeters
	north := center.Latitude + deg(δ)
	south := center.Latitude - deg(δ)

	// A cap containing a pole spans every longitude.
	if north >= 90 || south <= -90 {
		return Bounds{}.
			Extend(core.Selection{Latitude: math.Max(south, -90), Longitude: -180}).
			Extend(core.Selection{Latitude: math.Min(north, 90), Longitude: 180})
	}

	dλ := deg(math.Asin(math.Sin(δ) / math.Cos(rad(center.Latitude))))
	return Bounds{}.
		Extend(core.Selection{Latitude: south, Longitude: center.Longitude - dλ}).
		Extend(core.Selection{Latitude: north, Longitude: center.Longitude + dλ})
}

// Extend grows the bounds to include p. Longitudes are not wrapped here so a
// box that crosses the antimeridian stays contiguous. A non-finite p leaves
// the bounds unchanged.
func (b Bounds) Extend(p core.Selection) Bounds {
	env, err := b.env.ExtendToIncludeXY(geom.XY{X: p.Longitude, Y: p.Latitude})
	if err != nil {
		return b
	}
	return Bounds{env: env}
}

// Union returns the smallest bounds enclosing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{env: b.env.ExpandToIncludeEnvelope(o.env)}
}

// IsEmpty reports whether the bounds enclose nothing.
func (b Bounds) IsEmpty() bool {
	return b.env.IsEmpty()
}

// SouthWest returns the minimum corner.
func (b Bounds) SouthWest() core.Selection {
	min, _, ok := b.env.MinMaxXYs()
	if !ok {
		return core.Selection{}
	}
	return core.Selection{Latitude: min.Y, Longitude: min.X}
}

// NorthEast returns the maximum corner.
func (b Bounds) NorthEast() core.Selection {
	_, max, ok := b.env.MinMaxXYs()
	if !ok {
		return core.Selection{}
	}
	return core.Selection{Latitude: max.Y, Longitude: max.X}
}

// Center returns the midpoint of the box in degrees.
func (b Bounds) Center() core.Selection {
	sw, ne := b.SouthWest(), b.NorthEast()
	return core.Selection{
		Latitude:  (sw.Latitude + ne.Latitude) / 2,
		Longitude: (sw.Longitude + ne.Longitude) / 2,
	}
}

// Contains reports whether p lies inside or on the edge of the bounds.
func (b Bounds) Contains(p core.Selection) bool {
	if b.IsEmpty() {
		return false
	}
	sw, ne := b.SouthWest(), b.NorthEast()
	return p.Latitude >= sw.Latitude && p.Latitude <= ne.Latitude &&
		p.Longitude >= sw.Longitude && p.Longitude <= ne.Longitude
}

// ContainsBounds reports whether o lies entirely inside b.
func (b Bounds) ContainsBounds(o Bounds) bool {
	if o.IsEmpty() {
		return true
	}
	return b.Contains(o.SouthWest()) && b.Contains(o.NorthEast())
}

// LatLngs returns the bounds as [[south, west], [north, east]], the shape Leaflet expects.
func (b Bounds) LatLngs() [2][2]float64 {
	sw, ne := b.SouthWest(), b.NorthEast()
	return [2][2]float64{{sw.Latitude, sw.Longitude}, {ne.Latitude, ne.Longitude}}
}

// tileSize is the web mercator tile edge in pixels; the world is tileSize px wide at zoom 0.
const tileSize = 256

// worldWidthMeters is the EPSG:3857 extent of the world along the equator.
const worldWidthMeters = 2 * math.Pi * 6378137

// FitZoom returns the largest integer zoom (capped at maxZoom) at which b fits inside a
// viewport of widthPx × heightPx with paddingPx kept free on every side.
func FitZoom(b Bounds, widthPx, heightPx, paddingPx, maxZoom int) int {
	if b.IsEmpty() {
		return 0
	}
	sw, ne := b.SouthWest(), b.NorthEast()
	x0, y0 := Project(sw.Latitude, sw.Longitude)
	x1, y1 := Project(ne.Latitude, ne.Longitude)
	dx, dy := math.Abs(x1-x0), math.Abs(y1-y0)

	availW := float64(widthPx - 2*paddingPx)
	availH := float64(heightPx - 2*paddingPx)
	if availW <= 0 || availH <= 0 {
		return 0
	}

	for z := maxZoom; z > 0; z-- {
		pxPerMeter := tileSize * math.Pow(2, float64(z)) / worldWidthMeters
		if dx*pxPerMeter <= availW && dy*pxPerMeter <= availH {
			return z
		}
	}
	return 0
}

// MetersPerPixel is the EPSG:3857 distance covered by one pixel at zoom.
func MetersPerPixel(zoom int) float64 {
	return worldWidthMeters / (tileSize * math.Pow(2, float64(zoom)))
}

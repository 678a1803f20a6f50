package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Selections are kept in EPSG:4326 degrees (lat, lng). Anything that needs planar math
// (viewport fitting, terminal rendering, stored geometry) projects to EPSG:3857 first.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// EarthRadiusMeters is the mean earth radius used for great-circle math.
const EarthRadiusMeters = 6371008.8

// NewSelection validates a latitude and wraps the longitude into [-180, 180].
func NewSelection(lat, lng float64) (core.Selection, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return core.Selection{}, ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 {
		return core.Selection{}, ErrInvalidCoordinates
	}
	return core.Selection{Latitude: lat, Longitude: WrapLongitude(lng)}, nil
}

// WrapLongitude maps any longitude into [-180, 180]. Map widgets report
// longitudes past the antimeridian when the world is panned around.
func WrapLongitude(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	w := math.Mod(lng+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// SelectionFromString parses a "lat,lng" string into a validated Selection.
func SelectionFromString(coords string) (core.Selection, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.Selection{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Selection{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Selection{}, ErrInvalidCoordinates
	}
	return NewSelection(lat, lng)
}

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	x, y := Project(latitude, longitude)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(y, 0) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	point, err = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return point, nil
}

// Project converts WGS84 degrees to EPSG:3857 metres.
func Project(lat, lng float64) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(lng, clampMercatorLat(lat), 0)
	return x, y
}

// Unproject converts EPSG:3857 metres back to WGS84 degrees.
func Unproject(x, y float64) (lat, lng float64) {
	f := wgs84.EPSG().Transform(3857, 4326)
	lng, lat, _ = f(x, y, 0)
	return lat, lng
}

// MaxMercatorLat is the latitude at which web mercator is cut off.
const MaxMercatorLat = 85.05112878

func clampMercatorLat(lat float64) float64 {
	return math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
}

// Distance returns the great-circle distance in metres between two points.
func Distance(a, b core.Selection) float64 {
	φ1, φ2 := rad(a.Latitude), rad(b.Latitude)
	dφ := φ2 - φ1
	dλ := rad(b.Longitude - a.Longitude)
	h := math.Sin(dφ/2)*math.Sin(dφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination returns the point reached by travelling distanceMeters from start
// along the initial bearing (degrees clockwise from north).
func Destination(start core.Selection, bearingDeg, distanceMeters float64) core.Selection {
	δ := distanceMeters / EarthRadiusMeters
	θ := rad(bearingDeg)
	φ1 := rad(start.Latitude)
	λ1 := rad(start.Longitude)

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))

	return core.Selection{Latitude: deg(φ2), Longitude: WrapLongitude(deg(λ2))}
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

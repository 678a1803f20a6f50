// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/internal/model"
	"github.com/spaceweb/impactsim/pkg/core"
	"gorm.io/datatypes"
)

// RingJSON is one damage ring as kept in the impacts.rings column.
type RingJSON struct {
	Label        string  `json:"label"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// ringsToJSON converts the result radii to datatypes.JSON for DB storage, fireball first.
func ringsToJSON(r core.ImpactResult) datatypes.JSON {
	rings := []RingJSON{
		{Label: "Fireball", RadiusMeters: r.FireballRadiusKm * 1000},
		{Label: "Thermal", RadiusMeters: r.ThermalRadiusKm * 1000},
		{Label: "Shockwave", RadiusMeters: r.ShockwaveRadiusKm * 1000},
	}
	data, _ := json.Marshal(rings)
	return datatypes.JSON(data)
}

// RingsFromJSON decodes the rings column. An empty column yields no rings.
func RingsFromJSON(data datatypes.JSON) ([]RingJSON, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rings []RingJSON
	if err := json.Unmarshal(data, &rings); err != nil {
		return nil, fmt.Errorf("decode rings: %w", err)
	}
	return rings, nil
}

// selectionToPoint projects a selection to a web mercator point.
// Points outside the projection's domain are stored empty.
func selectionToPoint(s core.Selection) geom.Point {
	pt, err := geo.Coords3857From4326(s.Longitude, s.Latitude)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return pt
}

// CoreToImpact converts a core.ImpactRecord to a GORM model.Impact.
func CoreToImpact(r core.ImpactRecord) model.Impact {
	material, _ := r.Parameters.Material()
	return model.Impact{
		ID:                   r.ID.String(),
		LaunchedAt:           r.LaunchedAt,
		Latitude:             r.Result.Location.Latitude,
		Longitude:            r.Result.Location.Longitude,
		Location:             selectionToPoint(r.Result.Location),
		DiameterMeters:       r.Parameters.DiameterMeters,
		VelocityKmPerSec:     r.Parameters.VelocityKmPerSec,
		ImpactAngleDegrees:   r.Parameters.ImpactAngleDegrees,
		DensityKgM3:          r.Parameters.DensityKgM3,
		Material:             string(material),
		EnergyMegatonsTNT:    r.Result.EnergyMegatonsTNT,
		FireballRadiusKm:     r.Result.FireballRadiusKm,
		CraterDiameterMeters: r.Result.CraterDiameterMeters,
		ShockwaveRadiusKm:    r.Result.ShockwaveRadiusKm,
		ThermalRadiusKm:      r.Result.ThermalRadiusKm,
		EstimatedCasualties:  r.Result.EstimatedCasualties,
		Rings:                ringsToJSON(r.Result),
	}
}

// ImpactToCore converts a GORM model.Impact back to a core.ImpactRecord.
// The stored lat/lng columns are authoritative; Location is derived data.
func ImpactToCore(m model.Impact) (core.ImpactRecord, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return core.ImpactRecord{}, fmt.Errorf("impact %q: %w", m.ID, err)
	}
	return core.ImpactRecord{
		ID:         id,
		LaunchedAt: m.LaunchedAt,
		Parameters: core.AsteroidParameters{
			DiameterMeters:     m.DiameterMeters,
			VelocityKmPerSec:   m.VelocityKmPerSec,
			ImpactAngleDegrees: m.ImpactAngleDegrees,
			DensityKgM3:        m.DensityKgM3,
		},
		Result: core.ImpactResult{
			Location:             core.Selection{Latitude: m.Latitude, Longitude: m.Longitude},
			EnergyMegatonsTNT:    m.EnergyMegatonsTNT,
			FireballRadiusKm:     m.FireballRadiusKm,
			CraterDiameterMeters: m.CraterDiameterMeters,
			ShockwaveRadiusKm:    m.ShockwaveRadiusKm,
			ThermalRadiusKm:      m.ThermalRadiusKm,
			EstimatedCasualties:  m.EstimatedCasualties,
		},
	}, nil
}

// ImpactsToCore converts a page of rows, stopping at the first malformed one.
func ImpactsToCore(rows []model.Impact) ([]core.ImpactRecord, error) {
	out := make([]core.ImpactRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := ImpactToCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

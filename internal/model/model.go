package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServiceInfo{},
	&Impact{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ServiceInfo identifies the installation that wrote the history
type ServiceInfo struct {
	gorm.Model
	ServiceName    string `json:"serviceName" gorm:"size:127"`
	SchemaVersion  int    `json:"schemaVersion"`
	DefaultMapZoom int    `json:"defaultMapZoom"`
}

func (*ServiceInfo) TableName() string {
	return "service_infos"
}

// SchemaVersion is bumped whenever the impacts table changes shape.
const SchemaVersion = 1

////////////////////////
// IMPACT HISTORY
////////////////////////

// Impact is one successful launch as stored in the history table.
// Location holds the impact point projected to EPSG:3857.
type Impact struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	LaunchedAt time.Time `json:"launchedAt" gorm:"index:idx_impact_launched_at"`

	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lng"`
	Location  geom.Point `json:"location"`

	DiameterMeters     float64 `json:"diameterMeters"`
	VelocityKmPerSec   float64 `json:"velocityKmPerSec"`
	ImpactAngleDegrees float64 `json:"impactAngleDegrees"`
	DensityKgM3        float64 `json:"densityKgM3"`
	Material           string  `json:"material" gorm:"size:16"` // empty for custom densities

	EnergyMegatonsTNT    float64 `json:"energyMegatonsTNT"`
	FireballRadiusKm     float64 `json:"fireballRadiusKm"`
	CraterDiameterMeters float64 `json:"craterDiameterMeters"`
	ShockwaveRadiusKm    float64 `json:"shockwaveRadiusKm"`
	ThermalRadiusKm      float64 `json:"thermalRadiusKm"`
	EstimatedCasualties  int64   `json:"estimatedCasualties"`

	Rings datatypes.JSON `json:"rings"` // [{"label","radiusMeters"}] in draw order
}

func (*Impact) TableName() string {
	return "impacts"
}

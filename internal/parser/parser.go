// Package parser converts raw command arguments ([]string, as carried by
// dispatcher events) into typed values. It performs no side effects.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/pkg/core"
)

var (
	ErrMissingArgs   = errors.New("missing arguments")
	ErrBadNumber     = errors.New("malformed number")
	ErrUnknownTarget = errors.New("unknown quick launch target")
	ErrBadRecord     = errors.New("malformed impact record")
)

// trimQuotes strips one layer of surrounding double or single quotes and whitespace.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// parseFloat parses a finite float, naming the field in errors.
func parseFloat(field, s string) (float64, error) {
	f, err := strconv.ParseFloat(trimQuotes(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadNumber, field, s)
	}
	return f, nil
}

// Parser is stateless apart from the quick launch table it resolves names against.
type Parser struct {
	logger  *slog.Logger
	targets []config.QuickLaunchPreset
}

// NewParser creates a parser resolving quick launch names against targets.
func NewParser(logger *slog.Logger, targets []config.QuickLaunchPreset) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, targets: targets}
}

// Targets returns the quick launch table.
func (p *Parser) Targets() []config.QuickLaunchPreset {
	return p.targets
}

// ParseCoordinates accepts ["lat", "lng"] or ["lat,lng"] and validates them.
// Longitude is wrapped; latitude outside [-90, 90] fails with geo.ErrInvalidCoordinates.
func (p *Parser) ParseCoordinates(args []string) (core.Selection, error) {
	switch len(args) {
	case 0:
		return core.Selection{}, fmt.Errorf("%w: want lat,lng", ErrMissingArgs)
	case 1:
		return geo.SelectionFromString(trimQuotes(args[0]))
	}
	lat, err := parseFloat("lat", args[0])
	if err != nil {
		return core.Selection{}, err
	}
	lng, err := parseFloat("lng", args[1])
	if err != nil {
		return core.Selection{}, err
	}
	return geo.NewSelection(lat, lng)
}

// ParseValue parses the single numeric argument of a slider command.
func (p *Parser) ParseValue(field string, args []string) (float64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: want %s", ErrMissingArgs, field)
	}
	return parseFloat(field, args[0])
}

// ParseName returns the first argument unquoted, e.g. a material or preset name.
func (p *Parser) ParseName(field string, args []string) (string, error) {
	if len(args) == 0 || trimQuotes(args[0]) == "" {
		return "", fmt.Errorf("%w: want %s", ErrMissingArgs, field)
	}
	return trimQuotes(args[0]), nil
}

// ParseQuickLaunch resolves a target given by name (["Tokyo"]) or by
// coordinates. The returned name is empty for coordinates.
func (p *Parser) ParseQuickLaunch(args []string) (string, core.Selection, error) {
	if len(args) == 0 {
		return "", core.Selection{}, fmt.Errorf("%w: want target name or lat,lng", ErrMissingArgs)
	}
	if len(args) == 1 {
		name := trimQuotes(args[0])
		if t, ok := p.lookup(name); ok {
			sel, err := geo.NewSelection(t.Lat, t.Lng)
			p.logger.Debug("quick launch target resolved", "target", t.Name, "selection", sel.String())
			return t.Name, sel, err
		}
		if !strings.Contains(name, ",") {
			return "", core.Selection{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
		}
	}
	sel, err := p.ParseCoordinates(args)
	return "", sel, err
}

func (p *Parser) lookup(name string) (config.QuickLaunchPreset, bool) {
	for _, t := range p.targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return config.QuickLaunchPreset{}, false
}

// ParseParameters parses [diameter, velocity, angle, material] where material
// is a name or a density. It does not range-check; impact.Validate does.
func (p *Parser) ParseParameters(args []string) (core.AsteroidParameters, error) {
	if len(args) < 4 {
		return core.AsteroidParameters{}, fmt.Errorf("%w: want diameter, velocity, angle, material; got %d", ErrMissingArgs, len(args))
	}
	var params core.AsteroidParameters
	var err error
	if params.DiameterMeters, err = parseFloat("diameter", args[0]); err != nil {
		return params, err
	}
	if params.VelocityKmPerSec, err = parseFloat("velocity", args[1]); err != nil {
		return params, err
	}
	if params.ImpactAngleDegrees, err = parseFloat("angle", args[2]); err != nil {
		return params, err
	}
	if _, params.DensityKgM3, err = core.ParseMaterial(trimQuotes(args[3])); err != nil {
		return params, err
	}
	return params, nil
}

// ParseImpactRecord decodes the JSON-encoded record carried by :RECORD:IMPACT:.
func (p *Parser) ParseImpactRecord(args []string) (core.ImpactRecord, error) {
	if len(args) == 0 {
		return core.ImpactRecord{}, fmt.Errorf("%w: want impact record", ErrMissingArgs)
	}
	var rec core.ImpactRecord
	if err := json.Unmarshal([]byte(args[0]), &rec); err != nil {
		return core.ImpactRecord{}, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	if rec.ID == uuid.Nil {
		return core.ImpactRecord{}, fmt.Errorf("%w: missing id", ErrBadRecord)
	}
	return rec, nil
}

// FormatImpactRecord is the inverse of ParseImpactRecord.
func FormatImpactRecord(rec core.ImpactRecord) ([]string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}

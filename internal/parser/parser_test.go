package parser

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/pkg/core"
)

func newTestParser() *Parser {
	return NewParser(slog.Default(), config.DefaultQuickLaunch)
}

func TestNewParser(t *testing.T) {
	p := NewParser(nil, nil)
	require.NotNil(t, p)
	assert.Empty(t, p.Targets())
}

func TestTrimQuotes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"rock"`, "rock"},
		{`'rock'`, "rock"},
		{` " padded " `, "padded"},
		{`"unbalanced`, `"unbalanced`},
		{`""`, ""},
		{`"`, `"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trimQuotes(tt.in), tt.in)
	}
}

func TestParseCoordinates(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name    string
		args    []string
		want    core.Selection
		wantErr error
	}{
		{"two args", []string{"40.7128", "-74.0060"}, core.Selection{Latitude: 40.7128, Longitude: -74.0060}, nil},
		{"quoted", []string{`"51.5"`, `"-0.12"`}, core.Selection{Latitude: 51.5, Longitude: -0.12}, nil},
		{"one arg", []string{"35.6762, 139.6503"}, core.Selection{Latitude: 35.6762, Longitude: 139.6503}, nil},
		{"wrapped longitude", []string{"0", "200"}, core.Selection{Latitude: 0, Longitude: -160}, nil},
		{"latitude out of range", []string{"95", "0"}, core.Selection{}, geo.ErrInvalidCoordinates},
		{"not a number", []string{"north", "0"}, core.Selection{}, ErrBadNumber},
		{"infinite", []string{"Inf", "0"}, core.Selection{}, ErrBadNumber},
		{"malformed single", []string{"40.7"}, core.Selection{}, geo.ErrInvalidCoordinates},
		{"empty", nil, core.Selection{}, ErrMissingArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseCoordinates(tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Latitude, got.Latitude, 1e-9)
			assert.InDelta(t, tt.want.Longitude, got.Longitude, 1e-9)
		})
	}
}

func TestParseValue(t *testing.T) {
	p := newTestParser()

	v, err := p.ParseValue("diameter", []string{"250"})
	require.NoError(t, err)
	assert.Equal(t, 250.0, v)

	_, err = p.ParseValue("diameter", nil)
	assert.ErrorIs(t, err, ErrMissingArgs)

	_, err = p.ParseValue("diameter", []string{"big"})
	assert.ErrorIs(t, err, ErrBadNumber)
	assert.Contains(t, err.Error(), "diameter")
}

func TestParseName(t *testing.T) {
	p := newTestParser()

	n, err := p.ParseName("material", []string{`"Iron"`})
	require.NoError(t, err)
	assert.Equal(t, "Iron", n)

	_, err = p.ParseName("material", []string{`""`})
	assert.ErrorIs(t, err, ErrMissingArgs)
}

func TestParseQuickLaunch(t *testing.T) {
	p := newTestParser()

	name, sel, err := p.ParseQuickLaunch([]string{"tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", name)
	assert.InDelta(t, 35.6762, sel.Latitude, 1e-9)

	name, sel, err = p.ParseQuickLaunch([]string{"1.5", "2.5"})
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.InDelta(t, 2.5, sel.Longitude, 1e-9)

	_, sel, err = p.ParseQuickLaunch([]string{"1.5,2.5"})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, sel.Latitude, 1e-9)

	_, _, err = p.ParseQuickLaunch([]string{"Atlantis"})
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, _, err = p.ParseQuickLaunch(nil)
	assert.ErrorIs(t, err, ErrMissingArgs)
}

func TestParseParameters(t *testing.T) {
	p := newTestParser()

	params, err := p.ParseParameters([]string{"100", "20", "45", "rock"})
	require.NoError(t, err)
	assert.Equal(t, core.AsteroidParameters{
		DiameterMeters:     100,
		VelocityKmPerSec:   20,
		ImpactAngleDegrees: 45,
		DensityKgM3:        3000,
	}, params)

	params, err = p.ParseParameters([]string{"10", "30", "90", "2500"})
	require.NoError(t, err)
	assert.Equal(t, 2500.0, params.DensityKgM3)

	_, err = p.ParseParameters([]string{"10", "30", "90"})
	assert.ErrorIs(t, err, ErrMissingArgs)

	_, err = p.ParseParameters([]string{"10", "fast", "90", "rock"})
	assert.ErrorIs(t, err, ErrBadNumber)

	_, err = p.ParseParameters([]string{"10", "30", "90", "cheese"})
	assert.ErrorIs(t, err, core.ErrUnknownMaterial)
}

func TestParseImpactRecord(t *testing.T) {
	p := newTestParser()
	rec := core.ImpactRecord{
		ID:         uuid.New(),
		LaunchedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Parameters: core.AsteroidParameters{DiameterMeters: 100, VelocityKmPerSec: 20, ImpactAngleDegrees: 45, DensityKgM3: 3000},
		Result:     core.ImpactResult{EstimatedCasualties: 42},
	}

	args, err := FormatImpactRecord(rec)
	require.NoError(t, err)
	require.Len(t, args, 1)

	back, err := p.ParseImpactRecord(args)
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	_, err = p.ParseImpactRecord(nil)
	assert.ErrorIs(t, err, ErrMissingArgs)

	_, err = p.ParseImpactRecord([]string{"{"})
	assert.ErrorIs(t, err, ErrBadRecord)

	_, err = p.ParseImpactRecord([]string{`{"result":{}}`})
	assert.ErrorIs(t, err, ErrBadRecord, "records need an id")
}

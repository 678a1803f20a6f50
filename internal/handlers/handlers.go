// Package handlers binds dispatcher commands to the controls and the overlay
// coordinator. Every command that touches the map runs on the dispatcher's
// event loop, so clicks and launches are applied in arrival order.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spaceweb/impactsim/internal/controls"
	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/impact"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/pkg/core"
)

const (
	CmdMapClick       = ":MAP:CLICK:"
	CmdLaunch         = ":LAUNCH:"
	CmdQuickLaunch    = ":QUICK:LAUNCH:"
	CmdTeardown       = ":TEARDOWN:"
	CmdSetDiameter    = ":SET:DIAMETER:"
	CmdSetVelocity    = ":SET:VELOCITY:"
	CmdSetAngle       = ":SET:ANGLE:"
	CmdSetMaterial    = ":SET:MATERIAL:"
	CmdPresetDiameter = ":PRESET:DIAMETER:"
	CmdStatus         = ":STATUS:"
	CmdCompute        = ":COMPUTE:"
)

const tracerName = "github.com/spaceweb/impactsim/internal/handlers"

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Coordinator *overlay.Coordinator
	Controls    *controls.Controls
	Parser      *parser.Parser
	Logger      logging.Logger
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Status is the reply to :STATUS: and every control command.
type Status struct {
	Overlay     overlay.Snapshot `json:"overlay"`
	Controls    controls.Values  `json:"controls"`
	LaunchLabel string           `json:"launchLabel"`
}

// Service provides the handler methods.
type Service struct {
	deps Dependencies
}

// NewService creates a handler service, filling unset dependencies with defaults.
func NewService(deps Dependencies) *Service {
	if deps.Controls == nil {
		deps.Controls = controls.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Service{deps: deps}
}

// Register registers every command with d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	serial := []dispatcher.Option{dispatcher.Serial(), dispatcher.Logged()}
	d.Register(CmdMapClick, s.handleMapClick, serial...)
	d.Register(CmdLaunch, s.handleLaunch, serial...)
	d.Register(CmdQuickLaunch, s.handleQuickLaunch, serial...)
	d.Register(CmdTeardown, s.handleTeardown, serial...)

	d.Register(CmdSetDiameter, s.handleSetDiameter, dispatcher.Logged())
	d.Register(CmdSetVelocity, s.handleSetVelocity, dispatcher.Logged())
	d.Register(CmdSetAngle, s.handleSetAngle, dispatcher.Logged())
	d.Register(CmdSetMaterial, s.handleSetMaterial, dispatcher.Logged())
	d.Register(CmdPresetDiameter, s.handlePresetDiameter, dispatcher.Logged())
	d.Register(CmdStatus, s.handleStatus)
	d.Register(CmdCompute, s.handleCompute)
}

// Status returns the current overlay and control state.
func (s *Service) Status() Status {
	snap := overlay.Snapshot{}
	if s.deps.Coordinator != nil {
		snap = s.deps.Coordinator.Snapshot()
	}
	return Status{
		Overlay:     snap,
		Controls:    s.deps.Controls.Values(),
		LaunchLabel: s.deps.Controls.LaunchLabel(),
	}
}

// LogContext reports the overlay state on every log record.
func (s *Service) LogContext() []slog.Attr {
	if s.deps.Coordinator == nil {
		return nil
	}
	snap := s.deps.Coordinator.Snapshot()
	attrs := []slog.Attr{slog.String("overlay", snap.State.String())}
	if snap.Selection != nil {
		attrs = append(attrs, slog.String("selection", snap.Selection.String()))
	}
	return attrs
}

var errNoCoordinator = errors.New("no overlay coordinator")

func (s *Service) coordinator() (*overlay.Coordinator, error) {
	if s.deps.Coordinator == nil {
		return nil, errNoCoordinator
	}
	return s.deps.Coordinator, nil
}

func (s *Service) handleMapClick(e dispatcher.Event) (any, error) {
	c, err := s.coordinator()
	if err != nil {
		return nil, err
	}
	sel, err := s.deps.Parser.ParseCoordinates(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse map click: %w", err)
	}
	if err := c.OnMapClicked(sel.Latitude, sel.Longitude); err != nil {
		return nil, err
	}
	return s.Status(), nil
}

// launchParams uses explicit arguments when present, the controls otherwise.
func (s *Service) launchParams(args []string) (core.AsteroidParameters, error) {
	if len(args) == 0 {
		return s.deps.Controls.Params(), nil
	}
	params, err := s.deps.Parser.ParseParameters(args)
	if err != nil {
		return params, fmt.Errorf("failed to parse launch parameters: %w", err)
	}
	return params, nil
}

func (s *Service) handleLaunch(e dispatcher.Event) (any, error) {
	c, err := s.coordinator()
	if err != nil {
		return nil, err
	}
	params, err := s.launchParams(e.Args)
	if err != nil {
		return nil, err
	}

	_, span := s.startLaunchSpan("overlay.launch", params)
	defer span.End()

	res, err := c.Launch(params)
	endSpan(span, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) handleQuickLaunch(e dispatcher.Event) (any, error) {
	c, err := s.coordinator()
	if err != nil {
		return nil, err
	}
	name, sel, err := s.deps.Parser.ParseQuickLaunch(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quick launch: %w", err)
	}
	params := s.deps.Controls.Params()

	_, span := s.startLaunchSpan("overlay.quick_launch", params)
	defer span.End()
	span.SetAttributes(
		attribute.String("target", name),
		attribute.Float64("lat", sel.Latitude),
		attribute.Float64("lng", sel.Longitude),
	)

	res, err := c.QuickLaunch(sel.Latitude, sel.Longitude, params)
	endSpan(span, res, err)
	if err != nil {
		return nil, err
	}
	if name != "" {
		s.deps.Logger.Info("Quick launch", "target", name, "energy_mt", res.EnergyMegatonsTNT)
	}
	return res, nil
}

func (s *Service) startLaunchSpan(name string, p core.AsteroidParameters) (context.Context, trace.Span) {
	return s.deps.Tracer.Start(context.Background(), name, trace.WithAttributes(
		attribute.Float64("asteroid.diameter_m", p.DiameterMeters),
		attribute.Float64("asteroid.velocity_kms", p.VelocityKmPerSec),
		attribute.Float64("asteroid.angle_deg", p.ImpactAngleDegrees),
		attribute.Float64("asteroid.density_kgm3", p.DensityKgM3),
	))
}

func endSpan(span trace.Span, res core.ImpactResult, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Float64("impact.energy_mt", res.EnergyMegatonsTNT),
		attribute.Int64("impact.casualties", res.EstimatedCasualties),
	)
}

func (s *Service) handleTeardown(dispatcher.Event) (any, error) {
	c, err := s.coordinator()
	if err != nil {
		return nil, err
	}
	c.Teardown()
	return s.Status(), nil
}

func (s *Service) setValue(field string, set func(float64) (float64, error), args []string) (any, error) {
	v, err := s.deps.Parser.ParseValue(field, args)
	if err != nil {
		return nil, err
	}
	if _, err := set(v); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", field, err)
	}
	return s.Status(), nil
}

func (s *Service) handleSetDiameter(e dispatcher.Event) (any, error) {
	return s.setValue("diameter", s.deps.Controls.SetDiameter, e.Args)
}

func (s *Service) handleSetVelocity(e dispatcher.Event) (any, error) {
	return s.setValue("velocity", s.deps.Controls.SetVelocity, e.Args)
}

func (s *Service) handleSetAngle(e dispatcher.Event) (any, error) {
	return s.setValue("angle", s.deps.Controls.SetAngle, e.Args)
}

func (s *Service) handleSetMaterial(e dispatcher.Event) (any, error) {
	name, err := s.deps.Parser.ParseName("material", e.Args)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Controls.SetMaterial(name); err != nil {
		return nil, err
	}
	return s.Status(), nil
}

func (s *Service) handlePresetDiameter(e dispatcher.Event) (any, error) {
	name, err := s.deps.Parser.ParseName("preset", e.Args)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Controls.ApplyPreset(name); err != nil {
		return nil, err
	}
	return s.Status(), nil
}

func (s *Service) handleStatus(dispatcher.Event) (any, error) {
	return s.Status(), nil
}

// handleCompute evaluates the impact model without touching the map. The
// location comes from args[4:6] when given, otherwise (0, 0).
func (s *Service) handleCompute(e dispatcher.Event) (any, error) {
	params, err := s.launchParams(e.Args)
	if err != nil {
		return nil, err
	}
	var loc core.Selection
	if len(e.Args) > 4 {
		if loc, err = s.deps.Parser.ParseCoordinates(e.Args[4:]); err != nil {
			return nil, err
		}
	}
	return impact.Compute(params, loc)
}

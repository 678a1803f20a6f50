package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/controls"
	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/handlers"
	"github.com/spaceweb/impactsim/internal/logging"
	termsurface "github.com/spaceweb/impactsim/internal/mapsurface/terminal"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/pkg/core"
)

const (
	minZoom = 0
	maxZoom = 18
)

const helpLine = "click: target  enter: launch  1-6: cities  d/m: size/material  v/V a/A: speed/angle  +/-: zoom  t: clear  q: quit"

// app owns the screen and routes input through the dispatcher so the terminal
// drives the overlay exactly like the HTTP API does.
type app struct {
	screen   tcell.Screen
	surface  *termsurface.Surface
	coord    *overlay.Coordinator
	service  *handlers.Service
	d        *dispatcher.Dispatcher
	presets  []config.QuickLaunchPreset
	log      logging.Logger
	lastErr  error
	cancelFn func()
}

type appConfig struct {
	View     termsurface.Viewport
	Map      config.MapConfig
	Controls controls.Values
	Presets  []config.QuickLaunchPreset
	Logger   logging.Logger
}

func newApp(screen tcell.Screen, cfg appConfig) (*app, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}
	d, err := dispatcher.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	surface := termsurface.New(screen, cfg.View)
	coord := overlay.New(surface,
		overlay.WithLogger(cfg.Logger),
		overlay.WithFitPadding(cfg.Map.FitPaddingPx),
		overlay.WithQuickLaunchZoom(cfg.Map.QuickLaunchZoom),
	)
	service := handlers.NewService(handlers.Dependencies{
		Coordinator: coord,
		Controls:    controls.New(cfg.Controls),
		Parser:      parser.NewParser(nil, cfg.Presets),
		Logger:      cfg.Logger,
	})
	service.Register(d)

	a := &app{
		screen:  screen,
		surface: surface,
		coord:   coord,
		service: service,
		d:       d,
		presets: cfg.Presets,
		log:     cfg.Logger,
	}
	coord.Bind(func(lat, lng float64) {
		a.dispatch(handlers.CmdMapClick, ftoa(lat), ftoa(lng))
	})
	a.cancelFn = coord.Subscribe(func(overlay.Snapshot) { a.refreshStatus() })
	a.refreshStatus()
	return a, nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (a *app) dispatch(cmd string, args ...string) {
	_, err := a.d.Dispatch(dispatcher.Event{Command: cmd, Args: args})
	a.lastErr = err
	if err != nil {
		a.log.Warn("Command failed", "command", cmd, "error", err)
	}
	a.refreshStatus()
}

// statusLines renders the control panel and, while visible, the results panel.
func (a *app) statusLines() []string {
	st := a.service.Status()
	v := st.Controls
	label := st.LaunchLabel
	if !st.Overlay.CanLaunch {
		label += " (pick a target)"
	}
	lines := []string{
		fmt.Sprintf("%s | %.0f m  %.0f km/s  %.0f°  %s | %s",
			st.Overlay.State, v.Diameter, v.Velocity, v.Angle, v.Material.DisplayName(), label),
	}
	if res, ok := st.Overlay.VisibleResult(); ok {
		// three readings per row keeps the panel inside 80 columns
		var row []string
		for _, l := range res.ResultLines() {
			row = append(row, l[0]+": "+l[1])
			if len(row) == 3 {
				lines = append(lines, strings.Join(row, "  "))
				row = row[:0]
			}
		}
	}
	if a.lastErr != nil {
		lines = append(lines, "error: "+a.lastErr.Error())
	}
	return append(lines, helpLine)
}

func (a *app) refreshStatus() {
	a.surface.SetStatus(a.statusLines())
}

// handleEvent applies one input event. It returns false when the user quits.
func (a *app) handleEvent(ev tcell.Event) bool {
	if a.surface.HandleEvent(ev) {
		return true
	}
	key, ok := ev.(*tcell.EventKey)
	if !ok {
		return true
	}

	switch key.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyEnter:
		a.dispatch(handlers.CmdLaunch)
		return true
	case tcell.KeyUp:
		a.pan(0, -1)
		return true
	case tcell.KeyDown:
		a.pan(0, 1)
		return true
	case tcell.KeyLeft:
		a.pan(-1, 0)
		return true
	case tcell.KeyRight:
		a.pan(1, 0)
		return true
	case tcell.KeyRune:
	default:
		return true
	}

	v := a.service.Status().Controls
	switch r := key.Rune(); {
	case r == 'q':
		return false
	case r == 'l':
		a.dispatch(handlers.CmdLaunch)
	case r == 't':
		a.dispatch(handlers.CmdTeardown)
	case r >= '1' && r <= '9':
		if i := int(r - '1'); i < len(a.presets) {
			a.dispatch(handlers.CmdQuickLaunch, a.presets[i].Name)
		}
	case r == 'd':
		a.dispatch(handlers.CmdPresetDiameter, nextPreset(v.Diameter).Name)
	case r == 'm':
		a.dispatch(handlers.CmdSetMaterial, string(nextMaterial(v.Material)))
	case r == 'v':
		a.dispatch(handlers.CmdSetVelocity, ftoa(v.Velocity-controls.VelocityRange.Step))
	case r == 'V':
		a.dispatch(handlers.CmdSetVelocity, ftoa(v.Velocity+controls.VelocityRange.Step))
	case r == 'a':
		a.dispatch(handlers.CmdSetAngle, ftoa(v.Angle-controls.AngleRange.Step))
	case r == 'A':
		a.dispatch(handlers.CmdSetAngle, ftoa(v.Angle+controls.AngleRange.Step))
	case r == '+' || r == '=':
		a.zoom(1)
	case r == '-':
		a.zoom(-1)
	}
	return true
}

// pan moves the view a quarter screen in the given direction.
func (a *app) pan(dx, dy int) {
	w, h := a.screen.Size()
	h -= len(a.statusLines())
	lat, lng, ok := a.surface.LatLngAt(w/2+dx*w/4, h/2+dy*h/4)
	if !ok {
		return
	}
	a.lastErr = a.surface.SetView(lat, lng, a.surface.View().Zoom)
}

func (a *app) zoom(delta int) {
	view := a.surface.View()
	z := min(max(view.Zoom+delta, minZoom), maxZoom)
	a.lastErr = a.surface.SetView(view.Lat, view.Lng, z)
}

// nextPreset returns the first preset larger than d, wrapping to the smallest.
func nextPreset(d float64) controls.DiameterPreset {
	for _, p := range controls.DiameterPresets {
		if p.Meters > d {
			return p
		}
	}
	return controls.DiameterPresets[0]
}

func nextMaterial(m core.Material) core.Material {
	for i, candidate := range core.Materials {
		if candidate == m {
			return core.Materials[(i+1)%len(core.Materials)]
		}
	}
	return core.Materials[0]
}

// run polls input until the user quits, then drains the dispatcher.
func (a *app) run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	for {
		a.screen.Show()
		select {
		case <-ctx.Done():
			return a.close()
		case ev, ok := <-events:
			if !ok || !a.handleEvent(ev) {
				return a.close()
			}
		}
	}
}

func (a *app) close() error {
	a.cancelFn()
	a.coord.Teardown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.d.Close(ctx)
}

// Command impactsim-tui runs the impact simulator on a terminal map.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/pflag"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/controls"
	"github.com/spaceweb/impactsim/internal/logging"
	termsurface "github.com/spaceweb/impactsim/internal/mapsurface/terminal"
	"github.com/spaceweb/impactsim/pkg/core"
)

const (
	AppName         = "impactsim-tui"
	shutdownTimeout = 5 * time.Second
)

var SessionStartTime = time.Now()

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	fs.String("logLevel", "info", "log level (debug, info, warn, error)")
	fs.String("logsDir", "./logs", "directory for session logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.Load(*configDir); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return err
	}
	if err := config.BindFlags(fs); err != nil {
		return err
	}

	// the screen owns stdout, so records only go to the session file
	slogManager := logging.NewSlogManager()
	var logOut io.Writer = io.Discard
	logFile, err := logging.OpenLogFile(config.GetString("logsDir"), AppName, SessionStartTime)
	if err == nil {
		defer logFile.Close()
		logOut = logFile
	}
	slogManager.Setup(logging.Options{File: logOut, Level: config.GetString("logLevel")})
	logger := slogManager.Logger()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.EnableMouse()
	screen.SetStyle(tcell.StyleDefault)

	cfg := appConfigFromViper()
	cfg.Logger = logger
	a, err := newApp(screen, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("Terminal session started", "view", cfg.View)
	return a.run(ctx)
}

func appConfigFromViper() appConfig {
	mapCfg := config.GetMapConfig()
	cc := config.GetControlsConfig()
	material, _, err := core.ParseMaterial(cc.Material)
	if err != nil {
		material = core.MaterialRock
	}
	values := controls.Values{
		Diameter: cc.Diameter,
		Velocity: cc.Velocity,
		Angle:    cc.Angle,
		Material: material,
	}
	return appConfig{
		View:     termsurface.Viewport{Lat: mapCfg.CenterLat, Lng: mapCfg.CenterLng, Zoom: mapCfg.Zoom},
		Map:      mapCfg,
		Controls: values,
		Presets:  config.GetQuickLaunchPresets(),
	}
}

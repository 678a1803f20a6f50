package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/database"
	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/handlers"
	"github.com/spaceweb/impactsim/internal/impact"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/mapsurface/memory"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/internal/storage"
	gormstorage "github.com/spaceweb/impactsim/internal/storage/gorm"
	memstorage "github.com/spaceweb/impactsim/internal/storage/memory"
	"github.com/spaceweb/impactsim/internal/worker"
	"github.com/spaceweb/impactsim/pkg/core"
)

var errUnknownCommand = errors.New("unknown command")

const usage = `usage: impactsim [command] [flags]

commands:
  serve     run the HTTP API and browser map (default)
  compute   compute one impact and print it as JSON
  simulate  quick-launch preset targets on an in-memory map
  history   list recorded impacts
  version   print the build version
`

// run dispatches to a subcommand. The first argument names it unless it is a flag.
func run(args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return runServe(args)
	case "compute":
		return runCompute(args, out)
	case "simulate":
		return runSimulate(args, out)
	case "history":
		return runHistory(args, out)
	case "version":
		_, err := fmt.Fprintf(out, "%s %s\n", AppName, BuildVersion)
		return err
	case "help", "-h", "--help":
		_, err := io.WriteString(out, usage)
		return err
	default:
		return fmt.Errorf("%w %q\n%s", errUnknownCommand, cmd, usage)
	}
}

// newFlagSet returns a flag set carrying the flags every command shares.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	fs.String("logLevel", "info", "log level (debug, info, warn, error)")
	return fs, configDir
}

// loadConfig parses the flags, reads the config file and lets explicitly set
// flags override it.
func loadConfig(fs *pflag.FlagSet, configDir *string, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	err := config.Load(*configDir)
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return err
	}
	if bindErr := config.BindFlags(fs); bindErr != nil {
		return bindErr
	}
	if err != nil {
		Logger.Warn("Config file not found, using defaults", "dir", *configDir)
	}
	return nil
}

// setupConsoleLogging keeps stdout free for command output.
func setupConsoleLogging() {
	SlogManager.Setup(logging.Options{
		File:  os.Stderr,
		Level: config.GetString("logLevel"),
	})
	Logger = SlogManager.Logger()
}

func runServe(args []string) error {
	fs, configDir := newFlagSet("serve")
	fs.String("server.address", ":8080", "HTTP listen address")
	fs.String("server.mode", "", "gin mode (debug, release, test)")
	fs.String("storage.type", "memory", "impact history backend (memory, sqlite, postgres, websocket)")
	fs.String("logsDir", "./logs", "directory for session logs")
	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}
	return serve(context.Background())
}

type computeOutput struct {
	Parameters core.AsteroidParameters `json:"parameters"`
	Material   string                  `json:"material,omitempty"`
	Result     core.ImpactResult       `json:"result"`
	Summary    [][2]string             `json:"summary"`
}

// runCompute prints one impact without touching any map. Unset flags take the
// configured control values.
func runCompute(args []string, out io.Writer) error {
	fs, configDir := newFlagSet("compute")
	diameter := fs.Float64("diameter", 0, "asteroid diameter in meters")
	velocity := fs.Float64("velocity", 0, "entry velocity in km/s")
	angle := fs.Float64("angle", 0, "impact angle in degrees from horizontal")
	material := fs.String("material", "", "ice, rock, iron or a density in kg/m³")
	lat := fs.Float64("lat", 0, "impact latitude")
	lng := fs.Float64("lng", 0, "impact longitude")
	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}
	setupConsoleLogging()

	cc := config.GetControlsConfig()
	if fs.Changed("diameter") {
		cc.Diameter = *diameter
	}
	if fs.Changed("velocity") {
		cc.Velocity = *velocity
	}
	if fs.Changed("angle") {
		cc.Angle = *angle
	}
	if fs.Changed("material") {
		cc.Material = *material
	}

	_, density, err := core.ParseMaterial(cc.Material)
	if err != nil {
		return err
	}
	params := core.AsteroidParameters{
		DiameterMeters:     cc.Diameter,
		VelocityKmPerSec:   cc.Velocity,
		ImpactAngleDegrees: cc.Angle,
		DensityKgM3:        density,
	}
	p := parser.NewParser(Logger, nil)
	location, err := p.ParseCoordinates([]string{ftoa(*lat), ftoa(*lng)})
	if err != nil {
		return err
	}

	res, err := impact.Compute(params, location)
	if err != nil {
		return err
	}
	m, _ := params.Material()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(computeOutput{
		Parameters: params,
		Material:   string(m),
		Result:     res,
		Summary:    res.ResultLines(),
	})
}

// runSimulate drives the same dispatcher and handlers as serve against an
// in-memory map, quick-launching each target in turn.
func runSimulate(args []string, out io.Writer) error {
	fs, configDir := newFlagSet("simulate")
	targets := fs.StringSlice("targets", nil, "quick-launch targets by name (default: all presets)")
	record := fs.Bool("record", false, "record each launch to the configured storage backend")
	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}
	setupConsoleLogging()

	mapCfg := config.GetMapConfig()
	presets := config.GetQuickLaunchPresets()
	names := *targets
	if len(names) == 0 {
		for _, p := range presets {
			names = append(names, p.Name)
		}
	}

	d, err := dispatcher.New(Logger)
	if err != nil {
		return err
	}
	surface := memory.New(memory.WithView(mapCfg.CenterLat, mapCfg.CenterLng, mapCfg.Zoom))
	coordinator := overlay.New(surface,
		overlay.WithLogger(Logger),
		overlay.WithFitPadding(mapCfg.FitPaddingPx),
		overlay.WithQuickLaunchZoom(mapCfg.QuickLaunchZoom),
	)
	parserService := parser.NewParser(Logger, presets)
	svc := handlers.NewService(handlers.Dependencies{
		Coordinator: coordinator,
		Controls:    initialControls(),
		Parser:      parserService,
		Logger:      Logger,
	})
	svc.Register(d)

	var backend storage.Backend
	if *record {
		backend = initStorage(config.GetStorageConfig(), Logger, newZerolog())
		w := worker.NewManager(worker.Dependencies{Logger: Logger, Parser: parserService, Backend: backend})
		w.RegisterHandlers(d)
		defer w.Watch(coordinator, d)()
	}

	var failed []string
	for _, name := range names {
		resAny, err := d.Dispatch(dispatcher.Event{Command: handlers.CmdQuickLaunch, Args: []string{name}})
		if err != nil {
			failed = append(failed, name)
			fmt.Fprintf(out, "%s: %v\n\n", name, err)
			continue
		}
		res := resAny.(core.ImpactResult)
		fmt.Fprintf(out, "%s (%s)\n", name, res.Location)
		writeResultLines(out, res)
		fmt.Fprintln(out)
	}

	writeOverlay(out, surface)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = d.Close(ctx)
	if backend != nil {
		err = errors.Join(err, backend.Close())
	}
	if len(failed) > 0 {
		err = errors.Join(err, fmt.Errorf("%d of %d targets failed: %s", len(failed), len(names), strings.Join(failed, ", ")))
	}
	return err
}

func writeResultLines(out io.Writer, res core.ImpactResult) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, line := range res.ResultLines() {
		fmt.Fprintf(tw, "  %s\t%s\n", line[0], line[1])
	}
	_ = tw.Flush()
}

func writeOverlay(out io.Writer, surface *memory.Surface) {
	view := surface.View()
	fmt.Fprintf(out, "map view %.4f,%.4f zoom %d\n", view.Lat, view.Lng, view.Zoom)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tKIND\tLAT\tLNG\tRADIUS\tLABEL")
	for _, l := range surface.Layers() {
		label, radius := "", "-"
		switch {
		case l.Icon != nil:
			label = l.Icon.ClassName
		case l.Style != nil:
			label = l.Style.Label
			radius = core.FormatKm(l.RadiusMeters / 1000)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%s\t%s\n", l.Handle, l.Kind, l.Lat, l.Lng, radius, label)
	}
	_ = tw.Flush()
}

// runHistory lists recorded impacts. The memory backend is read from its newest
// export file and SQLite from its dump, so no server needs to be running.
func runHistory(args []string, out io.Writer) error {
	fs, configDir := newFlagSet("history")
	fs.String("storage.type", "memory", "impact history backend (memory, sqlite, postgres, websocket)")
	limit := fs.Int("limit", 20, "number of impacts to list, 0 for all")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}
	setupConsoleLogging()

	records, err := loadHistory(config.GetStorageConfig(), *limit)
	if err != nil {
		return err
	}

	if *asJSON {
		items := make([]memstorage.ImpactJSON, 0, len(records))
		for _, r := range records {
			items = append(items, memstorage.NewImpactJSON(r))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LAUNCHED\tLOCATION\tDIAMETER\tVELOCITY\tANGLE\tDENSITY\tENERGY\tCASUALTIES")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.0f m\t%.0f km/s\t%.0f°\t%.0f\t%s\t%s\n",
			r.LaunchedAt.Local().Format(time.DateTime),
			r.Result.Location,
			r.Parameters.DiameterMeters,
			r.Parameters.VelocityKmPerSec,
			r.Parameters.ImpactAngleDegrees,
			r.Parameters.DensityKgM3,
			core.FormatEnergy(r.Result.EnergyMegatonsTNT),
			core.FormatCount(r.Result.EstimatedCasualties),
		)
	}
	return tw.Flush()
}

func loadHistory(storageCfg config.StorageConfig, limit int) ([]core.ImpactRecord, error) {
	switch storageCfg.Type {
	case "memory", "":
		path, err := memstorage.LatestExport(storageCfg.Memory.OutputDir)
		if err != nil {
			return nil, err
		}
		export, err := memstorage.ReadExport(path)
		if err != nil {
			return nil, err
		}
		return storage.Newest(export.Records(), limit), nil

	case "sqlite":
		db, err := database.OpenSQLite(storageCfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", storageCfg.SQLite.Path, err)
		}
		backend := gormstorage.New(gormstorage.Dependencies{DB: db, Logger: Logger, ServiceName: logging.ServiceName})
		return listAndClose(backend, limit)

	default:
		backend, err := createStorageBackend(storageCfg, Logger, newZerolog())
		if err != nil {
			return nil, err
		}
		return listAndClose(backend, limit)
	}
}

func listAndClose(backend storage.Backend, limit int) ([]core.ImpactRecord, error) {
	if err := backend.Init(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	records, err := backend.ListImpacts(ctx, limit)
	return records, errors.Join(err, backend.Close())
}

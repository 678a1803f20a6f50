package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/controls"
	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/handlers"
	"github.com/spaceweb/impactsim/internal/influx"
	"github.com/spaceweb/impactsim/internal/logging"
	wssurface "github.com/spaceweb/impactsim/internal/mapsurface/websocket"
	"github.com/spaceweb/impactsim/internal/metrics"
	intOtel "github.com/spaceweb/impactsim/internal/otel"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/internal/server"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/internal/worker"
	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/spaceweb/impactsim/pkg/streaming"
)

const shutdownTimeout = 10 * time.Second

var (
	AppName          = "impactsim"
	BuildVersion     = "dev" // set with -ldflags "-X main.BuildVersion=..."
	SessionStartTime = time.Now()

	SlogManager = logging.NewSlogManager()
	Logger      = SlogManager.Logger()

	LogFile      *os.File
	LogFilePath  string
	OTelProvider *intOtel.Provider
	GraylogSink  io.WriteCloser
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// setupLogging opens the session log file and rebuilds the slog chain with the
// optional OTel bridge and Graylog sink. Failures degrade to stdout logging.
func setupLogging() {
	logsDir := config.GetString("logsDir")
	level := config.GetString("logLevel")

	var err error
	LogFile, err = logging.OpenLogFile(logsDir, AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "dir", logsDir)
		LogFile = nil
	} else {
		LogFilePath = LogFile.Name()
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var otelWriter io.Writer
		if LogFile != nil {
			otelWriter = LogFile
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    otelWriter,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
			Tracing:      otelCfg.Tracing,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		}
	}

	if config.GetBool("graylog.enabled") {
		address := config.GetString("graylog.address")
		w, err := logging.NewGraylogWriter(address)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			GraylogSink = w
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	opts := logging.Options{
		Level:    level,
		Provider: otelLogProvider,
	}
	if LogFile != nil {
		opts.File = LogFile
	}
	if GraylogSink != nil {
		opts.Graylog = GraylogSink
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()

	if LogFile != nil {
		Logger.Info("Logging to file", "path", LogFilePath)
	}
	if OTelProvider != nil {
		Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint, "tracing", OTelProvider.TracingEnabled())
	}
}

// newZerolog builds the logger handed to the database and influx managers.
func newZerolog() zerolog.Logger {
	var w io.Writer = os.Stderr
	if LogFile != nil {
		w = LogFile
	}
	return zerolog.New(w).Level(zerologLevel(config.GetString("logLevel"))).
		With().Timestamp().Str("service", logging.ServiceName).Logger()
}

func zerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// initialControls builds the slider state from the controls.* keys.
func initialControls() *controls.Controls {
	cc := config.GetControlsConfig()
	material, _, err := core.ParseMaterial(cc.Material)
	if err != nil {
		Logger.Warn("Unknown material in config, using rock", "material", cc.Material)
		material = core.MaterialRock
	}
	return controls.New(controls.Values{
		Diameter: cc.Diameter,
		Velocity: cc.Velocity,
		Angle:    cc.Angle,
		Material: material,
	})
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// serve runs the browser front end until SIGINT or SIGTERM.
func serve(ctx context.Context) error {
	setupLogging()
	Logger.Info("Starting up...", "version", BuildVersion)

	dbLog := newZerolog()
	mapCfg := config.GetMapConfig()
	presets := config.GetQuickLaunchPresets()

	eventDispatcher, err := dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	hub := wssurface.New(streaming.ViewPayload{
		Lat:  mapCfg.CenterLat,
		Lng:  mapCfg.CenterLng,
		Zoom: mapCfg.Zoom,
	}, Logger)

	coordinator := overlay.New(hub,
		overlay.WithLogger(Logger),
		overlay.WithFitPadding(mapCfg.FitPaddingPx),
		overlay.WithQuickLaunchZoom(mapCfg.QuickLaunchZoom),
	)

	parserService := parser.NewParser(Logger, presets)
	handlerDeps := handlers.Dependencies{
		Coordinator: coordinator,
		Controls:    initialControls(),
		Parser:      parserService,
		Logger:      Logger,
	}
	if OTelProvider != nil {
		handlerDeps.Tracer = OTelProvider.Tracer(AppName)
	}
	handlerService := handlers.NewService(handlerDeps)
	handlerService.Register(eventDispatcher)
	SlogManager.SetContextProvider(handlerService.LogContext)

	storageBackend := initStorage(config.GetStorageConfig(), Logger, dbLog)
	uploadCfg := config.GetUploadConfig()
	checkCollector(ctx, uploadCfg, Logger)

	var sinks []worker.Sink
	var collector *metrics.Collector
	if config.GetBool("metrics.enabled") {
		collector, err = metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			Logger.Error("Failed to register metrics", "error", err)
		} else {
			defer collector.Watch(coordinator)()
			sinks = append(sinks, collector)
		}
	}

	influxManager := influx.NewManager(dbLog, config.GetInfluxConfig(), influxBackupPath())
	if err := influxManager.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Error("Failed to set up InfluxDB", "error", err)
		}
	} else {
		sinks = append(sinks, influxManager)
	}

	workerManager := worker.NewManager(worker.Dependencies{
		Logger:  Logger,
		Parser:  parserService,
		Backend: storageBackend,
		Sinks:   sinks,
	})
	workerManager.RegisterHandlers(eventDispatcher)
	defer workerManager.Watch(coordinator, eventDispatcher)()

	// browsers see every state change, including those made through the API
	defer coordinator.Subscribe(func(overlay.Snapshot) {
		hub.Publish(handlerService.Status())
	})()
	hub.Publish(handlerService.Status())

	coordinator.Bind(func(lat, lng float64) {
		if _, err := eventDispatcher.Dispatch(dispatcher.Event{
			Command: handlers.CmdMapClick,
			Args:    []string{ftoa(lat), ftoa(lng)},
		}); err != nil {
			Logger.Warn("Map click rejected", "lat", lat, "lng", lng, "error", err)
		}
	})
	hub.OnLaunch(func() {
		if _, err := eventDispatcher.Dispatch(dispatcher.Event{Command: handlers.CmdLaunch}); err != nil {
			Logger.Warn("Launch rejected", "error", err)
		}
	})

	srv := server.New(config.GetServerConfig(), server.Dependencies{
		Dispatcher: eventDispatcher,
		Backend:    storageBackend,
		Hub:        hub.ServeWS,
		Metrics:    collector,
		Presets:    presets,
		Logger:     Logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err = <-serveErr:
		if err != nil {
			Logger.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		Logger.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, shutdown(shutdownCtx, srv, coordinator, hub, eventDispatcher, storageBackend, uploadCfg, influxManager))
}

// shutdown stops intake first, then drains queued recordings before closing
// the sinks they write to.
func shutdown(ctx context.Context, srv *server.Server, coordinator *overlay.Coordinator, hub *wssurface.Hub,
	d *dispatcher.Dispatcher, backend storage.Backend, uploadCfg config.UploadConfig, influxManager *influx.Manager) error {
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	coordinator.Teardown()
	if err := hub.Dispose(); err != nil {
		errs = append(errs, fmt.Errorf("dispose hub: %w", err))
	}
	if err := d.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain dispatcher: %w", err))
	}
	if err := backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	} else if err := uploadExport(ctx, uploadCfg, backend, Logger); err != nil {
		Logger.Error("Failed to upload impact history", "error", err)
	}
	if err := influxManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close influx: %w", err))
	}
	closeLogging(ctx)
	return errors.Join(errs...)
}

func closeLogging(ctx context.Context) {
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if GraylogSink != nil {
		_ = GraylogSink.Close()
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func influxBackupPath() string {
	return filepath.Join(config.GetString("logsDir"),
		fmt.Sprintf("%s_influx_%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405")))
}

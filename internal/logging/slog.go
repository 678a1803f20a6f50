package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName tags records sent to OTel and Graylog.
const ServiceName = "impactsim"

// swapped by tests
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// Options selects the sinks of a SlogManager.
type Options struct {
	// File receives text records. When nil, records go to stdout instead.
	File  io.Writer
	Level string
	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// Graylog receives JSON records when non-nil, typically a GELF writer.
	Graylog io.Writer
}

// SlogManager manages slog-based logging with optional OTel and Graylog sinks.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	context     atomic.Pointer[ContextProvider]
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a string log level to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup (re)builds the handler chain.
func (m *SlogManager) Setup(opts Options) {
	m.logProvider = opts.Provider

	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}
	if opts.Graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.Graylog, handlerOpts).
			WithAttrs([]slog.Attr{slog.String("service", ServiceName)}))
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(opts.Provider)))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), m.contextAttrs))
	m.logger.Info("Logging initialized", "level", ParseLevel(opts.Level).String())
}

// SetContextProvider installs attributes appended to every record, e.g. the overlay state.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	if p == nil {
		m.context.Store(nil)
		return
	}
	m.context.Store(&p)
}

func (m *SlogManager) contextAttrs() []slog.Attr {
	p := m.context.Load()
	if p == nil {
		return nil
	}
	return (*p)()
}

// Logger returns the configured slog.Logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

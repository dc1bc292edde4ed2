package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the global logger instance
var Log *slog.Logger

type Options struct {
	AppName     string
	Environment string // "development" selects text output
	Level       string // debug|info|warn|error, empty picks per environment
	SentryDSN   string
}

func (o Options) development() bool {
	return o.Environment == "development"
}

// ParseLevel maps a LOG_LEVEL value to a slog level. An empty value gives
// debug in development and info everywhere else.
func ParseLevel(s string, development bool) (slog.Level, error) {
	if s == "" {
		if development {
			return slog.LevelDebug, nil
		}
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// New builds a logger writing to w: text in development, JSON otherwise.
// Error records are also shipped to Sentry when a DSN is configured.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level, opts.development())
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewJSONHandler(w, handlerOpts)}
	if opts.development() {
		handlers[0] = slog.NewTextHandler(w, handlerOpts)
	}

	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              opts.SentryDSN,
			ServerName:       opts.AppName,
			Environment:      opts.Environment,
			TracesSampleRate: 0.2,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init sentry: %w", err)
		}
		handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
	}

	handler := handlers[0]
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	}

	l := slog.New(handler)
	if opts.AppName != "" {
		l = l.With("app", opts.AppName)
	}
	return l, nil
}

// Init installs the global logger on stdout. A bad level or Sentry DSN is
// reported and the process keeps logging without it.
func Init(opts Options) {
	l, err := New(os.Stdout, opts)
	if err != nil {
		opts.Level, opts.SentryDSN = "", ""
		l, _ = New(os.Stdout, opts)
		l.Warn("logger fell back to defaults", "error", err)
	}

	Log = l
	slog.SetDefault(Log)
}

// Flush waits for buffered Sentry events before the process exits.
func Flush() {
	sentry.Flush(2 * time.Second)
}

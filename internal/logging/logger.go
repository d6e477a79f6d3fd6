// Package logging configures zerolog for vaultsync and carries the logger
// through context.Context so engines never depend on a global.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration options.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, disabled.
	Level string

	// Format is auto, console or json. Auto picks console on a terminal.
	Format string

	// Output is stderr, stdout, discard or a file path.
	Output string

	NoColor   bool
	AddCaller bool
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "auto",
		Output:  "stderr",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// New builds a logger from cfg. The returned closer releases a log file if
// one was opened; it is always safe to call.
func New(cfg Config) (zerolog.Logger, func() error) {
	level := ParseLevel(cfg.Level)

	out, closer := openOutput(cfg.Output)
	writer := formatWriter(out, cfg)

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if cfg.AddCaller || level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger, closer
}

// ResolveLevel applies the flag precedence: explicit level, then verbose or
// quiet, then LOG_LEVEL, then info. Quiet wins over verbose.
func ResolveLevel(explicit string, verbose, quiet bool) string {
	if explicit != "" {
		return explicit
	}
	if quiet {
		return "warn"
	}
	if verbose {
		return "debug"
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return env
	}
	return "info"
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	default:
		if l, err := zerolog.ParseLevel(level); err == nil {
			return l
		}
		return zerolog.InfoLevel
	}
}

func openOutput(output string) (io.Writer, func() error) {
	nop := func() error { return nil }
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nop
	case "stdout":
		return os.Stdout, nop
	case "discard", "none":
		return io.Discard, nop
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stderr, nop
	}
	return f, f.Close
}

func formatWriter(out io.Writer, cfg Config) io.Writer {
	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if f, ok := out.(*os.File); ok {
			if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
				format = "console"
			}
		}
	}
	if format == "console" || format == "pretty" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: cfg.NoColor}
	}
	return out
}

type contextKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, &logger)
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*zerolog.Logger); ok && l != nil {
			return l
		}
	}
	nop := zerolog.Nop()
	return &nop
}

// WithJob returns ctx whose logger carries the job name.
func WithJob(ctx context.Context, job string) context.Context {
	l := FromContext(ctx)
	return WithLogger(ctx, l.With().Str("job", job).Logger())
}

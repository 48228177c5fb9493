// Package log provides the structured logger used throughout the scheduler.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once by Init.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how the global logger is built.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global logger. Safe to call once at process start.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// usable before Init is called (e.g. in unit tests)
	Init(Config{Level: InfoLevel})
}

// WithComponent returns a child logger tagged with a component name, e.g.
// "picker" or "orchestrator".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithDevice returns a child logger tagged with a device path.
func WithDevice(l zerolog.Logger, devicePath string) zerolog.Logger {
	return l.With().Str("device", devicePath).Logger()
}

// WithMedium returns a child logger tagged with a medium id.
func WithMedium(l zerolog.Logger, mediumID string) zerolog.Logger {
	return l.With().Str("medium", mediumID).Logger()
}

// LogOnErr logs err at warn level with msg if err is non-nil. Used for
// best-effort operations (e.g. DSS persistence after a primary operation
// already succeeded) whose failure must not unwind the caller.
func LogOnErr(l zerolog.Logger, err error, msg string) {
	if err != nil {
		l.Warn().Err(err).Msg(msg)
	}
}

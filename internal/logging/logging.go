// Package logging provides the diagnostic logger for the jovian CLI.
//
// Diagnostic logs are off the user's path: they are discarded unless
// --print-logs is given, and they never replace the "[jovian]" progress
// messages printed by package ui.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level is a zerolog level.
type Level = zerolog.Level

// Log levels exposed for convenience.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level Level
	// Output receives log lines. A nil Output discards everything.
	Output io.Writer
	// Pretty switches to zerolog's console writer.
	Pretty bool
}

// DefaultConfig discards all output.
func DefaultConfig() Config {
	return Config{Level: WarnLevel, Output: io.Discard}
}

// Init replaces the global logger.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	Logger = zerolog.New(out).
		Level(cfg.Level).
		With().
		Timestamp().
		Str("app", "jovian").
		Logger()
}

// Setup configures the global logger from the --log-level and --print-logs
// flag values.
func Setup(level string, printLogs bool) {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	if printLogs {
		cfg.Output = os.Stderr
		cfg.Pretty = true
	}
	Init(cfg)
}

// ParseLevel parses a level name case-insensitively. Unknown names map to WARN.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "ERROR":
		return ErrorLevel
	default:
		return WarnLevel
	}
}

// Debug starts a new debug level log message.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info starts a new info level log message.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn starts a new warn level log message.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error starts a new error level log message.
func Error() *zerolog.Event {
	return Logger.Error()
}

func init() {
	Init(DefaultConfig())
}

// Package logging wraps bolt with field helpers for the cache engine.
// One process-wide logger serves every tier; components tag their
// records with the Component field instead of owning sub-loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
)

// Levels accepted by Config.Level and SetLevel.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config selects the level and encoding of the engine logger.
type Config struct {
	// Level is the minimum level emitted. Unknown values fall back
	// to info.
	Level string

	// Format selects the encoding: "json" for machine-readable
	// records, anything else renders for a console.
	Format string

	// Output receives the records. Defaults to stdout.
	Output io.Writer
}

// DefaultConfig logs info and above to a console on stdout.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: "console",
	}
}

var (
	mu     sync.Mutex
	logger *bolt.Logger
)

// Init builds the engine logger. The first Init wins; later calls are
// ignored so embedded use cannot reconfigure the host binary's
// logging.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = build(cfg)
	}
}

// Get returns the engine logger, building the default one on first
// use.
func Get() *bolt.Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = build(DefaultConfig())
	}
	return logger
}

// SetLevel adjusts the running logger's minimum level.
func SetLevel(level string) {
	Get().SetLevel(boltLevel(level))
}

func build(cfg Config) *bolt.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var handler bolt.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = bolt.NewJSONHandler(out)
	} else {
		handler = bolt.NewConsoleHandler(out)
	}
	return bolt.New(handler).SetLevel(boltLevel(cfg.Level))
}

func boltLevel(s string) bolt.Level {
	switch strings.ToLower(s) {
	case LevelTrace:
		return bolt.TRACE
	case LevelDebug:
		return bolt.DEBUG
	case LevelInfo:
		return bolt.INFO
	case LevelWarn:
		return bolt.WARN
	case LevelError:
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// LogEvent chains Field appliers onto one bolt event.
type LogEvent struct {
	event *bolt.Event
}

func at(event *bolt.Event) *LogEvent {
	return &LogEvent{event: event}
}

// Add applies a field and returns the event for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Msg emits the event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Send emits the event without a message.
func (l *LogEvent) Send() {
	l.event.Send()
}

// Trace starts a trace-level event.
func Trace() *LogEvent { return at(Get().Trace()) }

// Debug starts a debug-level event.
func Debug() *LogEvent { return at(Get().Debug()) }

// Info starts an info-level event.
func Info() *LogEvent { return at(Get().Info()) }

// Warn starts a warn-level event.
func Warn() *LogEvent { return at(Get().Warn()) }

// Error starts an error-level event.
func Error() *LogEvent { return at(Get().Error()) }

// Fatal starts a fatal-level event.
func Fatal() *LogEvent { return at(Get().Fatal()) }

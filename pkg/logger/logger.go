package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Bridge routes printf-style and key/value loggers of third-party libraries into slog.
// It satisfies the golang-migrate Logger and the robfig/cron Logger interfaces.
type Bridge struct {
	log     *slog.Logger
	verbose bool
}

// New returns a bridge tagged with the component name.
func New(base *slog.Logger, component string) *Bridge {
	if base == nil {
		base = slog.Default()
	}
	return &Bridge{log: base.With("component", component)}
}

// WithVerbose toggles migrate's verbose output.
func (b *Bridge) WithVerbose(v bool) *Bridge {
	b.verbose = v
	return b
}

// Printf logs a formatted debug line.
func (b *Bridge) Printf(format string, v ...interface{}) {
	b.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Verbose reports whether verbose logging is requested.
func (b *Bridge) Verbose() bool {
	return b.verbose
}

// Info logs routine messages with alternating key/value pairs.
func (b *Bridge) Info(msg string, keysAndValues ...interface{}) {
	b.log.Debug(msg, keysAndValues...)
}

// Error logs an error with alternating key/value pairs.
func (b *Bridge) Error(err error, msg string, keysAndValues ...interface{}) {
	b.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Package logging builds the loggers shared by the daemon's components.
// Components take a *log.Logger and add their own prefix with WithPrefix,
// e.g. "querycache" or "git-watcher".
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultLevel is used when the configured level is empty or unknown.
const DefaultLevel = log.InfoLevel

// New returns a root logger writing to stderr at the given level.
func New(level string) *log.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter returns a root logger writing to w at the given level.
func NewWithWriter(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	logger.SetLevel(ParseLevel(level))
	return logger
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a component is built without a logger.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// ParseLevel parses a level name, falling back to DefaultLevel.
func ParseLevel(level string) log.Level {
	if level == "" {
		return DefaultLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return DefaultLevel
	}
	return lvl
}

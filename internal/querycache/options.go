package querycache

import (
	"time"

	"github.com/charmbracelet/log"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The Coordinator adds its own prefix.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger.WithPrefix("querycache")
		}
	}
}

// WithNotifier registers a callback for cache change events. The callback
// runs on the caller's goroutine after the change is installed and must not
// block.
func WithNotifier(fn func(Event)) Option {
	return func(c *Coordinator) {
		c.notify = fn
	}
}

// WithFetchTimeout bounds every fetch issued to the history source.
// Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

package engine

import (
	"log/slog"
	"time"

	"github.com/hupe1980/bkdgo/internal/resource"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithResourceController shares a resource controller (memory, background
// workers and I/O rate) with the engine.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
	}
}

// WithMetricsObserver sets the metrics observer.
func WithMetricsObserver(o MetricsObserver) Option {
	return func(e *Engine) {
		if o != nil {
			e.metrics = o
		}
	}
}

// WithBackgroundMerge runs merges on a background goroutine instead of on
// the inserting goroutine.
func WithBackgroundMerge(enabled bool) Option {
	return func(e *Engine) {
		e.background = enabled
	}
}

// WithBlockCacheSize sets the capacity of the shared block cache in bytes.
// Zero disables caching.
func WithBlockCacheSize(bytes int64) Option {
	return func(e *Engine) {
		e.blockCacheBytes = bytes
	}
}

// WithMaxFrozenBuffers bounds the number of full buffers awaiting a merge.
// Inserts beyond the bound fail with ErrBackpressure.
func WithMaxFrozenBuffers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxFrozen = n
		}
	}
}

// WithRetryBackoff sets the bounds of the background merge retry delay.
func WithRetryBackoff(minDelay, maxDelay time.Duration) Option {
	return func(e *Engine) {
		if minDelay > 0 {
			e.retryMin = minDelay
		}
		if maxDelay >= e.retryMin {
			e.retryMax = maxDelay
		}
	}
}

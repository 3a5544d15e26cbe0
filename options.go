package bkdgo

import (
	"time"

	"github.com/hupe1980/bkdgo/internal/engine"
	"github.com/hupe1980/bkdgo/internal/resource"
)

type options struct {
	cfg              engine.Config
	logger           *Logger
	metricsCollector MetricsCollector
	blockCacheBytes  int64
	memoryLimitBytes int64
	ioLimitBytes     int64
	backgroundMerge  bool
	maxPending       int
	retryMin         time.Duration
	retryMax         time.Duration
	mmap             bool
}

// Option configures Open.
//
// Dims, BufferCapacity, LeafCapacity, Fanout, GrowthFactor, SplitPolicy and
// Compression are persisted when the index is created and ignored when an
// existing index is opened (a differing WithDims is rejected). The remaining
// options apply to the current process only.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		blockCacheBytes:  engine.DefaultBlockCacheBytes,
		mmap:             true,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithDims sets the number of dimensions k. Defaults to 2.
func WithDims(k int) Option {
	return func(o *options) {
		o.cfg.Dims = k
	}
}

// WithBufferCapacity sets the number of points held in memory before the
// buffer is flushed into a segment. It is also the capacity of level 0.
// Defaults to 4096.
func WithBufferCapacity(n int) Option {
	return func(o *options) {
		o.cfg.BufferCapacity = n
	}
}

// WithLeafCapacity sets the maximum number of points in a segment leaf
// block. Defaults to 128.
func WithLeafCapacity(n int) Option {
	return func(o *options) {
		o.cfg.LeafCapacity = n
	}
}

// WithFanout sets the maximum number of children of a segment inner block.
// Defaults to 16.
func WithFanout(n int) Option {
	return func(o *options) {
		o.cfg.Fanout = n
	}
}

// WithGrowthFactor sets the capacity ratio between consecutive levels.
// Defaults to 2.
func WithGrowthFactor(g int) Option {
	return func(o *options) {
		o.cfg.GrowthFactor = g
	}
}

// WithSplitPolicy selects how segment inner blocks choose their split axis.
func WithSplitPolicy(p SplitPolicy) Option {
	return func(o *options) {
		o.cfg.SplitPolicy = p
	}
}

// WithCompression selects the codec of value-index chunks and tombstones.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.cfg.Compression = c
	}
}

// WithLogger sets the logger. If nil, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithBlockCacheSize sets the block cache capacity in bytes. Zero disables
// the cache.
func WithBlockCacheSize(bytes int64) Option {
	return func(o *options) {
		o.blockCacheBytes = bytes
	}
}

// WithMemoryLimit bounds the memory reserved by merges and the block cache.
// A merge that cannot reserve its working set fails and is retried later.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimitBytes = bytes
	}
}

// WithIOLimit throttles segment writes to bytes per second.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimitBytes = bytesPerSec
	}
}

// WithBackgroundMerge moves merges off the inserting goroutine.
func WithBackgroundMerge(enabled bool) Option {
	return func(o *options) {
		o.backgroundMerge = enabled
	}
}

// WithMaxPendingBuffers bounds the number of full buffers awaiting a merge.
// Inserts beyond the bound fail with ErrBackpressure.
func WithMaxPendingBuffers(n int) Option {
	return func(o *options) {
		o.maxPending = n
	}
}

// WithRetryBackoff sets the delay bounds of background merge retries.
func WithRetryBackoff(minDelay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.retryMin = minDelay
		o.retryMax = maxDelay
	}
}

// WithMmap controls memory mapping of local segment files. Enabled by default.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

func (o options) engineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(o.logger.Logger),
		engine.WithMetricsObserver(observer{mc: o.metricsCollector}),
		engine.WithBlockCacheSize(o.blockCacheBytes),
		engine.WithBackgroundMerge(o.backgroundMerge),
		engine.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimitBytes,
			IOLimitBytesPerSec: o.ioLimitBytes,
		})),
	}
	if o.maxPending > 0 {
		opts = append(opts, engine.WithMaxFrozenBuffers(o.maxPending))
	}
	if o.retryMin > 0 {
		opts = append(opts, engine.WithRetryBackoff(o.retryMin, o.retryMax))
	}
	return opts
}

package engine

import (
	"fmt"
	"math"

	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/internal/manifest"
	"github.com/hupe1980/bkdgo/internal/segment"
)

const (
	DefaultDims           = 2
	DefaultBufferCapacity = 4096
	DefaultGrowthFactor   = 2
	DefaultMaxFrozen      = 4
)

// Config holds the parameters fixed at index creation. Zero fields take
// their defaults, or the stored value when an existing index is opened.
type Config struct {
	Dims           int
	BufferCapacity int
	LeafCapacity   int
	Fanout         int
	GrowthFactor   int
	SplitPolicy    segment.SplitPolicy
	Compression    compress.Type
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Dims:           DefaultDims,
		BufferCapacity: DefaultBufferCapacity,
		LeafCapacity:   segment.DefaultLeafCapacity,
		Fanout:         segment.DefaultFanout,
		GrowthFactor:   DefaultGrowthFactor,
		SplitPolicy:    segment.RoundRobin,
		Compression:    compress.LZ4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Dims == 0 {
		c.Dims = d.Dims
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = d.BufferCapacity
	}
	if c.LeafCapacity == 0 {
		c.LeafCapacity = d.LeafCapacity
	}
	if c.Fanout == 0 {
		c.Fanout = d.Fanout
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = d.GrowthFactor
	}
	return c
}

// Validate checks a fully populated configuration.
func (c Config) Validate() error {
	if c.BufferCapacity < 1 {
		return fmt.Errorf("%w: buffer capacity %d", ErrInvalidArgument, c.BufferCapacity)
	}
	if c.GrowthFactor < 2 {
		return fmt.Errorf("%w: growth factor %d, need at least 2", ErrInvalidArgument, c.GrowthFactor)
	}
	if err := c.segmentOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// LevelCapacity returns BufferCapacity * GrowthFactor^level, saturating at MaxInt.
func (c Config) LevelCapacity(level int) int {
	n := c.BufferCapacity
	for i := 0; i < level; i++ {
		if n > math.MaxInt/c.GrowthFactor {
			return math.MaxInt
		}
		n *= c.GrowthFactor
	}
	return n
}

func (c Config) segmentOptions() segment.Options {
	return segment.Options{
		Dims:         c.Dims,
		LeafCapacity: c.LeafCapacity,
		Fanout:       c.Fanout,
		SplitPolicy:  c.SplitPolicy,
		Compression:  c.Compression,
		BloomFPR:     segment.DefaultBloomFPR,
	}
}

func (c Config) toManifest() manifest.Config {
	return manifest.Config{
		Dims:           c.Dims,
		BufferCapacity: c.BufferCapacity,
		LeafCapacity:   c.LeafCapacity,
		Fanout:         c.Fanout,
		GrowthFactor:   c.GrowthFactor,
		SplitPolicy:    uint8(c.SplitPolicy),
		Compression:    uint8(c.Compression),
	}
}

func configFromManifest(m manifest.Config) Config {
	return Config{
		Dims:           m.Dims,
		BufferCapacity: m.BufferCapacity,
		LeafCapacity:   m.LeafCapacity,
		Fanout:         m.Fanout,
		GrowthFactor:   m.GrowthFactor,
		SplitPolicy:    segment.SplitPolicy(m.SplitPolicy),
		Compression:    compress.Type(m.Compression),
	}
}

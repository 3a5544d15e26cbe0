package engine

import "time"

// MetricsObserver receives engine events.
type MetricsObserver interface {
	// OnMerge is called when a merge completes or fails. inputs counts the
	// frozen buffer and every consumed segment.
	OnMerge(duration time.Duration, targetLevel, inputs, outputPoints int, err error)

	// OnQuery is called when a query cursor is exhausted or abandoned.
	OnQuery(duration time.Duration, results int, err error)

	// OnQueueDepth reports the number of frozen buffers awaiting a merge.
	OnQueueDepth(name string, depth int)

	// OnThroughput reports bytes written.
	OnThroughput(name string, bytes int64)
}

// NoopMetricsObserver discards all events.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnMerge(time.Duration, int, int, int, error) {}
func (NoopMetricsObserver) OnQuery(time.Duration, int, error)           {}
func (NoopMetricsObserver) OnQueueDepth(string, int)                    {}
func (NoopMetricsObserver) OnThroughput(string, int64)                  {}

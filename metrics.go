package bkdgo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/bkdgo/internal/engine"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert. duplicate reports a rejected point.
	RecordInsert(duration time.Duration, duplicate bool, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, found bool, err error)

	// RecordQuery is called after each pass over a query cursor.
	RecordQuery(results int, duration time.Duration, err error)

	// RecordMerge is called after each merge attempt.
	RecordMerge(targetLevel, inputs, points int, duration time.Duration, err error)

	// RecordPendingBuffers reports the number of buffers awaiting a merge.
	RecordPendingBuffers(n int)

	// RecordBytesWritten reports segment bytes written by merges.
	RecordBytesWritten(n int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, bool, error)         {}
func (NoopMetricsCollector) RecordDelete(time.Duration, bool, error)         {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordMerge(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordPendingBuffers(int)                        {}
func (NoopMetricsCollector) RecordBytesWritten(int64)                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertDuplicates atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteMisses     atomic.Int64
	DeleteErrors     atomic.Int64
	QueryCount       atomic.Int64
	QueryResults     atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	MergeCount       atomic.Int64
	MergeErrors      atomic.Int64
	MergePoints      atomic.Int64
	PendingBuffers   atomic.Int64
	BytesWritten     atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, duplicate bool, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if duplicate {
		b.InsertDuplicates.Add(1)
	}
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, found bool, err error) {
	b.DeleteCount.Add(1)
	if !found {
		b.DeleteMisses.Add(1)
	}
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryResults.Add(int64(results))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(_, _, points int, _ time.Duration, err error) {
	b.MergeCount.Add(1)
	b.MergePoints.Add(int64(points))
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// RecordPendingBuffers implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPendingBuffers(n int) {
	b.PendingBuffers.Store(int64(n))
}

// RecordBytesWritten implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBytesWritten(n int64) {
	b.BytesWritten.Add(n)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:      b.InsertCount.Load(),
		InsertDuplicates: b.InsertDuplicates.Load(),
		InsertErrors:     b.InsertErrors.Load(),
		InsertAvgNanos:   avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		DeleteCount:      b.DeleteCount.Load(),
		DeleteMisses:     b.DeleteMisses.Load(),
		DeleteErrors:     b.DeleteErrors.Load(),
		QueryCount:       b.QueryCount.Load(),
		QueryResults:     b.QueryResults.Load(),
		QueryErrors:      b.QueryErrors.Load(),
		QueryAvgNanos:    avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		MergeCount:       b.MergeCount.Load(),
		MergeErrors:      b.MergeErrors.Load(),
		MergePoints:      b.MergePoints.Load(),
		PendingBuffers:   b.PendingBuffers.Load(),
		BytesWritten:     b.BytesWritten.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount      int64
	InsertDuplicates int64
	InsertErrors     int64
	InsertAvgNanos   int64
	DeleteCount      int64
	DeleteMisses     int64
	DeleteErrors     int64
	QueryCount       int64
	QueryResults     int64
	QueryErrors      int64
	QueryAvgNanos    int64
	MergeCount       int64
	MergeErrors      int64
	MergePoints      int64
	PendingBuffers   int64
	BytesWritten     int64
}

// observer forwards engine events to a MetricsCollector.
type observer struct {
	mc MetricsCollector
}

var _ engine.MetricsObserver = observer{}

func (o observer) OnMerge(d time.Duration, targetLevel, inputs, points int, err error) {
	o.mc.RecordMerge(targetLevel, inputs, points, d, err)
}

func (o observer) OnQuery(d time.Duration, results int, err error) {
	o.mc.RecordQuery(results, d, err)
}

func (o observer) OnQueueDepth(_ string, depth int) {
	o.mc.RecordPendingBuffers(depth)
}

func (o observer) OnThroughput(_ string, bytes int64) {
	o.mc.RecordBytesWritten(bytes)
}

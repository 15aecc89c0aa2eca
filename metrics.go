package chunkcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordPrepare is called after each PrepareIDs call. ids is the batch
	// size, hits/misses count working-set chunks, duration is the total
	// time taken, err is nil if successful.
	RecordPrepare(ids, hits, misses int, duration time.Duration, err error)

	// RecordAdmit is called after each chunk admission into the fast tier.
	RecordAdmit(bytes int64, duration time.Duration)

	// RecordWriteBack is called after each whole-chunk write-back to the
	// host tier (eviction or flush).
	RecordWriteBack(bytes int64, duration time.Duration)

	// RecordFlush is called after each Flush with the number of chunks
	// written back.
	RecordFlush(chunks int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPrepare(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordAdmit(int64, time.Duration)                  {}
func (NoopMetricsCollector) RecordWriteBack(int64, time.Duration)              {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PrepareCount      atomic.Int64
	PrepareErrors     atomic.Int64
	PrepareTotalNanos atomic.Int64
	PreparedIDs       atomic.Int64
	AdmitCount        atomic.Int64
	AdmitBytes        atomic.Int64
	WriteBackCount    atomic.Int64
	WriteBackBytes    atomic.Int64
	FlushCount        atomic.Int64
	FlushErrors       atomic.Int64
}

// RecordPrepare implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrepare(ids, hits, misses int, duration time.Duration, err error) {
	b.PrepareCount.Add(1)
	b.PreparedIDs.Add(int64(ids))
	b.PrepareTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PrepareErrors.Add(1)
	}
}

// RecordAdmit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdmit(bytes int64, duration time.Duration) {
	b.AdmitCount.Add(1)
	b.AdmitBytes.Add(bytes)
}

// RecordWriteBack implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWriteBack(bytes int64, duration time.Duration) {
	b.WriteBackCount.Add(1)
	b.WriteBackBytes.Add(bytes)
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(chunks int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

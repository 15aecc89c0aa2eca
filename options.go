package chunkcache

import "github.com/hupe1980/chunkcache/resource"

const (
	// DefaultChunkSize is the default number of rows per chunk.
	DefaultChunkSize = 1024

	// DefaultCapacity is the default fast-tier capacity in chunks.
	DefaultCapacity = 64
)

type options struct {
	chunkSize int
	capacity  int
	freqs     []int64
	policy    EvictionPolicy
	logger    *Logger
	metrics   MetricsCollector
	rc        *resource.Controller
}

// Option configures Manager construction.
type Option func(*options)

// WithChunkSize sets the number of rows per chunk. The row count is padded
// up to a whole number of chunks.
func WithChunkSize(rows int) Option {
	return func(o *options) {
		o.chunkSize = rows
	}
}

// WithCapacity sets the fast-tier capacity in chunks.
func WithCapacity(chunks int) Option {
	return func(o *options) {
		o.capacity = chunks
	}
}

// WithFrequencies supplies per-row access frequencies gathered from the
// dataset. Rows are ranked by descending frequency before chunk placement,
// so the hottest rows share the lowest-numbered chunks. The slice must have
// one entry per row.
func WithFrequencies(freqs []int64) Option {
	return func(o *options) {
		o.freqs = freqs
	}
}

// WithEvictionPolicy sets the eviction scoring policy.
// Defaults to NewAscendingIDPolicy.
func WithEvictionPolicy(p EvictionPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithLogger sets the logger. Defaults to NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics collector.
// Defaults to NoopMetricsCollector.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithResourceController attaches a resource controller. Its memory budget
// covers the host and fast tiers; its IO limit throttles tier transfers.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

package chunkcache

import "time"

// Stats is a snapshot of the cache activity counters. Counters are
// monotonic and only reset by an explicit ResetStats call.
type Stats struct {
	// Hits counts working-set chunks that were already resident.
	Hits int64
	// Misses counts working-set chunks that had to be admitted.
	Misses int64
	// WriteBacks counts whole-chunk copies back to the host tier, from
	// evictions and flushes alike.
	WriteBacks int64

	// BytesHostToFast is the payload volume admitted into the fast tier.
	BytesHostToFast int64
	// BytesFastToHost is the payload volume written back to the host tier.
	BytesFastToHost int64

	// HostToFastTime is the accumulated transfer time into the fast tier.
	HostToFastTime time.Duration
	// FastToHostTime is the accumulated transfer time back to the host tier.
	FastToHostTime time.Duration
}

// HitRate returns hits / (hits + misses), or 0 before any batch.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// HostToFastBandwidth returns the observed admission bandwidth in bytes per
// second, or 0 if nothing has been transferred.
func (s Stats) HostToFastBandwidth() float64 {
	return bandwidth(s.BytesHostToFast, s.HostToFastTime)
}

// FastToHostBandwidth returns the observed write-back bandwidth in bytes per
// second, or 0 if nothing has been transferred.
func (s Stats) FastToHostBandwidth() float64 {
	return bandwidth(s.BytesFastToHost, s.FastToHostTime)
}

func bandwidth(bytes int64, d time.Duration) float64 {
	if bytes == 0 || d <= 0 {
		return 0
	}
	return float64(bytes) / d.Seconds()
}

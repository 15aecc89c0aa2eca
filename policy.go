package chunkcache

// EvictionPolicy scores resident chunks for eviction. The manager picks the
// non-pinned resident chunk with the lowest score (ties broken by lower
// chunk id) and never consults the policy for chunks pinned by the current
// batch, so the batch-protection contract holds for any policy.
//
// Policies are driven by the manager under its lock; implementations need no
// synchronization of their own.
type EvictionPolicy interface {
	// Touched is called for every chunk a batch references, hits and
	// admissions alike.
	Touched(chunk uint32)

	// Evicted is called when a chunk leaves the fast tier.
	Evicted(chunk uint32)

	// Score ranks a resident chunk; lower scores are evicted first.
	Score(chunk uint32) int64
}

// AscendingIDPolicy evicts the resident chunk with the lowest id.
//
// This is the reference behavior of the original cache. After a frequency
// reorder low chunk ids hold the hottest rows, so it preferentially evicts
// the most frequently accessed resident chunk. Kept as the default for
// compatibility; use LRUPolicy or LFUPolicy for conventional semantics.
type AscendingIDPolicy struct{}

// NewAscendingIDPolicy creates the default policy.
func NewAscendingIDPolicy() *AscendingIDPolicy { return &AscendingIDPolicy{} }

func (*AscendingIDPolicy) Touched(uint32) {}

func (*AscendingIDPolicy) Evicted(uint32) {}

func (*AscendingIDPolicy) Score(chunk uint32) int64 { return int64(chunk) }

// LRUPolicy evicts the resident chunk that has gone longest without being
// referenced by a batch.
type LRUPolicy struct {
	tick int64
	last map[uint32]int64
}

// NewLRUPolicy creates a least-recently-used policy.
func NewLRUPolicy() *LRUPolicy {
	return &LRUPolicy{last: make(map[uint32]int64)}
}

func (p *LRUPolicy) Touched(chunk uint32) {
	p.tick++
	p.last[chunk] = p.tick
}

func (p *LRUPolicy) Evicted(chunk uint32) {
	delete(p.last, chunk)
}

func (p *LRUPolicy) Score(chunk uint32) int64 {
	return p.last[chunk]
}

// LFUPolicy evicts the resident chunk with the fewest observed references.
// Counts survive eviction so a chunk's frequency reflects its whole history,
// bounded by the total number of chunks.
type LFUPolicy struct {
	counts map[uint32]int64
}

// NewLFUPolicy creates a least-frequently-used policy.
func NewLFUPolicy() *LFUPolicy {
	return &LFUPolicy{counts: make(map[uint32]int64)}
}

func (p *LFUPolicy) Touched(chunk uint32) {
	p.counts[chunk]++
}

func (*LFUPolicy) Evicted(uint32) {}

func (p *LFUPolicy) Score(chunk uint32) int64 {
	return p.counts[chunk]
}

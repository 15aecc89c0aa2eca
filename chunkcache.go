package chunkcache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/chunkcache/internal/hoststore"
	"github.com/hupe1980/chunkcache/internal/mapping"
	"github.com/hupe1980/chunkcache/internal/slots"
	"github.com/hupe1980/chunkcache/internal/transfer"
)

const elemSize = 4 // float32

// Manager is the chunk cache manager. It owns the host weight store, the
// fast-tier buffer and the slot table; no external component may mutate
// them except through its operations.
//
// All operations are serialized by an internal lock. The intended usage is
// still one PrepareIDs call per training step from one control goroutine;
// the lock turns accidental concurrency into blocking instead of data
// races, it does not make interleaved batches meaningful.
type Manager struct {
	mu sync.Mutex

	table *mapping.Table
	host  *hoststore.Store
	slots *slots.Table
	fast  []float32

	copier *transfer.Copier

	// pinned is the current batch's working set; non-nil only during the
	// admission phase. Pinned chunks are never eviction candidates, which
	// prevents one admission of the batch from displacing another chunk
	// the same batch needs.
	pinned *roaring.Bitmap

	stats Stats

	numRows    int
	dim        int
	chunkSize  int
	capacity   int
	chunkElems int

	trackedBytes int64
	closed       bool

	opts options
}

// New builds a Manager for a row-major weight matrix of numRows x dim.
// The full matrix is copied into the host tier, partitioned into chunks of
// WithChunkSize rows (the tail chunk zero-padded), and a fast-tier buffer
// of WithCapacity chunks is allocated. If frequencies are supplied, rows
// are reordered by descending frequency before placement.
func New(weights []float32, numRows, dim int, optFns ...Option) (*Manager, error) {
	o := options{
		chunkSize: DefaultChunkSize,
		capacity:  DefaultCapacity,
		policy:    NewAscendingIDPolicy(),
		logger:    NoopLogger(),
		metrics:   NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}

	if numRows <= 0 {
		return nil, fmt.Errorf("num rows must be positive, got %d", numRows)
	}
	if int64(numRows) > math.MaxUint32 {
		return nil, fmt.Errorf("num rows %d exceeds the uint32 id space", numRows)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dim must be positive, got %d", dim)
	}
	if o.chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", o.chunkSize)
	}
	if o.capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", o.capacity)
	}
	if len(weights) != numRows*dim {
		return nil, fmt.Errorf("weights length %d does not match %d rows x %d dim", len(weights), numRows, dim)
	}
	if o.freqs != nil && len(o.freqs) != numRows {
		return nil, fmt.Errorf("frequencies length %d does not match %d rows", len(o.freqs), numRows)
	}

	table := mapping.Build(numRows, o.chunkSize, o.freqs)
	chunkElems := o.chunkSize * dim

	hostBytes := int64(table.NumChunks()) * int64(chunkElems) * elemSize
	fastBytes := int64(o.capacity) * int64(chunkElems) * elemSize
	if !o.rc.TryAcquireMemory(hostBytes + fastBytes) {
		return nil, fmt.Errorf("%w: host %d bytes + fast %d bytes", ErrMemoryBudget, hostBytes, fastBytes)
	}

	m := &Manager{
		table:        table,
		host:         hoststore.New(weights, numRows, dim, table),
		slots:        slots.New(o.capacity),
		fast:         make([]float32, o.capacity*chunkElems),
		copier:       transfer.New(o.rc),
		numRows:      numRows,
		dim:          dim,
		chunkSize:    o.chunkSize,
		capacity:     o.capacity,
		chunkElems:   chunkElems,
		trackedBytes: hostBytes + fastBytes,
		opts:         o,
	}

	o.logger.Info("chunk cache initialized",
		"num_rows", numRows,
		"dim", dim,
		"chunk_size", o.chunkSize,
		"num_chunks", table.NumChunks(),
		"capacity", o.capacity,
		"reordered", o.freqs != nil,
	)

	return m, nil
}

// PrepareIDs makes every chunk referenced by ids resident in the fast tier
// and returns one fast-tier address per input id, in input order. An
// address is a row index into FastTier; the row's payload starts at
// addr*Dim().
//
// The batch's whole working set is pinned before any admission, so
// admitting one referenced chunk can never evict another referenced chunk.
// Misses are admitted in ascending chunk order. The call is synchronous: it
// returns only when every referenced chunk is guaranteed resident.
func (m *Manager) PrepareIDs(ctx context.Context, ids []uint32) (addrs []uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var hits, misses int
	defer func() {
		m.opts.metrics.RecordPrepare(len(ids), hits, misses, time.Since(start), err)
	}()

	// Resolve the working set.
	working := roaring.New()
	for _, id := range ids {
		if int(id) >= m.numRows {
			return nil, &ErrInvalidID{ID: id, NumRows: m.numRows}
		}
		working.Add(m.table.ChunkOf(id))
	}

	if int(working.GetCardinality()) > m.capacity {
		return nil, &ErrCapacityExceeded{
			WorkingSet: int(working.GetCardinality()),
			Capacity:   m.capacity,
		}
	}

	// Pin the working set for the admission phase.
	m.pinned = working
	defer func() { m.pinned = nil }()

	// Partition into hits and misses. ToArray yields ascending chunk ids,
	// so admission order is deterministic.
	var missing []uint32
	for _, chunk := range working.ToArray() {
		if m.slots.Resident(chunk) {
			hits++
		} else {
			missing = append(missing, chunk)
		}
		m.opts.policy.Touched(chunk)
	}
	misses = len(missing)

	m.stats.Hits += int64(hits)
	m.stats.Misses += int64(misses)

	for _, chunk := range missing {
		if err := m.admitLocked(ctx, chunk); err != nil {
			return nil, err
		}
	}

	// Translate every id now that its chunk is resident.
	addrs = make([]uint64, len(ids))
	for i, id := range ids {
		chunk, offset := m.table.Lookup(id)
		slot, _ := m.slots.SlotOf(chunk)
		addrs[i] = uint64(slot)*uint64(m.chunkSize) + uint64(offset)
	}

	return addrs, nil
}

// admitLocked copies one non-resident chunk into a fast-tier slot, evicting
// a non-pinned resident chunk first if no slot is free.
func (m *Manager) admitLocked(ctx context.Context, chunk uint32) error {
	slot, ok := m.slots.Assign()
	if !ok {
		if err := m.evictLocked(ctx); err != nil {
			return err
		}
		slot, ok = m.slots.Assign()
		if !ok {
			return ErrEvictionImpossible
		}
	}

	bytes, elapsed, err := m.copier.Copy(ctx, m.fastSlot(slot), m.host.Chunk(chunk))
	if err != nil {
		m.slots.Recycle(slot)
		return err
	}

	m.slots.Occupy(slot, chunk)
	m.stats.BytesHostToFast += bytes
	m.stats.HostToFastTime += elapsed
	m.opts.metrics.RecordAdmit(bytes, elapsed)
	m.opts.logger.Debug("admitted chunk", "chunk", chunk, "slot", slot)

	return nil
}

// evictLocked writes back and releases the resident chunk ranked first by
// the eviction policy, skipping chunks pinned by the current batch.
func (m *Manager) evictLocked(ctx context.Context) error {
	victimSlot := -1
	var victimChunk uint32
	var victimScore int64

	m.slots.Range(func(slot int, chunk uint32) bool {
		if m.pinned != nil && m.pinned.Contains(chunk) {
			return true
		}
		score := m.opts.policy.Score(chunk)
		if victimSlot == -1 || score < victimScore || (score == victimScore && chunk < victimChunk) {
			victimSlot, victimChunk, victimScore = slot, chunk, score
		}
		return true
	})

	if victimSlot == -1 {
		return ErrEvictionImpossible
	}

	return m.writeBackLocked(ctx, victimSlot, victimChunk)
}

// writeBackLocked copies a resident chunk back to the host store and frees
// its slot.
func (m *Manager) writeBackLocked(ctx context.Context, slot int, chunk uint32) error {
	bytes, elapsed, err := m.copier.Copy(ctx, m.host.Chunk(chunk), m.fastSlot(slot))
	if err != nil {
		return err
	}

	m.slots.Release(slot)
	m.opts.policy.Evicted(chunk)
	m.stats.WriteBacks++
	m.stats.BytesFastToHost += bytes
	m.stats.FastToHostTime += elapsed
	m.opts.metrics.RecordWriteBack(bytes, elapsed)
	m.opts.logger.Debug("evicted chunk", "chunk", chunk, "slot", slot)

	return nil
}

// Flush writes back every resident chunk to the host store and empties the
// slot table. Call it before checkpointing or shutdown.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	_, err := m.flushLocked(ctx)
	return err
}

func (m *Manager) flushLocked(ctx context.Context) (chunks int, err error) {
	start := time.Now()
	defer func() {
		m.opts.metrics.RecordFlush(chunks, time.Since(start), err)
	}()

	for _, chunk := range m.slots.ResidentSet().ToArray() {
		slot, _ := m.slots.SlotOf(chunk)
		if err = m.writeBackLocked(ctx, slot, chunk); err != nil {
			return chunks, err
		}
		chunks++
	}

	m.opts.logger.Debug("flushed fast tier", "chunks", chunks)
	return chunks, nil
}

// Warmup pre-admits the lowest-numbered chunks into the free slots of the
// fast tier. After a frequency reorder those chunks hold the hottest rows,
// so the first training batches start with hits instead of cold misses.
// Warmup never evicts; it stops when the fast tier is full.
func (m *Manager) Warmup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for chunk := 0; chunk < m.table.NumChunks(); chunk++ {
		if m.slots.Resident(uint32(chunk)) {
			continue
		}
		slot, ok := m.slots.Assign()
		if !ok {
			break
		}

		bytes, elapsed, err := m.copier.Copy(ctx, m.fastSlot(slot), m.host.Chunk(uint32(chunk)))
		if err != nil {
			m.slots.Recycle(slot)
			return err
		}

		m.slots.Occupy(slot, uint32(chunk))
		m.stats.BytesHostToFast += bytes
		m.stats.HostToFastTime += elapsed
		m.opts.metrics.RecordAdmit(bytes, elapsed)
	}

	m.opts.logger.Debug("warmup complete", "resident", m.slots.Len())
	return nil
}

// Stats returns a snapshot of the activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ResetStats zeroes all counters. Counters are never reset implicitly.
func (m *Manager) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}

// FastTier returns the fast-tier buffer. Together with the addresses from
// PrepareIDs it is the input to the pooling operator: the row for address a
// occupies FastTier()[a*Dim() : (a+1)*Dim()].
//
// The buffer contents for resident chunks may be mutated in place (e.g. by
// gradient updates); mutations are carried back to the host store on
// write-back.
func (m *Manager) FastTier() []float32 { return m.fast }

// Row returns the fast-tier row for an address returned by PrepareIDs.
// The view is valid until the row's chunk is evicted.
func (m *Manager) Row(addr uint64) []float32 {
	start := int(addr) * m.dim
	return m.fast[start : start+m.dim]
}

// Dim returns the row width.
func (m *Manager) Dim() int { return m.dim }

// ChunkSize returns the number of rows per chunk.
func (m *Manager) ChunkSize() int { return m.chunkSize }

// Capacity returns the fast-tier capacity in chunks.
func (m *Manager) Capacity() int { return m.capacity }

// NumChunks returns the total number of chunks, including the padded tail.
func (m *Manager) NumChunks() int { return m.table.NumChunks() }

// Close flushes the fast tier and releases tracked resources. The manager
// must not be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	_, err := m.flushLocked(context.Background())

	m.opts.rc.ReleaseMemory(m.trackedBytes)
	m.closed = true

	return err
}

func (m *Manager) fastSlot(slot int) []float32 {
	start := slot * m.chunkElems
	return m.fast[start : start+m.chunkElems]
}

package chunkcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache/resource"
)

// newTestManager builds a manager over an 8x2 matrix where row i holds
// [i*10, i*10+1], partitioned into chunks of 2 rows (chunk ids 0..3).
func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()

	weights := make([]float32, 8*2)
	for i := 0; i < 8; i++ {
		weights[i*2] = float32(i * 10)
		weights[i*2+1] = float32(i*10 + 1)
	}

	m, err := New(weights, 8, 2, append([]Option{
		WithChunkSize(2),
		WithCapacity(2),
	}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Manager, error)
	}{
		{
			name: "zero rows",
			fn: func() (*Manager, error) {
				return New(nil, 0, 2)
			},
		},
		{
			name: "zero dim",
			fn: func() (*Manager, error) {
				return New(make([]float32, 8), 8, 0)
			},
		},
		{
			name: "weights length mismatch",
			fn: func() (*Manager, error) {
				return New(make([]float32, 7), 4, 2)
			},
		},
		{
			name: "bad chunk size",
			fn: func() (*Manager, error) {
				return New(make([]float32, 8), 4, 2, WithChunkSize(0))
			},
		},
		{
			name: "bad capacity",
			fn: func() (*Manager, error) {
				return New(make([]float32, 8), 4, 2, WithCapacity(-1))
			},
		},
		{
			name: "frequencies length mismatch",
			fn: func() (*Manager, error) {
				return New(make([]float32, 8), 4, 2, WithFrequencies([]int64{1, 2}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.fn()
			assert.Error(t, err)
			assert.Nil(t, m)
		})
	}
}

func TestPrepareIDs_AddressTranslation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	addrs, err := m.PrepareIDs(ctx, []uint32{0, 1, 2, 3})
	require.NoError(t, err)
	require.Len(t, addrs, 4)

	// Address must equal slot offset plus offset-in-chunk, and the row
	// behind it must hold the id's own weights.
	for i, id := range []uint32{0, 1, 2, 3} {
		row := m.Row(addrs[i])
		assert.Equal(t, []float32{float32(id * 10), float32(id*10 + 1)}, row, "id %d", id)
	}

	// Ids of the same chunk land in adjacent rows.
	assert.Equal(t, addrs[0]+1, addrs[1])
	assert.Equal(t, addrs[2]+1, addrs[3])
}

func TestPrepareIDs_ScenarioHitsMissesWriteBacks(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Batch 1: chunk 0, one miss.
	_, err := m.PrepareIDs(ctx, []uint32{0, 1})
	require.NoError(t, err)
	s := m.Stats()
	assert.Equal(t, int64(0), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(0), s.WriteBacks)

	// Batch 2: chunk 1, one miss; resident = {0, 1}.
	_, err = m.PrepareIDs(ctx, []uint32{2, 3})
	require.NoError(t, err)
	s = m.Stats()
	assert.Equal(t, int64(2), s.Misses)

	// Batch 3: chunk 2 forces one eviction and write-back.
	_, err = m.PrepareIDs(ctx, []uint32{4, 5})
	require.NoError(t, err)
	s = m.Stats()
	assert.Equal(t, int64(3), s.Misses)
	assert.Equal(t, int64(1), s.WriteBacks)
}

func TestPrepareIDs_IdempotentRepeat(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	batch := []uint32{0, 1, 2, 3}

	first, err := m.PrepareIDs(ctx, batch)
	require.NoError(t, err)
	after := m.Stats()

	second, err := m.PrepareIDs(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	s := m.Stats()
	assert.Equal(t, after.Misses, s.Misses, "repeat batch must not miss")
	assert.Equal(t, after.Hits+2, s.Hits, "repeat batch records only hits")
	assert.Equal(t, after.WriteBacks, s.WriteBacks)
}

func TestPrepareIDs_CapacityBoundary(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Working set == capacity succeeds.
	_, err := m.PrepareIDs(ctx, []uint32{0, 2})
	require.NoError(t, err)

	// And succeeds again while fully resident.
	_, err = m.PrepareIDs(ctx, []uint32{0, 2})
	require.NoError(t, err)

	// Working set == capacity+1 fails.
	_, err = m.PrepareIDs(ctx, []uint32{0, 2, 4})
	require.Error(t, err)

	var ce *ErrCapacityExceeded
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.WorkingSet)
	assert.Equal(t, 2, ce.Capacity)
}

func TestPrepareIDs_PinnedSetProtection(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Make chunks 0 and 1 resident.
	_, err := m.PrepareIDs(ctx, []uint32{0, 2})
	require.NoError(t, err)

	// A batch needing chunks 2 and 3 must evict both resident chunks, but
	// never a chunk of its own working set: after the call both requested
	// chunks are resident and addressable.
	addrs, err := m.PrepareIDs(ctx, []uint32{4, 6})
	require.NoError(t, err)

	assert.Equal(t, []float32{40, 41}, m.Row(addrs[0]))
	assert.Equal(t, []float32{60, 61}, m.Row(addrs[1]))

	s := m.Stats()
	assert.Equal(t, int64(2), s.WriteBacks)
}

func TestPrepareIDs_ResidencyInvariant(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	batches := [][]uint32{
		{0, 1}, {2, 3}, {4, 5}, {6, 7}, {0, 7}, {3, 4}, {1, 6},
	}

	for _, batch := range batches {
		addrs, err := m.PrepareIDs(ctx, batch)
		require.NoError(t, err)

		// Every id must resolve to its own weights right after the call.
		for i, id := range batch {
			assert.Equal(t, []float32{float32(id * 10), float32(id*10 + 1)}, m.Row(addrs[i]))
		}
	}
}

func TestPrepareIDs_InvalidID(t *testing.T) {
	m := newTestManager(t)

	_, err := m.PrepareIDs(context.Background(), []uint32{0, 8})
	require.Error(t, err)

	var ie *ErrInvalidID
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, uint32(8), ie.ID)
	assert.Equal(t, 8, ie.NumRows)

	// The failed batch mutated nothing.
	s := m.Stats()
	assert.Equal(t, int64(0), s.Hits+s.Misses)
}

func TestPrepareIDs_WriteBackRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Admit chunk 0 and mutate row 1 in place, as a gradient update would.
	addrs, err := m.PrepareIDs(ctx, []uint32{1})
	require.NoError(t, err)
	copy(m.Row(addrs[0]), []float32{-1, -2})

	// Push chunk 0 out by cycling other chunks through the cache.
	_, err = m.PrepareIDs(ctx, []uint32{4, 6})
	require.NoError(t, err)

	// Readmitting chunk 0 must bring the mutated payload back.
	addrs, err = m.PrepareIDs(ctx, []uint32{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -2}, m.Row(addrs[0]))
}

func TestPrepareIDs_FrequencyReorderedWeights(t *testing.T) {
	weights := make([]float32, 8*2)
	for i := 0; i < 8; i++ {
		weights[i*2] = float32(i * 10)
		weights[i*2+1] = float32(i*10 + 1)
	}
	// Reverse-frequency: id 7 is hottest.
	freqs := []int64{1, 2, 3, 4, 5, 6, 7, 8}

	m, err := New(weights, 8, 2,
		WithChunkSize(2),
		WithCapacity(2),
		WithFrequencies(freqs),
	)
	require.NoError(t, err)
	defer m.Close()

	// Ranks by descending frequency: id 7 -> 0, id 6 -> 1, ..., id 0 -> 7,
	// so ids 7 and 0 live in chunks 0 and 3.
	addrs, err := m.PrepareIDs(context.Background(), []uint32{7, 0})
	require.NoError(t, err)

	assert.Equal(t, []float32{70, 71}, m.Row(addrs[0]))
	assert.Equal(t, []float32{0, 1}, m.Row(addrs[1]))
}

func TestFlush(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.PrepareIDs(ctx, []uint32{0, 2})
	require.NoError(t, err)

	before := m.Stats()
	require.NoError(t, m.Flush(ctx))

	s := m.Stats()
	assert.Equal(t, before.WriteBacks+2, s.WriteBacks, "flush writes back exactly the resident chunks")

	// Flushing an empty cache is a no-op.
	require.NoError(t, m.Flush(ctx))
	assert.Equal(t, s.WriteBacks, m.Stats().WriteBacks)

	// Slot table is empty: the same batch misses again.
	_, err = m.PrepareIDs(ctx, []uint32{0, 2})
	require.NoError(t, err)
	assert.Equal(t, s.Misses+2, m.Stats().Misses)

	// A flush over the re-admitted chunks writes them back again.
	require.NoError(t, m.Flush(ctx))
	assert.Equal(t, s.WriteBacks+2, m.Stats().WriteBacks)
}

func TestWarmup(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Warmup(ctx))

	// Chunks 0 and 1 are now resident; the first batch over them only hits.
	_, err := m.PrepareIDs(ctx, []uint32{0, 1, 2, 3})
	require.NoError(t, err)

	s := m.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(0), s.Misses)
	assert.Equal(t, int64(0), s.WriteBacks, "warmup never evicts")

	// Warmup on a full cache is a no-op.
	require.NoError(t, m.Warmup(ctx))
	assert.Equal(t, s.Hits, m.Stats().Hits)
}

func TestStatsAccumulateAndReset(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.PrepareIDs(ctx, []uint32{0, 2})
	require.NoError(t, err)

	s := m.Stats()
	// Two chunks of 2 rows x 2 floats admitted.
	assert.Equal(t, int64(2*2*2*4), s.BytesHostToFast)
	assert.Equal(t, int64(0), s.BytesFastToHost)

	m.ResetStats()
	assert.Equal(t, Stats{}, m.Stats())

	// Counters keep accumulating after a reset.
	_, err = m.PrepareIDs(ctx, []uint32{0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Stats().Hits)
}

func TestEvictionPolicies(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, policy EvictionPolicy, batches [][]uint32, wantResident []uint32) {
		t.Helper()
		m := newTestManager(t, WithEvictionPolicy(policy))

		for _, batch := range batches {
			_, err := m.PrepareIDs(ctx, batch)
			require.NoError(t, err)
		}
		assert.Equal(t, wantResident, m.slots.ResidentSet().ToArray())
	}

	t.Run("ascending id evicts lowest chunk", func(t *testing.T) {
		run(t, NewAscendingIDPolicy(),
			[][]uint32{{0, 2}, {4}}, // resident {0,1}, then chunk 2 evicts chunk 0
			[]uint32{1, 2},
		)
	})

	t.Run("lru evicts stalest chunk", func(t *testing.T) {
		run(t, NewLRUPolicy(),
			[][]uint32{{0}, {2}, {0}, {4}}, // chunk 1 is stalest when chunk 2 arrives
			[]uint32{0, 2},
		)
	})

	t.Run("lfu evicts coldest chunk", func(t *testing.T) {
		run(t, NewLFUPolicy(),
			[][]uint32{{0}, {0}, {2}, {4}}, // chunk 1 touched once, chunk 0 twice
			[]uint32{0, 2},
		)
	})
}

func TestClose(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Mutate a resident row, then close; the host copy must receive it.
	addrs, err := m.PrepareIDs(ctx, []uint32{0})
	require.NoError(t, err)
	copy(m.Row(addrs[0]), []float32{5, 6})

	require.NoError(t, m.Close())

	_, err = m.PrepareIDs(ctx, []uint32{0})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Flush(ctx), ErrClosed)
	assert.ErrorIs(t, m.Warmup(ctx), ErrClosed)
	assert.ErrorIs(t, m.Close(), ErrClosed)
}

func TestResourceControllerBudget(t *testing.T) {
	weights := make([]float32, 8*2)

	// 4 host chunks + 2 fast slots of 16 bytes each = 96 bytes.
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64})
	_, err := New(weights, 8, 2, WithChunkSize(2), WithCapacity(2), WithResourceController(rc))
	assert.ErrorIs(t, err, ErrMemoryBudget)
	assert.Equal(t, int64(0), rc.MemoryUsage())

	rc = resource.NewController(resource.Config{MemoryLimitBytes: 128})
	m, err := New(weights, 8, 2, WithChunkSize(2), WithCapacity(2), WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, int64(96), rc.MemoryUsage())

	require.NoError(t, m.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestMetricsCollectorHooks(t *testing.T) {
	var mc BasicMetricsCollector
	m := newTestManager(t, WithMetricsCollector(&mc))
	ctx := context.Background()

	_, err := m.PrepareIDs(ctx, []uint32{0, 1, 2})
	require.NoError(t, err)
	_, err = m.PrepareIDs(ctx, []uint32{4, 6})
	require.NoError(t, err)
	require.NoError(t, m.Flush(ctx))

	assert.Equal(t, int64(2), mc.PrepareCount.Load())
	assert.Equal(t, int64(5), mc.PreparedIDs.Load())
	assert.Equal(t, int64(4), mc.AdmitCount.Load())
	assert.Equal(t, int64(1), mc.FlushCount.Load())
	// Two evictions during batch 2 plus two flush write-backs.
	assert.Equal(t, int64(4), mc.WriteBackCount.Load())
}

package chunkcache

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func benchManager(b *testing.B, numRows, dim, chunkSize, capacity int) *Manager {
	b.Helper()

	m, err := New(make([]float32, numRows*dim), numRows, dim,
		WithChunkSize(chunkSize),
		WithCapacity(capacity),
	)
	require.NoError(b, err)
	b.Cleanup(func() { _ = m.Close() })
	return m
}

func BenchmarkPrepareIDs_AllHits(b *testing.B) {
	m := benchManager(b, 64*1024, 16, 1024, 16)
	ctx := context.Background()

	// A batch confined to the resident chunks.
	rng := rand.New(rand.NewSource(1))
	batch := make([]uint32, 4096)
	for i := range batch {
		batch[i] = uint32(rng.Intn(16 * 1024))
	}

	_, err := m.PrepareIDs(ctx, batch)
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.PrepareIDs(ctx, batch); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPrepareIDs_Churn(b *testing.B) {
	m := benchManager(b, 64*1024, 16, 1024, 8)
	ctx := context.Background()

	// Alternating batches from disjoint chunk ranges force evictions on
	// every step.
	batches := [][]uint32{make([]uint32, 2048), make([]uint32, 2048)}
	rng := rand.New(rand.NewSource(1))
	for i := range batches[0] {
		batches[0][i] = uint32(rng.Intn(8 * 1024))
		batches[1][i] = uint32(32*1024 + rng.Intn(8*1024))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.PrepareIDs(ctx, batches[i%2]); err != nil {
			b.Fatal(err)
		}
	}
}

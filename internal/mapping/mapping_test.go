package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_IdentityOrder(t *testing.T) {
	tbl := Build(8, 2, nil)

	require.Equal(t, 8, tbl.NumRows())
	require.Equal(t, 2, tbl.ChunkSize())
	require.Equal(t, 4, tbl.NumChunks())

	for id := uint32(0); id < 8; id++ {
		chunk, offset := tbl.Lookup(id)
		assert.Equal(t, id/2, chunk)
		assert.Equal(t, id%2, offset)
		assert.Equal(t, chunk, tbl.ChunkOf(id))
	}
}

func TestBuild_PaddedTailChunk(t *testing.T) {
	// 7 rows with chunk size 3 -> 3 chunks, last one padded.
	tbl := Build(7, 3, nil)
	require.Equal(t, 3, tbl.NumChunks())

	chunk, offset := tbl.Lookup(6)
	assert.Equal(t, uint32(2), chunk)
	assert.Equal(t, uint32(0), offset)
}

func TestBuild_FrequencyReorder(t *testing.T) {
	// id 3 is hottest, then 1, then 0, then 2.
	freqs := []int64{10, 50, 5, 100}
	tbl := Build(4, 2, freqs)

	// Ranks: 3 -> 0, 1 -> 1, 0 -> 2, 2 -> 3.
	chunk, offset := tbl.Lookup(3)
	assert.Equal(t, uint32(0), chunk)
	assert.Equal(t, uint32(0), offset)

	chunk, offset = tbl.Lookup(1)
	assert.Equal(t, uint32(0), chunk)
	assert.Equal(t, uint32(1), offset)

	chunk, offset = tbl.Lookup(0)
	assert.Equal(t, uint32(1), chunk)
	assert.Equal(t, uint32(0), offset)

	chunk, offset = tbl.Lookup(2)
	assert.Equal(t, uint32(1), chunk)
	assert.Equal(t, uint32(1), offset)
}

func TestBuild_FrequencyTiesAreStable(t *testing.T) {
	freqs := []int64{7, 7, 7, 7}
	tbl := Build(4, 2, freqs)

	// Equal frequencies keep ascending id order, so the mapping matches identity.
	for id := uint32(0); id < 4; id++ {
		chunk, offset := tbl.Lookup(id)
		assert.Equal(t, id/2, chunk)
		assert.Equal(t, id%2, offset)
	}
}

func TestBuild_EachSlotAssignedOnce(t *testing.T) {
	freqs := []int64{3, 1, 4, 1, 5, 9, 2, 6}
	tbl := Build(8, 4, freqs)

	seen := make(map[[2]uint32]uint32)
	for id := uint32(0); id < 8; id++ {
		chunk, offset := tbl.Lookup(id)
		pos := [2]uint32{chunk, offset}
		_, dup := seen[pos]
		require.False(t, dup, "placement %v assigned to both %d and %d", pos, seen[pos], id)
		seen[pos] = id
	}
	assert.Len(t, seen, 8)
}

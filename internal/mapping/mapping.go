// Package mapping provides the static index mapping table that translates
// row ids into chunk placements.
//
// The table is built once at initialization and never mutated afterwards.
// When frequency statistics are supplied, ids are ranked by descending
// frequency so the hottest rows land in the lowest-numbered chunks; without
// frequencies the natural id order is kept.
package mapping

import "sort"

// Table maps each row id to the chunk that holds it and the row's position
// inside that chunk. Lookup is O(1) via two flat arrays.
type Table struct {
	chunkIDs  []uint32
	offsets   []uint32
	numRows   int
	chunkSize int
	numChunks int
}

// Build constructs the mapping table for numRows rows partitioned into
// chunks of chunkSize rows each. The trailing chunk is implicitly padded.
//
// If freqs is non-nil it must have one entry per row; ids are then assigned
// consecutive ranks by descending frequency (ties keep ascending id order
// for determinism) and the rank determines the placement:
//
//	chunk  = rank / chunkSize
//	offset = rank % chunkSize
func Build(numRows, chunkSize int, freqs []int64) *Table {
	t := &Table{
		chunkIDs:  make([]uint32, numRows),
		offsets:   make([]uint32, numRows),
		numRows:   numRows,
		chunkSize: chunkSize,
		numChunks: (numRows + chunkSize - 1) / chunkSize,
	}

	ids := make([]uint32, numRows)
	for i := range ids {
		ids[i] = uint32(i)
	}

	if freqs != nil {
		sort.SliceStable(ids, func(a, b int) bool {
			return freqs[ids[a]] > freqs[ids[b]]
		})
	}

	for rank, id := range ids {
		t.chunkIDs[id] = uint32(rank / chunkSize)
		t.offsets[id] = uint32(rank % chunkSize)
	}

	return t
}

// Lookup returns the chunk id and offset-in-chunk for a row id.
// The id must be in [0, NumRows).
func (t *Table) Lookup(id uint32) (chunk, offset uint32) {
	return t.chunkIDs[id], t.offsets[id]
}

// ChunkOf returns only the chunk id for a row id.
func (t *Table) ChunkOf(id uint32) uint32 {
	return t.chunkIDs[id]
}

// NumRows returns the number of mapped rows.
func (t *Table) NumRows() int { return t.numRows }

// ChunkSize returns the number of rows per chunk.
func (t *Table) ChunkSize() int { return t.chunkSize }

// NumChunks returns the total number of chunks, including the padded tail.
func (t *Table) NumChunks() int { return t.numChunks }

// Package hoststore holds the full weight matrix in the slow, large memory
// tier, laid out chunk-major so a whole chunk can be moved with a single
// bulk copy.
package hoststore

import "github.com/hupe1980/chunkcache/internal/mapping"

// Store keeps numChunks chunks of chunkSize rows each in one flat slab.
// Rows that pad the trailing chunk stay zero. The slab layout is immutable;
// chunk contents may be overwritten in place by write-backs.
type Store struct {
	data       []float32
	dim        int
	chunkSize  int
	numChunks  int
	chunkElems int
}

// New builds the store from a row-major weight matrix of numRows x dim.
// Each row is placed at the physical position the mapping table assigned to
// its id, so translated addresses always resolve to the row's own weights
// after a frequency reorder.
func New(weights []float32, numRows, dim int, tbl *mapping.Table) *Store {
	s := &Store{
		dim:        dim,
		chunkSize:  tbl.ChunkSize(),
		numChunks:  tbl.NumChunks(),
		chunkElems: tbl.ChunkSize() * dim,
	}
	s.data = make([]float32, s.numChunks*s.chunkElems)

	for id := 0; id < numRows; id++ {
		chunk, offset := tbl.Lookup(uint32(id))
		dst := (int(chunk)*s.chunkSize + int(offset)) * dim
		copy(s.data[dst:dst+dim], weights[id*dim:(id+1)*dim])
	}

	return s
}

// Chunk returns a mutable view of one chunk's payload (chunkSize*dim floats).
func (s *Store) Chunk(id uint32) []float32 {
	start := int(id) * s.chunkElems
	return s.data[start : start+s.chunkElems]
}

// Write overwrites the full chunk payload. Write-back is always whole-chunk:
// the fast-tier copy may have been mutated in place during residency, so a
// partial update cannot be trusted.
func (s *Store) Write(id uint32, src []float32) {
	copy(s.Chunk(id), src)
}

// ReadInto copies the full chunk payload into dst.
func (s *Store) ReadInto(id uint32, dst []float32) {
	copy(dst, s.Chunk(id))
}

// Row returns a view of one row inside a chunk.
func (s *Store) Row(chunk, offset uint32) []float32 {
	start := (int(chunk)*s.chunkSize + int(offset)) * s.dim
	return s.data[start : start+s.dim]
}

// NumChunks returns the number of chunks, including the padded tail.
func (s *Store) NumChunks() int { return s.numChunks }

// ChunkElems returns the number of float32 elements per chunk.
func (s *Store) ChunkElems() int { return s.chunkElems }

// Dim returns the row width.
func (s *Store) Dim() int { return s.dim }

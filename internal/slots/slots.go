// Package slots tracks fast-tier slot occupancy: which chunk occupies which
// slot, and which slots are free. The mapping is bidirectional and kept
// consistent on every admit/evict.
package slots

import "github.com/RoaringBitmap/roaring/v2"

// Table is the slot table for a fast tier with a fixed number of slots.
// At most one slot per chunk id; |occupied| <= capacity.
//
// Not safe for concurrent use; the owning manager serializes access.
type Table struct {
	capacity    int
	slotToChunk map[int]uint32
	chunkToSlot map[uint32]int
	free        []int
	resident    *roaring.Bitmap
}

// New creates a table with the given slot capacity.
func New(capacity int) *Table {
	t := &Table{
		capacity:    capacity,
		slotToChunk: make(map[int]uint32, capacity),
		chunkToSlot: make(map[uint32]int, capacity),
		free:        make([]int, 0, capacity),
		resident:    roaring.New(),
	}
	// Stack of free slots, lowest slot id on top.
	for slot := capacity - 1; slot >= 0; slot-- {
		t.free = append(t.free, slot)
	}
	return t
}

// Assign pops a free slot. The caller must either Occupy it or hand it back
// with Recycle.
func (t *Table) Assign() (int, bool) {
	if len(t.free) == 0 {
		return 0, false
	}
	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	return slot, true
}

// Recycle returns an assigned-but-unoccupied slot to the free stack.
func (t *Table) Recycle(slot int) {
	t.free = append(t.free, slot)
}

// Occupy records that the chunk now resides in the slot.
func (t *Table) Occupy(slot int, chunk uint32) {
	t.slotToChunk[slot] = chunk
	t.chunkToSlot[chunk] = slot
	t.resident.Add(chunk)
}

// Release frees the slot and returns the chunk that occupied it.
func (t *Table) Release(slot int) uint32 {
	chunk := t.slotToChunk[slot]
	delete(t.slotToChunk, slot)
	delete(t.chunkToSlot, chunk)
	t.resident.Remove(chunk)
	t.free = append(t.free, slot)
	return chunk
}

// Resident reports whether the chunk currently occupies a slot.
func (t *Table) Resident(chunk uint32) bool {
	return t.resident.Contains(chunk)
}

// SlotOf returns the slot occupied by the chunk.
func (t *Table) SlotOf(chunk uint32) (int, bool) {
	slot, ok := t.chunkToSlot[chunk]
	return slot, ok
}

// Len returns the number of occupied slots.
func (t *Table) Len() int { return len(t.slotToChunk) }

// Capacity returns the total number of slots.
func (t *Table) Capacity() int { return t.capacity }

// ResidentSet returns the set of resident chunk ids.
// The bitmap is owned by the table and must not be mutated.
func (t *Table) ResidentSet() *roaring.Bitmap { return t.resident }

// Range calls fn for every occupied slot until fn returns false.
// Iteration order is unspecified.
func (t *Table) Range(fn func(slot int, chunk uint32) bool) {
	for slot, chunk := range t.slotToChunk {
		if !fn(slot, chunk) {
			return
		}
	}
}

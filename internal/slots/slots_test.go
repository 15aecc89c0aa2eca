package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignOccupyRelease(t *testing.T) {
	tbl := New(2)
	require.Equal(t, 2, tbl.Capacity())
	require.Equal(t, 0, tbl.Len())

	slot, ok := tbl.Assign()
	require.True(t, ok)
	tbl.Occupy(slot, 7)

	assert.True(t, tbl.Resident(7))
	got, ok := tbl.SlotOf(7)
	require.True(t, ok)
	assert.Equal(t, slot, got)
	assert.Equal(t, 1, tbl.Len())

	chunk := tbl.Release(slot)
	assert.Equal(t, uint32(7), chunk)
	assert.False(t, tbl.Resident(7))
	assert.Equal(t, 0, tbl.Len())

	_, ok = tbl.SlotOf(7)
	assert.False(t, ok)

	// Released slot is assignable again.
	again, ok := tbl.Assign()
	require.True(t, ok)
	assert.Equal(t, slot, again)
}

func TestAssignExhaustion(t *testing.T) {
	tbl := New(2)

	s0, ok := tbl.Assign()
	require.True(t, ok)
	tbl.Occupy(s0, 1)

	s1, ok := tbl.Assign()
	require.True(t, ok)
	tbl.Occupy(s1, 2)

	_, ok = tbl.Assign()
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Len())
}

func TestRecycle(t *testing.T) {
	tbl := New(1)

	slot, ok := tbl.Assign()
	require.True(t, ok)

	_, ok = tbl.Assign()
	require.False(t, ok)

	tbl.Recycle(slot)

	again, ok := tbl.Assign()
	require.True(t, ok)
	assert.Equal(t, slot, again)
}

func TestResidentSetAndRange(t *testing.T) {
	tbl := New(3)
	for _, chunk := range []uint32{5, 9, 2} {
		slot, ok := tbl.Assign()
		require.True(t, ok)
		tbl.Occupy(slot, chunk)
	}

	assert.Equal(t, []uint32{2, 5, 9}, tbl.ResidentSet().ToArray())

	seen := map[uint32]int{}
	tbl.Range(func(slot int, chunk uint32) bool {
		seen[chunk] = slot
		return true
	})
	require.Len(t, seen, 3)

	for chunk, slot := range seen {
		got, ok := tbl.SlotOf(chunk)
		require.True(t, ok)
		assert.Equal(t, slot, got)
	}
}

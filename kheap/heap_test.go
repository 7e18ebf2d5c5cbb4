package kheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	h := New(1024)
	before := h.RemainSize()

	p, err := h.Alloc(64)
	require.NoError(t, err)
	require.Len(t, p, 64)
	assert.Less(t, h.RemainSize(), before)

	h.Free(p)
	assert.Equal(t, before, h.RemainSize())
}

func TestAllocWritePersists(t *testing.T) {
	h := New(256)
	p, err := h.Alloc(16)
	require.NoError(t, err)
	for i := range p {
		p[i] = byte(i)
	}
	for i := range p {
		assert.Equal(t, byte(i), p[i])
	}
}

func TestAllocZeroSizeFails(t *testing.T) {
	h := New(256)
	_, err := h.Alloc(0)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestHeapExhaustionThenFreeReestablishesCursor(t *testing.T) {
	h := New(64)
	var allocs [][]byte
	for {
		p, err := h.Alloc(8)
		if err != nil {
			break
		}
		allocs = append(allocs, p)
	}
	require.NotEmpty(t, allocs)

	for _, p := range allocs {
		h.Free(p)
	}

	// heap should be usable again (iter/end re-established)
	p, err := h.Alloc(8)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestFreeBadMagicPanics(t *testing.T) {
	h := New(256)
	p, err := h.Alloc(16)
	require.NoError(t, err)
	// corrupt the header's magic bytes that precede the payload
	h.arena[h.offsetOf(p)-2] = 0xAA
	h.arena[h.offsetOf(p)-1] = 0xAA
	assert.Panics(t, func() { h.Free(p) })
}

func TestQueueFreeDrain(t *testing.T) {
	h := New(256)
	before := h.RemainSize()

	p, err := h.Alloc(32)
	require.NoError(t, err)
	h.QueueFree(p)

	assert.Less(t, h.RemainSize(), before)
	n := h.DrainDeferred()
	assert.Equal(t, 1, n)
	assert.Equal(t, before, h.RemainSize())
}

func TestHeapStatus(t *testing.T) {
	h := New(512)
	_, err := h.Alloc(64)
	require.NoError(t, err)
	st := h.HeapStatus()
	assert.Equal(t, 1, st.MallocCount)
	assert.Greater(t, st.PeakUsage, 0)
	assert.GreaterOrEqual(t, st.FreeBlockCount, 1)
}

type recordingHooks struct {
	allocFailed []int
	freeFailed  int
}

func (r *recordingHooks) AllocFailed(size int) { r.allocFailed = append(r.allocFailed, size) }
func (r *recordingHooks) FreeFailed()          { r.freeFailed++ }

func TestAllocFailedHookFiresOnOutOfMemory(t *testing.T) {
	hooks := &recordingHooks{}
	h := New(64, WithHooks(hooks))

	_, err := h.Alloc(1000)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	require.Len(t, hooks.allocFailed, 1)
	assert.Equal(t, 0, hooks.freeFailed)
}

func TestFreeFailedHookFiresOnCorruption(t *testing.T) {
	hooks := &recordingHooks{}
	h := New(256, WithHooks(hooks))

	p, err := h.Alloc(16)
	require.NoError(t, err)
	h.arena[h.offsetOf(p)-2] = 0xAA
	h.arena[h.offsetOf(p)-1] = 0xAA

	assert.Panics(t, func() { h.Free(p) })
	assert.Equal(t, 1, hooks.freeFailed)
	assert.Empty(t, hooks.allocFailed)
}

func TestCoalesceNoAdjacentFreeBlocks(t *testing.T) {
	h := New(128)
	a, err := h.Alloc(16)
	require.NoError(t, err)
	b, err := h.Alloc(16)
	require.NoError(t, err)
	c, err := h.Alloc(16)
	require.NoError(t, err)

	h.Free(a)
	h.Free(b)
	h.Free(c)

	st := h.HeapStatus()
	// everything should have coalesced back into a single free block.
	assert.Equal(t, 1, st.FreeBlockCount)
}

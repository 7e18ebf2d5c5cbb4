// Package kheap implements a single-region next-fit heap allocator
// with deferred free. Free-block bookkeeping is kept in-band (packed
// into the free bytes themselves) using byte offsets into a single
// arena rather than raw pointers, so no unsafe.Pointer arithmetic is
// needed for the free-list itself; Free's one unavoidable
// pointer-identity computation (mapping a returned payload slice back
// to its arena offset) is the sole confined use of unsafe in this
// package.
package kheap

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	headerSize  = 4 // u_short size + u_short magic, matches header_t
	magic       = 0x6D6D
	minBlockLen = 8 // u_int size + u_int next, matches block_t
)

// Status mirrors heap_status_t from alloc.c.
type Status struct {
	RemainSize       int
	MallocCount      int
	FreeCount        int
	PeakUsage        int
	MaxFreeBlockSize int
	FreeBlockCount   int
}

// FailureHooks is the narrow callback sink kheap.Heap notifies on
// allocation failure and free-time corruption. sched.Hooks satisfies
// it, mirroring the DeferredDrainer pattern used to pass a *kheap.Heap
// into sched without an import cycle between the two packages.
type FailureHooks interface {
	AllocFailed(size int)
	FreeFailed()
}

type noopFailureHooks struct{}

func (noopFailureHooks) AllocFailed(size int) {}
func (noopFailureHooks) FreeFailed()          {}

// Option configures a Heap at construction time, following the
// functional-options shape used throughout this module (sched.Option,
// ipc.Option).
type Option func(*Heap)

// WithHooks attaches a FailureHooks sink the heap notifies on
// allocation failure (Alloc/Calloc returning ErrOutOfMemory) and
// free-time header corruption (Free's CorruptionError panic),
// translating alloc.c's alloc_failed_hook/free_failed_hook.
func WithHooks(h FailureHooks) Option {
	return func(heap *Heap) { heap.hooks = h }
}

// Heap is a single fixed-size arena allocator.
type Heap struct {
	mu sync.Mutex

	arena []byte

	end  int // offset of the highest-address free block, -1 if none
	iter int // next-fit cursor, -1 if heap exhausted

	remainSize  int
	minLeft     int
	mallocCount int
	freeCount   int

	hooks FailureHooks

	deferred atomic.Pointer[deferredNode]
}

type deferredNode struct {
	payload []byte
	next    *deferredNode
}

// New creates a heap over a freshly allocated arena of the given size.
func New(size int, opts ...Option) *Heap {
	if size < minBlockLen+headerSize {
		panic("kheap: size too small")
	}
	h := &Heap{arena: make([]byte, size), hooks: noopFailureHooks{}}
	h.setSize(0, size)
	h.setNext(0, 0)
	h.end = 0
	h.iter = 0
	h.remainSize = size
	h.minLeft = size
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Heap) blockSize(off int) int { return int(binary.LittleEndian.Uint32(h.arena[off:])) }
func (h *Heap) setSize(off, v int)    { binary.LittleEndian.PutUint32(h.arena[off:], uint32(v)) }
func (h *Heap) blockNext(off int) int { return int(binary.LittleEndian.Uint32(h.arena[off+4:])) }
func (h *Heap) setNext(off, v int)    { binary.LittleEndian.PutUint32(h.arena[off+4:], uint32(v)) }

func round4(n int) int {
	if r := n % 4; r != 0 {
		n += 4 - r
	}
	return n
}

// Alloc allocates size bytes using next-fit search, returning a slice
// of the arena. The slice is only valid until the corresponding Free.
func (h *Heap) Alloc(size int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if size <= 0 {
		h.hooks.AllocFailed(size)
		return nil, ErrOutOfMemory
	}
	if size < minBlockLen {
		size = minBlockLen
	}
	size = round4(size)
	rqsz := size + headerSize

	if rqsz >= h.remainSize || h.end < 0 {
		h.hooks.AllocFailed(size)
		return nil, ErrOutOfMemory
	}

	onlyOne := h.blockNext(h.end) == h.end

	if !onlyOne {
		h.iter = h.blockNext(h.iter)
		origin := h.iter
		for h.blockSize(h.blockNext(h.iter)) < rqsz {
			h.iter = h.blockNext(h.iter)
			if h.iter == origin {
				h.hooks.AllocFailed(size)
				return nil, ErrOutOfMemory
			}
		}
	}
	newBlock := h.blockNext(h.iter)

	splitted := -1
	if h.blockSize(newBlock)-rqsz >= minBlockLen {
		splitted = newBlock + rqsz
		h.setSize(splitted, h.blockSize(newBlock)-rqsz)
		if onlyOne {
			h.setNext(splitted, splitted)
			h.iter = splitted
		} else {
			h.setNext(h.iter, splitted)
			h.setNext(splitted, h.blockNext(newBlock))
		}
	} else {
		if onlyOne {
			h.iter = -1
			h.end = -1
		} else {
			h.setNext(h.iter, h.blockNext(newBlock))
		}
	}

	if newBlock == h.end {
		if splitted >= 0 {
			h.end = splitted
		} else {
			h.end = h.iter
		}
	}

	binary.LittleEndian.PutUint16(h.arena[newBlock:], uint16(size))
	binary.LittleEndian.PutUint16(h.arena[newBlock+2:], magic)

	h.remainSize -= rqsz
	h.mallocCount++
	if h.remainSize < h.minLeft {
		h.minLeft = h.remainSize
	}

	return h.arena[newBlock+headerSize : newBlock+headerSize+size], nil
}

// Calloc allocates nitems*itemSize bytes, zeroed.
func (h *Heap) Calloc(nitems, itemSize int) ([]byte, error) {
	b, err := h.Alloc(nitems * itemSize)
	if err != nil {
		return nil, err
	}
	for i := range b {
		b[i] = 0
	}
	return b, nil
}

// offsetOf returns p's byte offset within the arena. p must be a slice
// previously returned by Alloc/Calloc.
func (h *Heap) offsetOf(p []byte) int {
	base := uintptr(unsafe.Pointer(&h.arena[0]))
	addr := uintptr(unsafe.Pointer(&p[0]))
	return int(addr - base)
}

// Free releases a block previously returned by Alloc/Calloc. A magic
// mismatch is treated as fatal corruption (panics with
// *CorruptionError).
func (h *Heap) Free(p []byte) {
	if len(p) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	off := h.offsetOf(p) - headerSize
	size := int(binary.LittleEndian.Uint16(h.arena[off:]))
	gotMagic := binary.LittleEndian.Uint16(h.arena[off+2:])
	if gotMagic != magic {
		h.hooks.FreeFailed()
		panic(&CorruptionError{Reason: "bad header magic on free"})
	}

	rls := off
	rlsSize := size + headerSize

	h.freeCount++
	h.remainSize += rlsSize

	if h.end < 0 {
		h.setSize(rls, rlsSize)
		h.setNext(rls, rls)
		h.iter = rls
		h.end = rls
		return
	}

	left := h.end
	if rls < left {
		for h.blockNext(left) < rls {
			left = h.blockNext(left)
		}
	}
	right := h.blockNext(left)

	h.setNext(left, rls)
	h.setNext(rls, right)
	h.setSize(rls, rlsSize)
	mergeBlock := rls

	if left+h.blockSize(left) == rls {
		mergeBlock = left
		h.setSize(mergeBlock, h.blockSize(mergeBlock)+rlsSize)
		h.setNext(mergeBlock, right)
	}

	if rls+rlsSize == right {
		h.setSize(mergeBlock, h.blockSize(mergeBlock)+h.blockSize(right))
		h.setNext(mergeBlock, h.blockNext(right))
		if h.iter == right {
			h.iter = mergeBlock
		}
		if h.end == right {
			h.end = mergeBlock
		}
	}
	if h.end < rls {
		h.end = mergeBlock
	}
}

// QueueFree defers release of p to a later DrainDeferred call. Safe to
// call concurrently from any goroutine, including one standing in for
// interrupt context, via a lock-free CAS push.
func (h *Heap) QueueFree(p []byte) {
	n := &deferredNode{payload: p}
	for {
		head := h.deferred.Load()
		n.next = head
		if h.deferred.CompareAndSwap(head, n) {
			return
		}
	}
}

// DrainDeferred frees every block queued via QueueFree since the last
// drain. Called by the idle task.
func (h *Heap) DrainDeferred() int {
	head := h.deferred.Swap(nil)
	n := 0
	for cur := head; cur != nil; cur = cur.next {
		h.Free(cur.payload)
		n++
	}
	return n
}

// RemainSize returns the currently free byte count.
func (h *Heap) RemainSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remainSize
}

// HeapStatus returns a snapshot of allocator diagnostics, mirroring
// alloc.c's heap_status.
func (h *Heap) HeapStatus() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Status{
		RemainSize:  h.remainSize,
		MallocCount: h.mallocCount,
		FreeCount:   h.freeCount,
		PeakUsage:   len(h.arena) - h.minLeft,
	}
	if h.end < 0 {
		return st
	}
	st.MaxFreeBlockSize = h.blockSize(h.end)
	st.FreeBlockCount = 1
	for cur := h.blockNext(h.end); cur != h.end; cur = h.blockNext(cur) {
		st.FreeBlockCount++
		if sz := h.blockSize(cur); sz > st.MaxFreeBlockSize {
			st.MaxFreeBlockSize = sz
		}
	}
	return st
}

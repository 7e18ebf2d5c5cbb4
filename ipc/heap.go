package ipc

import "github.com/biaboi/Kora/kheap"

// Token sizes reserved from the backing heap per object kind, standing
// in for the source's malloc(sizeof(cntsem))/malloc(sizeof(mutex))/...
// call at each *_create site. The exact size carries no behavioral
// meaning in this port (nothing is overlaid on the token the way kheap
// overlays block headers on its arena); it only needs to be large
// enough to satisfy kheap's minimum block size so HeapStatus() accounting
// reflects a plausible per-object footprint.
const (
	tokenSizeSemaphore  = 16
	tokenSizeMutex      = 16
	tokenSizeMsgQueue   = 16
	tokenSizeEventGroup = 16
	tokenSizeStreamQueue = 16
)

// heapBacking is the shared "this object was malloc'd, release it
// through queue_free on delete" bookkeeping every IPC object in this
// package needs (ipc.c: sem_create/sem_delete, mutex_create/
// mutex_delete, msgq_create/msgq_delete, evt_group_create/
// evt_group_delete, streamq_create/streamq_delete all follow the same
// shape: malloc a block, and release it via the deferred-free queue
// once no longer in use).
//
// A Go-allocated IPC struct always lives on the ordinary GC heap
// regardless of this field; heapBacking instead models whether the
// object additionally reserved a block in the simulated kheap.Heap
// arena, which is what source's is_heap_addr (and therefore Delete's
// NotOnHeap failure) actually distinguishes: an object built on the
// arena can be queue_free'd, one that was not (the Go equivalent of a
// statically allocated object) cannot.
type heapBacking struct {
	heap  *kheap.Heap
	token []byte
}

// newHeapBacking reserves size bytes from h to back a newly created
// IPC object, mirroring malloc(sizeof(...)) in the source. If h is
// nil, the object behaves as a statically allocated one: Delete will
// fail with ErrNotOnHeap.
func newHeapBacking(h *kheap.Heap, size int) heapBacking {
	if h == nil {
		return heapBacking{}
	}
	tok, err := h.Alloc(size)
	if err != nil {
		return heapBacking{}
	}
	return heapBacking{heap: h, token: tok}
}

// release queues the backing block for deferred free (drained by the
// idle task), matching queue_free(obj). It fails with ErrNotOnHeap
// when the object was never heap-backed.
func (b *heapBacking) release() error {
	if b.heap == nil {
		return ErrNotOnHeap
	}
	b.heap.QueueFree(b.token)
	return nil
}

package ipc

import (
	"github.com/biaboi/Kora/bytebuf"
	"github.com/biaboi/Kora/klist"
	"github.com/biaboi/Kora/sched"
)

// StreamQueue is a byte buffer of variable-length records with
// separate reader and writer block lists, for continuous non-fixed-
// length data (similar to FreeRTOS's stream buffer but supporting
// multiple concurrent writers and readers). Grounded on ipc.c:
// streamq_init/streamq_create/streamq_delete/streamq_push/
// streamq_front/streamq_front_pointer/streamq_pop, backed by
// bytebuf.Buffer.
type StreamQueue struct {
	k *sched.Kernel

	buf             *bytebuf.Buffer
	readers, writers *klist.List[*sched.Task]

	backing heapBacking
}

// NewStreamQueue creates a stream queue backed by a region of the
// given byte size.
func NewStreamQueue(k *sched.Kernel, size int, opts ...Option) *StreamQueue {
	cfg := resolveOptions(opts)
	return &StreamQueue{
		k:       k,
		buf:     bytebuf.New(size),
		readers: klist.New[*sched.Task](),
		writers: klist.New[*sched.Task](),
		backing: newHeapBacking(cfg.heap, tokenSizeStreamQueue),
	}
}

func (sq *StreamQueue) wakeLocked(self *sched.Task, blockList *klist.List[*sched.Task]) {
	changed := false
	if front := blockList.Front(); front != nil {
		changed = sq.k.ReadyLocked(front.Handle)
	}
	sq.k.Unlock()
	if changed {
		sq.k.Yield(self)
	}
}

// Push writes data as a single record, blocking as a writer until
// there is room or ticks elapse. Unlike the message queue, a push that
// cannot fit is never split across calls; the whole record waits for
// space as one unit.
func (sq *StreamQueue) Push(self *sched.Task, data []byte, ticks uint32) error {
	sq.k.Lock()
	for {
		if err := sq.buf.Push(data); err == nil {
			sq.wakeLocked(self, sq.readers)
			return nil
		}
		if ticks == 0 {
			sq.k.Unlock()
			return ErrFull
		}
		sq.k.BlockLocked(self, sq.writers, ticks)
		ticks = self.LeftSleepTicks()
		sq.k.Lock()
	}
}

// PushISR is Push's interrupt-context counterpart: it never blocks,
// failing with ErrFull if the record does not fit.
func (sq *StreamQueue) PushISR(data []byte) error {
	sq.k.Lock()
	if err := sq.buf.Push(data); err != nil {
		sq.k.Unlock()
		return ErrFull
	}
	if front := sq.readers.Front(); front != nil {
		sq.k.ReadyISR(front.Handle)
	}
	sq.k.Unlock()
	return nil
}

// Front copies the record at the front of the queue without removing
// it, blocking as a reader until one is available or ticks elapse.
func (sq *StreamQueue) Front(self *sched.Task, ticks uint32) ([]byte, error) {
	sq.k.Lock()
	for {
		data, err := sq.buf.Front()
		if err == nil {
			sq.wakeLocked(self, sq.writers)
			return data, nil
		}
		if ticks == 0 {
			sq.k.Unlock()
			return nil, ErrEmpty
		}
		sq.k.BlockLocked(self, sq.readers, ticks)
		ticks = self.LeftSleepTicks()
		sq.k.Lock()
	}
}

// FrontPointer is Front's zero-copy counterpart: the returned slice
// aliases the queue's internal storage and is invalidated by the next
// Pop.
func (sq *StreamQueue) FrontPointer(self *sched.Task, ticks uint32) ([]byte, error) {
	sq.k.Lock()
	for {
		data, err := sq.buf.FrontPointer()
		if err == nil {
			sq.wakeLocked(self, sq.writers)
			return data, nil
		}
		if ticks == 0 {
			sq.k.Unlock()
			return nil, ErrEmpty
		}
		sq.k.BlockLocked(self, sq.readers, ticks)
		ticks = self.LeftSleepTicks()
		sq.k.Lock()
	}
}

// Pop removes the record at the front of the queue, waking one blocked
// writer.
func (sq *StreamQueue) Pop(self *sched.Task) error {
	sq.k.Lock()
	if err := sq.buf.Pop(); err != nil {
		sq.k.Unlock()
		return ErrEmpty
	}
	sq.wakeLocked(self, sq.writers)
	return nil
}

// Len returns the number of records currently queued.
func (sq *StreamQueue) Len() int {
	sq.k.Lock()
	defer sq.k.Unlock()
	return sq.buf.Len()
}

// Delete releases the stream queue. It fails with ErrBusy unless the
// buffer and both block lists are empty, and ErrNotOnHeap if it was
// not constructed with a backing heap.
func (sq *StreamQueue) Delete() error {
	sq.k.Lock()
	busy := sq.buf.Len() != 0 || !sq.readers.Empty() || !sq.writers.Empty()
	sq.k.Unlock()
	if busy {
		return ErrBusy
	}
	return sq.backing.release()
}

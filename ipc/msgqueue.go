package ipc

import (
	"github.com/biaboi/Kora/itemqueue"
	"github.com/biaboi/Kora/klist"
	"github.com/biaboi/Kora/sched"
)

// MsgQueue is a fixed-capacity queue of fixed-size items (generics
// standing in for the source's void*+item_size pair), with separate
// reader and writer block lists. Grounded on ipc.c: msgq_init/
// msgq_create/msgq_delete/msgq_push/msgq_waitfor_push/msgq_overwrite/
// msgq_front/msgq_pop, backed by itemqueue.Queue[T].
type MsgQueue[T any] struct {
	k *sched.Kernel

	q               *itemqueue.Queue[T]
	readers, writers *klist.List[*sched.Task]

	backing heapBacking
}

// NewMsgQueue creates a queue holding up to capacity items of type T.
func NewMsgQueue[T any](k *sched.Kernel, capacity int, opts ...Option) *MsgQueue[T] {
	cfg := resolveOptions(opts)
	return &MsgQueue[T]{
		k:       k,
		q:       itemqueue.New[T](capacity),
		readers: klist.New[*sched.Task](),
		writers: klist.New[*sched.Task](),
		backing: newHeapBacking(cfg.heap, tokenSizeMsgQueue),
	}
}

func (mq *MsgQueue[T]) wakeLocked(self *sched.Task, blockList *klist.List[*sched.Task]) {
	changed := false
	if front := blockList.Front(); front != nil {
		changed = mq.k.ReadyLocked(front.Handle)
	}
	mq.k.Unlock()
	if changed {
		mq.k.Yield(self)
	}
}

// Push writes item if there is room, waking one blocked reader;
// otherwise blocks as a writer until space exists or ticks elapse.
func (mq *MsgQueue[T]) Push(self *sched.Task, item T, ticks uint32) error {
	mq.k.Lock()
	for {
		if !mq.q.Full() {
			mq.q.Push(item)
			mq.wakeLocked(self, mq.readers)
			return nil
		}
		if ticks == 0 {
			mq.k.Unlock()
			return ErrFull
		}
		mq.k.BlockLocked(self, mq.writers, ticks)
		ticks = self.LeftSleepTicks()
		mq.k.Lock()
	}
}

// WaitForPush blocks until the queue has room without writing
// anything, for callers that prepare a shared buffer under a critical
// section after space is confirmed available (ipc.c's documented
// msgq_waitfor_push pattern).
func (mq *MsgQueue[T]) WaitForPush(self *sched.Task, ticks uint32) error {
	mq.k.Lock()
	for {
		if !mq.q.Full() {
			mq.k.Unlock()
			return nil
		}
		if ticks == 0 {
			mq.k.Unlock()
			return ErrFull
		}
		mq.k.BlockLocked(self, mq.writers, ticks)
		ticks = self.LeftSleepTicks()
		mq.k.Lock()
	}
}

// Overwrite never blocks: it writes item, wrapping the front pointer
// forward (oldest item lost) if the queue was full, and wakes a reader
// unconditionally — including when the write just overwrote an unread
// item, per the preserved Open Question.
func (mq *MsgQueue[T]) Overwrite(self *sched.Task, item T) {
	mq.k.Lock()
	mq.q.Push(item)
	mq.wakeLocked(self, mq.readers)
}

// OverwriteISR is Overwrite's interrupt-context counterpart.
func (mq *MsgQueue[T]) OverwriteISR(item T) {
	mq.k.Lock()
	mq.q.Push(item)
	if front := mq.readers.Front(); front != nil {
		mq.k.ReadyISR(front.Handle)
	}
	mq.k.Unlock()
}

// Front copies the item at the front without removing it, blocking as
// a reader until one is available or ticks elapse.
func (mq *MsgQueue[T]) Front(self *sched.Task, ticks uint32) (T, error) {
	mq.k.Lock()
	for {
		if item, ok := mq.q.Front(); ok {
			mq.k.Unlock()
			return item, nil
		}
		if ticks == 0 {
			mq.k.Unlock()
			var zero T
			return zero, ErrEmpty
		}
		mq.k.BlockLocked(self, mq.readers, ticks)
		ticks = self.LeftSleepTicks()
		mq.k.Lock()
	}
}

// Pop removes the front item, waking one blocked writer. It returns
// ErrEmpty without side effects if the queue holds nothing.
func (mq *MsgQueue[T]) Pop(self *sched.Task) error {
	mq.k.Lock()
	if mq.q.Empty() {
		mq.k.Unlock()
		return ErrEmpty
	}
	mq.q.Pop()
	mq.wakeLocked(self, mq.writers)
	return nil
}

// Len returns the number of items currently queued.
func (mq *MsgQueue[T]) Len() int {
	mq.k.Lock()
	defer mq.k.Unlock()
	return mq.q.Len()
}

// Delete releases the queue. It fails with ErrBusy unless the queue
// and both block lists are empty, and ErrNotOnHeap if it was not
// constructed with a backing heap.
func (mq *MsgQueue[T]) Delete() error {
	mq.k.Lock()
	busy := mq.q.Len() != 0 || !mq.readers.Empty() || !mq.writers.Empty()
	mq.k.Unlock()
	if busy {
		return ErrBusy
	}
	return mq.backing.release()
}

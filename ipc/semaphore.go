package ipc

import (
	"github.com/biaboi/Kora/klist"
	"github.com/biaboi/Kora/sched"
)

// Semaphore is a counting semaphore with an upper bound, backed by a
// single FIFO block list. Grounded on ipc.c: sem_init/sem_create/
// sem_delete/sem_wait/sem_signal/sem_signal_isr.
type Semaphore struct {
	k *sched.Kernel

	max, count int
	blockList  *klist.List[*sched.Task]

	backing heapBacking
}

// NewSemaphore creates a counting semaphore with the given maximum and
// initial count. It panics if initCount > maxCount, matching the
// source's os_assert(max_cnt >= init_cnt).
func NewSemaphore(k *sched.Kernel, maxCount, initCount int, opts ...Option) *Semaphore {
	if initCount > maxCount {
		panic("ipc: semaphore initial count exceeds maximum")
	}
	cfg := resolveOptions(opts)
	return &Semaphore{
		k:         k,
		max:       maxCount,
		count:     initCount,
		blockList: klist.New[*sched.Task](),
		backing:   newHeapBacking(cfg.heap, tokenSizeSemaphore),
	}
}

// Wait decrements the count if positive; otherwise blocks until
// signaled or ticks elapse. ticks == 0 fails immediately without
// blocking; ticks == sched.Forever blocks indefinitely.
func (s *Semaphore) Wait(self *sched.Task, ticks uint32) error {
	s.k.Lock()
	for {
		if s.count > 0 {
			s.count--
			s.k.Unlock()
			return nil
		}
		if ticks == 0 {
			s.k.Unlock()
			return ErrTimeout
		}
		s.k.BlockLocked(self, s.blockList, ticks)
		ticks = self.LeftSleepTicks()
		s.k.Lock()
	}
}

// Peek is a Wait variant that does not decrement the count on
// success, otherwise behaving identically (including blocking).
func (s *Semaphore) Peek(self *sched.Task, ticks uint32) error {
	s.k.Lock()
	for {
		if s.count > 0 {
			s.k.Unlock()
			return nil
		}
		if ticks == 0 {
			s.k.Unlock()
			return ErrTimeout
		}
		s.k.BlockLocked(self, s.blockList, ticks)
		ticks = self.LeftSleepTicks()
		s.k.Lock()
	}
}

// Signal increments the count, failing with ErrFull if already at
// max, and wakes the head of the block list if one is waiting.
func (s *Semaphore) Signal(self *sched.Task) error {
	s.k.Lock()
	if s.count >= s.max {
		s.k.Unlock()
		return ErrFull
	}
	s.count++
	changed := false
	if front := s.blockList.Front(); front != nil {
		changed = s.k.ReadyLocked(front.Handle)
	}
	s.k.Unlock()
	if changed {
		s.k.Yield(self)
	}
	return nil
}

// SignalISR is Signal's interrupt-context counterpart: it never
// yields, and — per the preserved Open Question — fails without
// incrementing when already at max rather than saturating.
func (s *Semaphore) SignalISR() error {
	s.k.Lock()
	if s.count >= s.max {
		s.k.Unlock()
		return ErrFull
	}
	s.count++
	if front := s.blockList.Front(); front != nil {
		s.k.ReadyISR(front.Handle)
	}
	s.k.Unlock()
	return nil
}

// Count returns the current count.
func (s *Semaphore) Count() int {
	s.k.Lock()
	defer s.k.Unlock()
	return s.count
}

// Delete releases the semaphore. It fails with ErrBusy if any task is
// still blocked on it, and ErrNotOnHeap if it was not constructed with
// a backing heap.
func (s *Semaphore) Delete() error {
	s.k.Lock()
	empty := s.blockList.Empty()
	s.k.Unlock()
	if !empty {
		return ErrBusy
	}
	return s.backing.release()
}

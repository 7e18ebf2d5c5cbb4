package ipc

import (
	"github.com/biaboi/Kora/klist"
	"github.com/biaboi/Kora/sched"
)

// Mutex is a binary lock with single-hop priority inheritance: the
// first task to block on a lower-priority owner boosts that owner to
// its own priority, restored on unlock. Grounded on ipc.c: mutex_init/
// mutex_create/mutex_delete/mutex_lock/mutex_unlock. As documented in
// spec §9, inheritance is not transitive across chained mutexes.
type Mutex struct {
	k *sched.Kernel

	owner     *sched.Task
	bkpPrio   int // owner's pre-boost priority; 0 when not boosted
	blockList *klist.List[*sched.Task]

	backing heapBacking
}

// NewMutex creates an unlocked mutex.
func NewMutex(k *sched.Kernel, opts ...Option) *Mutex {
	cfg := resolveOptions(opts)
	return &Mutex{
		k:         k,
		blockList: klist.New[*sched.Task](),
		backing:   newHeapBacking(cfg.heap, tokenSizeMutex),
	}
}

// Lock acquires the mutex, blocking forever if it is already held. If
// the current owner is less urgent than self, the owner is boosted to
// self's priority for the duration of self's wait (and every other
// concurrent waiter's, until unlock restores it) — a single-hop boost,
// not a transitive owner-chain walk.
func (m *Mutex) Lock(self *sched.Task) {
	m.k.Lock()
	for {
		if m.owner == nil {
			m.owner = self
			m.k.Unlock()
			return
		}

		owner := m.owner
		if owner.Priority > self.Priority {
			// ModifyPriority takes the kernel lock itself.
			m.k.Unlock()
			old := m.k.ModifyPriority(owner, self.Priority)
			m.k.Lock()
			if m.bkpPrio == 0 {
				m.bkpPrio = old
			}
		}

		m.k.BlockLocked(self, m.blockList, sched.Forever)
		m.k.Lock()
	}
}

// Unlock releases the mutex, restoring the owner's original priority
// if it was boosted, and wakes the head of the block list.
func (m *Mutex) Unlock(self *sched.Task) {
	m.k.Lock()
	owner := m.owner
	m.owner = nil

	if m.bkpPrio != 0 {
		bkp := m.bkpPrio
		m.bkpPrio = 0
		m.k.Unlock()
		m.k.ModifyPriority(owner, bkp)
		m.k.Lock()
	}

	changed := false
	if front := m.blockList.Front(); front != nil {
		changed = m.k.ReadyLocked(front.Handle)
	}
	m.k.Unlock()
	if changed {
		m.k.Yield(self)
	}
}

// Owner returns the current lock owner, or nil if unlocked.
func (m *Mutex) Owner() *sched.Task {
	m.k.Lock()
	defer m.k.Unlock()
	return m.owner
}

// Delete releases the mutex. It fails with ErrBusy while an owner is
// set, and ErrNotOnHeap if it was not constructed with a backing heap.
func (m *Mutex) Delete() error {
	m.k.Lock()
	owned := m.owner != nil
	m.k.Unlock()
	if owned {
		return ErrBusy
	}
	return m.backing.release()
}

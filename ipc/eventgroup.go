package ipc

import (
	"github.com/biaboi/Kora/klist"
	"github.com/biaboi/Kora/sched"
)

// EvtOpt selects whether EventGroup.Wait's predicate is satisfied by
// any requested bit being set (EvtOR) or all of them (EvtAND).
type EvtOpt uint32

const (
	EvtOR EvtOpt = iota
	EvtAND
)

// evtBitsMask is the 24-bit usable range for event bits; the 30th bit
// of a waiter's encoded predicate carries the AND/OR option, so
// payload bits must never reach that high.
const evtBitsMask = 0x00FFFFFF

// EventGroup is a 24-bit flag word with AND/OR-predicated waiters.
// Grounded on ipc.c: evt_group_init/evt_group_create/
// evt_group_delete/evt_wait/evt_set/evt_set_isr/evt_clear/
// evt_clear_isr, including the bit-30 predicate encoding stored in
// each waiter's event node.
type EventGroup struct {
	k *sched.Kernel

	bits      uint32
	blockList *klist.List[*sched.Task]

	backing heapBacking
}

// NewEventGroup creates an event group with the given initial bits.
func NewEventGroup(k *sched.Kernel, initBits uint32, opts ...Option) *EventGroup {
	cfg := resolveOptions(opts)
	return &EventGroup{
		k:         k,
		bits:      initBits & evtBitsMask,
		blockList: klist.New[*sched.Task](),
		backing:   newHeapBacking(cfg.heap, tokenSizeEventGroup),
	}
}

func encodePredicate(bits uint32, opt EvtOpt) uint32 {
	return bits | (uint32(opt) << 30)
}

func satisfied(setBits, predicate uint32) bool {
	opt := EvtOpt(predicate >> 30)
	reqBits := predicate & evtBitsMask
	if opt == EvtAND {
		return setBits&reqBits == reqBits
	}
	return setBits&reqBits != 0
}

// Wait blocks until bits (interpreted per opt) are satisfied in the
// group's current flags, or ticks elapse. If clear is true, the
// satisfying bits are cleared from the group before returning
// successfully. Per the preserved Open Question, the predicate is
// published into self's event-node encoding before any failure path —
// including the ticks==0 immediate-timeout path — runs.
func (e *EventGroup) Wait(self *sched.Task, bits uint32, clear bool, opt EvtOpt, ticks uint32) error {
	if bits&evtBitsMask != bits {
		return ErrInvalid
	}
	predicate := encodePredicate(bits, opt)

	e.k.Lock()
	self.SetEventValue(predicate)

	for !satisfied(e.bits, predicate) {
		if ticks == 0 {
			e.k.Unlock()
			return ErrTimeout
		}
		e.k.BlockLocked(self, e.blockList, ticks)
		ticks = self.LeftSleepTicks()
		e.k.Lock()
	}

	if clear {
		e.bits &^= bits
	}
	e.k.Unlock()
	return nil
}

// Set ORs bits into the group and wakes every waiter whose predicate
// is now satisfied, in block-list order. A waiter enqueued during this
// walk (e.g. by a task woken earlier in the same walk racing back in)
// is not considered until the next Set call.
func (e *EventGroup) Set(self *sched.Task, bits uint32) {
	e.k.Lock()
	e.bits |= bits & evtBitsMask

	anyChanged := false
	count := e.blockList.Len()
	cur := e.blockList.Front()
	for i := 0; i < count && cur != nil; i++ {
		next := e.blockList.NextFrom(cur)
		if satisfied(e.bits, cur.Value) {
			if e.k.ReadyLocked(cur.Handle) {
				anyChanged = true
			}
		}
		cur = next
	}
	e.k.Unlock()

	if anyChanged {
		e.k.Yield(self)
	}
}

// SetISR is Set's interrupt-context counterpart.
func (e *EventGroup) SetISR(bits uint32) {
	e.k.Lock()
	e.bits |= bits & evtBitsMask

	count := e.blockList.Len()
	cur := e.blockList.Front()
	for i := 0; i < count && cur != nil; i++ {
		next := e.blockList.NextFrom(cur)
		if satisfied(e.bits, cur.Value) {
			e.k.ReadyISR(cur.Handle)
		}
		cur = next
	}
	e.k.Unlock()
}

// Clear ANDs the complement of bits into the group's flags.
func (e *EventGroup) Clear(bits uint32) {
	e.k.Lock()
	e.bits &^= bits & evtBitsMask
	e.k.Unlock()
}

// ClearISR is Clear's interrupt-context counterpart (identical; Clear
// never blocks or wakes anyone, so there is nothing ISR-unsafe about
// the task-context version — kept as a distinct method for symmetry
// with the rest of the package's *_isr pairs).
func (e *EventGroup) ClearISR(bits uint32) { e.Clear(bits) }

// Bits returns the group's current flags.
func (e *EventGroup) Bits() uint32 {
	e.k.Lock()
	defer e.k.Unlock()
	return e.bits
}

// Delete releases the event group. It fails with ErrBusy while any
// task is blocked on it, and ErrNotOnHeap if it was not constructed
// with a backing heap.
func (e *EventGroup) Delete() error {
	e.k.Lock()
	empty := e.blockList.Empty()
	e.k.Unlock()
	if !empty {
		return ErrBusy
	}
	return e.backing.release()
}

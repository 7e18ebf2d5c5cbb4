package sched

import "github.com/biaboi/Kora/klist"

// Forever is the sentinel "block indefinitely" timeout.
const Forever uint32 = 0xFFFFFFFF

// Task is the kernel's per-task control block. One Task exists per
// goroutine-backed task; the Task handle is passed into the task body
// and is the only way task code touches the kernel.
type Task struct {
	k *Kernel

	Name     string
	Priority int

	state TaskState

	stateNode *klist.Node[*Task]
	eventNode *klist.Node[*Task]
	linkNode  *klist.Node[*Task]

	eventValue uint32 // set to the creation priority and not read; the event-group encoding lives in eventNode.Value (see EventValue)

	stackBudget  int // simulated free-stack bytes, decremented by Checkpoint
	minStackLeft int

	fn    func(*Task)
	arg   any
	resume chan struct{}
	started bool
	deleted bool
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState { return t.state }

// EventValue returns the task's event-node encoding: the event
// group's AND/OR-plus-bitmask predicate for a task blocked on one, or
// an IPC-specific scratch value for every other blocker. Callers must
// hold the owning Kernel's lock (via Lock/Unlock).
func (t *Task) EventValue() uint32 { return t.eventNode.Value }

// SetEventValue sets the task's event-node encoding. Called by an IPC
// object (the event group) before blocking self, so the predicate is
// visible to Set's block-list walk once self's event node is enqueued
// by Block/BlockLocked. Callers must hold the owning Kernel's lock.
func (t *Task) SetEventValue(v uint32) { t.eventNode.Value = v }

// LeftSleepTicks returns the ticks remaining before a sleeping or
// timed-block task wakes, or Forever if it is waiting indefinitely.
func (t *Task) LeftSleepTicks() uint32 {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.leftSleepTicksLocked()
}

func (t *Task) leftSleepTicksLocked() uint32 {
	v := t.stateNode.Value
	if v == Forever {
		return Forever
	}
	tick := uint32(t.k.tickCount)
	if v > tick {
		return v - tick
	}
	return 0
}

// Checkpoint is the cooperative preemption poll point: task bodies
// that run long computations without otherwise suspending must call
// this periodically so tick-driven preemption and priority-based
// switches actually take effect. It also advances the simulated
// stack-watermark, panicking with a FatalError if the budget is
// exhausted.
func (t *Task) Checkpoint() {
	t.k.checkpoint(t)
}

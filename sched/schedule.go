package sched

import (
	"math"
	"time"

	"github.com/biaboi/Kora/klist"
)

// scheduleLocked picks the next task to run from the highest non-empty
// priority level, round-robining within that level, and installs it as
// k.current. Callers must hold mu and must send the execution baton to
// the result (if it differs from the previous current) after
// unlocking.
func (k *Kernel) scheduleLocked() {
	hp := k.highestPrioLocked()
	cursor := k.readyIter[hp]
	var next *klist.Node[*Task]
	if cursor == nil {
		next = k.ready[hp].Front()
	} else {
		next = k.ready[hp].NextFrom(cursor)
	}
	if next == nil {
		next = k.idle.stateNode
	}
	k.readyIter[hp] = next

	prev := k.current
	k.current = next.Handle
	k.current.state = Running
	k.current.stackBudget = k.cfg.MinStackBudget
	if prev != nil && prev != k.current && prev.state == Running {
		prev.state = Ready
	}
	if prev != k.current {
		k.cfg.Hooks.TaskSwitched(prev, k.current)
	}
}

// ensureStarted lazily spawns the goroutine backing t, the first time
// it is ever handed the baton.
func (k *Kernel) ensureStarted(t *Task) {
	if t.started {
		return
	}
	t.started = true
	go k.runTask(t)
}

func (k *Kernel) runTask(t *Task) {
	<-t.resume
	t.fn(t)
	if !t.deleted {
		k.SelfDelete(t)
	}
}

// switchTo hands the baton to next, spawning its goroutine first if
// this is its first run.
func (k *Kernel) switchTo(next *Task) {
	k.ensureStarted(next)
	next.resume <- struct{}{}
}

// yieldSelf blocks self until some other task hands it the baton back.
func (k *Kernel) yieldSelf(self *Task) {
	<-self.resume
}

// callSched is the Go analogue of requesting an immediate reschedule
// from task context: it picks a new current task and, if that isn't
// self, switches to it and blocks until self runs again.
func (k *Kernel) callSched(self *Task) {
	k.mu.Lock()
	k.activelySched = true
	k.scheduleLocked()
	next := k.current
	k.mu.Unlock()

	if next != self {
		k.switchTo(next)
		k.yieldSelf(self)
	}
}

// checkpoint backs Task.Checkpoint: it advances the simulated stack
// watermark and, if a switch was requested from interrupt context
// since self last ran, performs it now. The watermark resets every
// time self is freshly dispatched (see scheduleLocked), so it bounds
// stack growth between switch points rather than across a task's
// entire lifetime.
func (k *Kernel) checkpoint(self *Task) {
	k.mu.Lock()
	self.stackBudget--
	if self.stackBudget < self.minStackLeft {
		self.minStackLeft = self.stackBudget
	}
	overflow := self.stackBudget < stackOverflowFloor
	k.mu.Unlock()

	if overflow {
		k.cfg.Hooks.StackOverflow(self)
		panic(&FatalError{Reason: "stack budget exhausted", Task: self.Name})
	}
	k.consumePendingSwitch(self)
}

// consumePendingSwitch performs a requested switch, if one is
// outstanding, without touching the stack watermark. It backs
// checkpoint and the idle task's loop, which has no stack of its own
// to account for.
func (k *Kernel) consumePendingSwitch(self *Task) {
	k.mu.Lock()
	if !k.switchPending {
		k.mu.Unlock()
		return
	}
	k.switchPending = false
	k.scheduleLocked()
	next := k.current
	k.mu.Unlock()

	if next != self {
		k.switchTo(next)
		k.yieldSelf(self)
	}
}

// addToSleepLocked places t on the sleep list with an absolute wake
// tick of tickCount+delta, rebasing the whole sleep list first if that
// sum would overflow a uint32.
func (k *Kernel) addToSleepLocked(t *Task, delta uint32) {
	if delta > math.MaxUint32-uint32(k.tickCount) {
		k.tickResetLocked()
	}
	t.stateNode.Value = uint32(k.tickCount) + delta
	k.sleepList.InsertSorted(t.stateNode)
}

// tickResetLocked rebases every sleeper's wake tick relative to the
// current tick count, then zeroes the counter, so it can keep counting
// up without ever overflowing relative to outstanding deadlines.
func (k *Kernel) tickResetLocked() {
	k.cfg.Hooks.TickReset()
	count := k.sleepList.Len()
	n := k.sleepList.Front()
	for i := 0; i < count && n != nil; i++ {
		n.Value -= uint32(k.tickCount)
		n = k.sleepList.NextFrom(n)
	}
	k.cpuBeginTick -= k.tickCount
	k.cpuLastTick -= k.tickCount
	k.tickCount = 0
}

// wakeFromSleepLocked moves every task whose deadline has arrived from
// the head of the sleep list back to its ready list, in deadline order.
func (k *Kernel) wakeFromSleepLocked() {
	for {
		first := k.sleepList.Front()
		if first == nil || uint32(k.tickCount) < first.Value {
			return
		}
		t := first.Handle
		klist.Remove(t.eventNode)
		klist.Remove(t.stateNode)
		k.addToReadyLocked(t)
	}
}

// TickHandler advances the tick counter by one and wakes/preempts as
// needed. It is the Go analogue of the timer-interrupt entry point and
// is safe to call from any goroutine (e.g. a time.Ticker loop).
func (k *Kernel) TickHandler() {
	k.mu.Lock()
	if k.current == nil {
		k.mu.Unlock()
		return
	}
	k.tickCount++
	k.cfg.Hooks.Tick(k.tickCount)

	if !k.sleepList.Empty() {
		k.wakeFromSleepLocked()
	}

	if k.switchDisable > 0 || k.activelySched {
		k.activelySched = false
		k.mu.Unlock()
		return
	}

	hp := k.highestPrioLocked()
	skip := k.current.Priority == hp && k.ready[hp].Len() == 1
	if !skip {
		k.switchPending = true
	}
	k.mu.Unlock()
}

// readyLocked is Ready's lock-free core, shared with the *Locked and
// ISR entry points below.
func (k *Kernel) readyLocked(target *Task) bool {
	klist.Remove(target.stateNode)
	klist.Remove(target.eventNode)
	return k.addToReadyLocked(target)
}

// Ready moves target out of whatever list it is on (blocked/sleeping)
// and onto its ready list, then — if that makes target more urgent
// than everything previously ready — yields self to the scheduler.
func (k *Kernel) Ready(self, target *Task) {
	k.mu.Lock()
	changed := k.readyLocked(target)
	k.mu.Unlock()

	if changed {
		k.callSched(self)
	}
}

// ReadyISR is Ready's interrupt-context counterpart: it never blocks,
// instead requesting a switch for the next Checkpoint/TickHandler to
// carry out.
func (k *Kernel) ReadyISR(target *Task) {
	k.mu.Lock()
	changed := k.readyLocked(target)
	if changed {
		k.switchPending = true
	}
	k.mu.Unlock()
}

// ReadyLocked is Ready's counterpart for callers that already hold the
// kernel lock (via Lock) as part of a larger atomic check-then-wake
// sequence — the shape every IPC primitive's "wake one waiter" step
// needs. It returns with the lock still held and reports whether
// target is now more urgent than everything previously ready; the
// caller unlocks and, if true, should call Yield to actually switch.
func (k *Kernel) ReadyLocked(target *Task) bool {
	return k.readyLocked(target)
}

// Lock acquires the kernel's single critical section. IPC primitives
// use this same lock for their own state (counts, owners, bitmaps) so
// that a condition check and the resulting block/wake decision happen
// as one atomic step, exactly as task state transitions do.
func (k *Kernel) Lock() { k.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (k *Kernel) Unlock() { k.mu.Unlock() }

// Yield requests an immediate reschedule from task context, the same
// way a blocking primitive does internally. Callers that mutated
// shared state under Lock/Unlock and woke a waiter via ReadyLocked use
// this afterwards to actually hand off the baton if warranted.
func (k *Kernel) Yield(self *Task) {
	k.callSched(self)
}

// ModifyPriority changes t's priority, moving it between ready lists
// if it is currently ready or running, and returns its previous
// priority. Used by priority-inheriting mutexes to promote a lock
// owner and later restore it.
func (k *Kernel) ModifyPriority(t *Task, newPrio int) int {
	k.mu.Lock()
	old := t.Priority
	if t.state == Ready || t.state == Running {
		k.removeFromReadyLocked(t)
		t.Priority = newPrio
		k.addToReadyLocked(t)
	} else {
		t.Priority = newPrio
	}
	k.mu.Unlock()
	return old
}

// Block takes self off the ready list (unless waitTicks is 0, meaning
// "block without a ready-list transition"), queues it on blockList,
// and yields to the scheduler. waitTicks of Forever blocks with no
// timeout; any other non-zero value also enters the sleep list so a
// tick can time the wait out.
func (k *Kernel) Block(self *Task, blockList *klist.List[*Task], waitTicks uint32) {
	k.mu.Lock()
	k.BlockLocked(self, blockList, waitTicks)
}

// BlockLocked is Block's counterpart for callers that already hold the
// kernel lock, so the "is the condition still unmet" check and the
// block-list enqueue happen as one atomic step with no window for a
// concurrent Signal/Ready to be missed. It takes ownership of the lock
// passed in and releases it before returning.
func (k *Kernel) BlockLocked(self *Task, blockList *klist.List[*Task], waitTicks uint32) {
	self.state = Blocking
	if waitTicks != 0 {
		k.removeFromReadyLocked(self)
		if waitTicks != Forever {
			k.addToSleepLocked(self, waitTicks)
		} else {
			self.stateNode.Value = Forever
		}
		blockList.InsertBack(self.eventNode)
	}
	k.mu.Unlock()

	k.callSched(self)
}

// BlockISR is Block's interrupt-context counterpart, used to place
// some other task (never the caller) onto a block list from within a
// completion callback.
func (k *Kernel) BlockISR(target *Task, blockList *klist.List[*Task], waitTicks uint32) {
	k.mu.Lock()
	target.state = Blocking
	if waitTicks != 0 {
		k.removeReadyNodeLocked(target)
		if waitTicks != Forever {
			k.addToSleepLocked(target, waitTicks)
		}
		blockList.InsertBack(target.eventNode)
	}
	if target == k.current {
		k.switchPending = true
	}
	k.mu.Unlock()
}

// Sleep takes self off the ready list for xtick+1 ticks and yields to
// the scheduler. The +1 guarantees at least xtick full ticks of sleep
// regardless of how far into the current tick period the call lands.
func (k *Kernel) Sleep(self *Task, xtick uint32) {
	k.mu.Lock()
	self.state = Sleeping
	k.removeFromReadyLocked(self)
	k.addToSleepLocked(self, xtick+1)
	k.mu.Unlock()

	k.callSched(self)
}

// Suspend removes target from the ready/sleep/block list it is on and
// marks it Suspended. If target is self, self yields to the scheduler.
func (k *Kernel) Suspend(self, target *Task) {
	k.mu.Lock()
	k.removeReadyNodeLocked(target)
	klist.Remove(target.eventNode)
	target.state = Suspended
	k.mu.Unlock()

	if target == self {
		k.callSched(self)
	}
}

// SuspendISR is Suspend's interrupt-context counterpart.
func (k *Kernel) SuspendISR(target *Task) {
	k.mu.Lock()
	k.removeReadyNodeLocked(target)
	klist.Remove(target.eventNode)
	target.state = Suspended
	if target == k.current {
		k.switchPending = true
	}
	k.mu.Unlock()
}

// Delete removes target from the kernel entirely (ready/sleep/block
// list, all-tasks list) and marks it deleted, then unconditionally
// reschedules. When target is self, self's goroutine is finishing for
// good: the baton is handed off but self never waits to be resumed.
func (k *Kernel) Delete(self, target *Task) {
	k.mu.Lock()
	k.cfg.Hooks.TaskDeleted(target)
	k.removeReadyNodeLocked(target)
	klist.Remove(target.eventNode)
	klist.Remove(target.linkNode)
	target.deleted = true
	k.activelySched = true
	k.scheduleLocked()
	next := k.current
	k.mu.Unlock()

	if target == self {
		k.switchTo(next)
		return
	}
	if next != self {
		k.switchTo(next)
		k.yieldSelf(self)
	}
}

// DeleteISR is Delete's interrupt-context counterpart.
func (k *Kernel) DeleteISR(target *Task) {
	k.mu.Lock()
	k.cfg.Hooks.TaskDeleted(target)
	k.removeReadyNodeLocked(target)
	klist.Remove(target.eventNode)
	klist.Remove(target.linkNode)
	target.deleted = true
	k.switchPending = true
	k.mu.Unlock()
}

// SelfDelete deletes self. A task whose body returns naturally is
// deleted this way automatically; calling it explicitly never
// returns.
func (k *Kernel) SelfDelete(self *Task) {
	k.Delete(self, self)
}

// DisableSwitch increments the switch-disable nesting count. While the
// count is non-zero, TickHandler requests no switch, so Checkpoint
// performs no tick-driven preemption until the matching EnableSwitch
// calls bring the count back to zero. Switches that a task causes
// itself (Ready, Yield, Block, Sleep, Suspend, Delete) and switches
// requested by the *ISR methods are not held back.
func (k *Kernel) DisableSwitch() {
	k.mu.Lock()
	k.switchDisable++
	k.mu.Unlock()
}

// EnableSwitch reverses one DisableSwitch. If this brings the nesting
// count to zero and a more urgent task is now ready, self immediately
// yields to it.
func (k *Kernel) EnableSwitch(self *Task) {
	k.mu.Lock()
	if k.switchDisable <= 0 {
		k.mu.Unlock()
		panic(&FatalError{Reason: "switch enabled more times than disabled", Task: self.Name})
	}
	k.switchDisable--
	needSched := k.switchDisable == 0 && k.highestPrioLocked() < self.Priority
	k.mu.Unlock()

	if needSched {
		k.callSched(self)
	}
}

// idleLoop is the body of the always-present lowest-priority idle
// task. It tracks no sleep/block state of its own; it exists purely so
// the ready-list bitmap always has some level set at priority
// cfg.MaxPriorities-1, and as a natural place for drain/yield-forever
// housekeeping hooks to run.
func (k *Kernel) idleLoop(t *Task) {
	rate := k.cfg.TickRate
	if rate <= 0 {
		rate = 1000
	}
	interval := time.Second / time.Duration(rate)

	for {
		select {
		case <-k.stopped:
			return
		default:
		}
		k.cfg.Hooks.Idle()
		k.mu.Lock()
		k.sampleCPUWindowLocked()
		k.mu.Unlock()
		if k.cfg.Heap != nil {
			k.cfg.Heap.DrainDeferred()
		}
		k.consumePendingSwitch(t)
		time.Sleep(interval)
	}
}

// Package sched implements Kora's scheduler and task lifecycle: the
// priority bitmap, round-robin ready lists, a sleep list with
// tick-reset rebasing, the tick handler, the idle task, and a
// goroutine-baton translation of the context-switch boundary.
package sched

import (
	"math/bits"
	"sync"

	"github.com/biaboi/Kora/klist"
)

const stackOverflowFloor = 40 // simulated free-stack floor that trips StackOverflow

// Kernel owns every piece of scheduler state: the per-priority ready
// lists and bitmap, the sleep list, the all-tasks list, the currently
// running task, the tick counter, and the switch-disable nesting
// count. All of it is confined behind mu.
type Kernel struct {
	cfg Config

	mu sync.Mutex

	ready     []*klist.List[*Task]
	readyIter []*klist.Node[*Task]
	bitmap    uint32

	sleepList *klist.List[*Task]
	allTasks  *klist.List[*Task]

	current *Task

	tickCount     uint64
	switchDisable int
	activelySched bool
	switchPending bool

	// CPU-utilization window state, translated from task.c's static
	// begin_tick/idle_tick/cpu_utilization: sampled once per idle-loop
	// iteration and rebased every 400 ticks.
	cpuBeginTick   uint64
	cpuLastTick    uint64
	cpuIdleTicks   uint64
	cpuUtilization int

	idle *Task

	started bool
	stopped chan struct{}
}

// New constructs a Kernel. It does not start the scheduler; call Start
// once at least one task has been created with CreateTask.
func New(opts ...Option) *Kernel {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	k := &Kernel{
		cfg:      cfg,
		ready:    make([]*klist.List[*Task], cfg.MaxPriorities),
		readyIter: make([]*klist.Node[*Task], cfg.MaxPriorities),
		sleepList: klist.New[*Task](),
		allTasks:  klist.New[*Task](),
		stopped:   make(chan struct{}),
		switchDisable: 1, // switching stays disabled until Start
	}
	for i := range k.ready {
		k.ready[i] = klist.New[*Task]()
	}
	k.idle = k.newTask("idle", cfg.MaxPriorities-1, func(t *Task) { k.idleLoop(t) })
	k.allTasks.InsertBack(k.idle.linkNode)
	k.addToReadyLocked(k.idle)
	return k
}

// Start picks the first task to run and hands it the execution baton.
// It must be called exactly once, after every initial task has been
// created with CreateTask.
func (k *Kernel) Start() {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return
	}
	k.started = true
	k.switchDisable = 0
	k.tickCount = 0
	k.scheduleLocked()
	first := k.current
	k.mu.Unlock()

	k.ensureStarted(first)
	first.resume <- struct{}{}
}

// Stop signals the idle task's loop to exit on its next iteration. It
// returns at once and does not wait for the loop to exit. It is
// intended for tests and simulation harnesses, not for production
// targets where the kernel runs forever.
func (k *Kernel) Stop() {
	close(k.stopped)
}

// IsSchedulerRunning reports whether task switching is currently
// enabled.
func (k *Kernel) IsSchedulerRunning() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.switchDisable == 0
}

// CPUUtilization reports the idle task's 400-tick moving-average
// utilization figure, a value in [0, 100]. Translated from task.c's
// os_get_cpu_utilization: the window is refreshed once every 400 ticks
// by the idle loop's sampleCPUWindowLocked, and a window that hasn't
// rolled over in over 400 ticks (the idle task never got to run)
// reports 100, same as the source.
func (k *Kernel) CPUUtilization() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tickCount-k.cpuBeginTick > 400 {
		return 100
	}
	return k.cpuUtilization
}

// sampleCPUWindowLocked is the idle loop's once-per-iteration sample,
// translated from idle_task's idle_tick bookkeeping: it counts one
// idle tick per distinct tick value observed while idle, then every
// 400 ticks converts that count into a percentage (source: cpu_utilization
// = 100 - idle_tick/4) and rebases the window.
func (k *Kernel) sampleCPUWindowLocked() {
	if k.tickCount != k.cpuLastTick {
		k.cpuIdleTicks++
		k.cpuLastTick = k.tickCount
	}
	if k.tickCount-k.cpuBeginTick >= 400 {
		k.cpuUtilization = 100 - int(k.cpuIdleTicks/4)
		k.cpuBeginTick = k.tickCount
		k.cpuIdleTicks = 0
	}
}

// Hooks returns the configured structured-event sink.
func (k *Kernel) Hooks() Hooks { return k.cfg.Hooks }

// Tick returns the current tick count.
func (k *Kernel) Tick() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tickCount
}

// TaskCount returns the number of tasks known to the kernel, in any
// state.
func (k *Kernel) TaskCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.allTasks.Len()
}

// ForEachTask calls fn for every task currently tracked by the kernel.
// fn must not call back into the kernel.
func (k *Kernel) ForEachTask(fn func(*Task)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	count := k.allTasks.Len()
	n := k.allTasks.Front()
	for i := 0; i < count && n != nil; i++ {
		fn(n.Handle)
		n = k.allTasks.NextFrom(n)
	}
}

// FindTask looks up a task by name.
func (k *Kernel) FindTask(name string) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	count := k.allTasks.Len()
	n := k.allTasks.Front()
	for i := 0; i < count && n != nil; i++ {
		if n.Handle.Name == name {
			return n.Handle
		}
		n = k.allTasks.NextFrom(n)
	}
	return nil
}

// HighestPriority returns the priority level of the most urgent ready
// task (lower is more urgent), or the idle level if nothing is ready.
// Grounded on port.h's get_highest_priority.
func (k *Kernel) HighestPriority() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.highestPrioLocked()
}

func (k *Kernel) highestPrioLocked() int {
	if k.bitmap == 0 {
		return len(k.ready) - 1
	}
	return bits.TrailingZeros32(k.bitmap)
}

// addToReadyLocked adds t to its priority level's ready list and
// reports whether t is now more urgent than every previously-ready
// task, which callers use to decide whether to request a switch.
func (k *Kernel) addToReadyLocked(t *Task) bool {
	before := k.highestPrioLocked()
	k.bitmap |= 1 << uint(t.Priority)
	t.state = Ready
	k.ready[t.Priority].InsertBack(t.stateNode)
	return t.Priority < before
}

func (k *Kernel) removeFromReadyLocked(t *Task) {
	prio := t.Priority
	if k.ready[prio].Len() == 1 {
		k.bitmap &^= 1 << uint(prio)
	}
	onCursor := k.readyIter[prio] == t.stateNode
	prev := klist.Remove(t.stateNode)
	if onCursor {
		// Rewind to the removed node's predecessor, per klist.Remove's
		// contract, so the next NextFrom resumes round-robin order
		// instead of restarting at Front and starving later nodes.
		k.readyIter[prio] = prev
	}
}

func (k *Kernel) removeReadyNodeLocked(t *Task) {
	if t.state == Running || t.state == Ready {
		k.removeFromReadyLocked(t)
	} else {
		klist.Remove(t.stateNode)
	}
}

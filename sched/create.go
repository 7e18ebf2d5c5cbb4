package sched

import "github.com/biaboi/Kora/klist"

func (k *Kernel) newTask(name string, prio int, fn func(*Task)) *Task {
	if prio < 0 || prio >= len(k.ready) {
		panic("sched: priority out of range")
	}
	t := &Task{
		k:            k,
		Name:         name,
		Priority:     prio,
		state:        Ready,
		fn:           fn,
		resume:       make(chan struct{}),
		stackBudget:  k.cfg.MinStackBudget,
		minStackLeft: k.cfg.MinStackBudget,
	}
	t.stateNode = &klist.Node[*Task]{Handle: t}
	t.eventNode = &klist.Node[*Task]{Handle: t}
	t.linkNode = &klist.Node[*Task]{Handle: t}
	t.eventValue = uint32(prio)
	return t
}

// CreateTask creates a new task at the given priority, running fn on
// its own goroutine once the kernel is started, and places it on the
// ready list.
func (k *Kernel) CreateTask(name string, prio int, fn func(*Task)) *Task {
	t := k.newTask(name, prio, fn)

	k.mu.Lock()
	k.allTasks.InsertBack(t.linkNode)
	k.addToReadyLocked(t)
	k.mu.Unlock()

	return t
}

package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T, opts ...Option) *Kernel {
	t.Helper()
	return New(opts...)
}

func TestRoundRobinSamePriority(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	body := func(name string, n int) func(*Task) {
		return func(self *Task) {
			for i := 0; i < n; i++ {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				self.Checkpoint()
			}
			if name == "b" {
				close(done)
			}
		}
	}

	k.CreateTask("a", 0, body("a", 3))
	k.CreateTask("b", 0, body("b", 3))

	go k.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	var aCount, bCount int
	for _, name := range order {
		switch name {
		case "a":
			aCount++
		case "b":
			bCount++
		}
	}
	require.Equal(t, 3, aCount)
	require.Equal(t, 3, bCount)
}

func TestHighestPriorityDispatchedFirst(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))

	ran := make(chan string, 2)
	k.CreateTask("low", 2, func(self *Task) { ran <- "low" })
	k.CreateTask("high", 0, func(self *Task) { ran <- "high" })

	go k.Start()

	select {
	case first := <-ran:
		require.Equal(t, "high", first)
	case <-time.After(2 * time.Second):
		t.Fatal("no task ever ran")
	}
}

func TestSleepWakesAfterTicks(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))

	woke := make(chan struct{})
	k.CreateTask("sleeper", 0, func(self *Task) {
		self.k.Sleep(self, 3)
		close(woke)
	})

	go k.Start()
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		k.TickHandler()
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper never woke")
	}
}

func TestStackOverflowPanicsAsFatalError(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(2), WithMinStackBudget(50))

	caught := make(chan any, 1)
	k.CreateTask("runaway", 0, func(self *Task) {
		defer func() { caught <- recover() }()
		for {
			self.Checkpoint()
		}
	})

	go k.Start()

	select {
	case r := <-caught:
		fe, ok := r.(*FatalError)
		require.True(t, ok, "expected *FatalError, got %T: %v", r, r)
		require.Equal(t, "runaway", fe.Task)
	case <-time.After(2 * time.Second):
		t.Fatal("runaway task never hit its stack budget")
	}
}

func TestCreateTaskRejectsOutOfRangePriority(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))
	require.Panics(t, func() {
		k.CreateTask("bad", 10, func(*Task) {})
	})
}

func TestTaskCountIncludesIdle(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))
	require.Equal(t, 1, k.TaskCount())
	k.CreateTask("a", 0, func(*Task) {})
	require.Equal(t, 2, k.TaskCount())
}

func TestFindTask(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))
	k.CreateTask("findme", 1, func(*Task) {})
	require.NotNil(t, k.FindTask("findme"))
	require.Nil(t, k.FindTask("nope"))
}

// TestRemoveFromReadyRewindsIteratorToPredecessor covers the mid-rotation
// removal case: ready list [y, z, x] with the round-robin cursor parked on
// z. Removing z must rewind the cursor to y (z's predecessor), not reset it
// to nil, so the next dispatch advances to x instead of restarting at the
// front and starving it of its turn.
func TestRemoveFromReadyRewindsIteratorToPredecessor(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))

	y := k.CreateTask("y", 0, func(*Task) {})
	z := k.CreateTask("z", 0, func(*Task) {})
	x := k.CreateTask("x", 0, func(*Task) {})

	k.mu.Lock()
	k.readyIter[0] = z.stateNode
	k.removeFromReadyLocked(z)
	require.Equal(t, y.stateNode, k.readyIter[0], "cursor must rewind to the removed node's predecessor")
	next := k.ready[0].NextFrom(k.readyIter[0])
	k.mu.Unlock()

	require.Equal(t, x.stateNode, next, "x must get its turn instead of being starved")
}

// TestRemoveFromReadyRewindsPastFront covers removing the list's front
// node while the cursor is parked on it: the predecessor is the list's own
// dummy node, and NextFrom on that dummy must land on the new front.
func TestRemoveFromReadyRewindsPastFront(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(4))

	y := k.CreateTask("y", 0, func(*Task) {})
	z := k.CreateTask("z", 0, func(*Task) {})

	k.mu.Lock()
	k.readyIter[0] = y.stateNode
	k.removeFromReadyLocked(y)
	next := k.ready[0].NextFrom(k.readyIter[0])
	k.mu.Unlock()

	require.Equal(t, z.stateNode, next, "removing the front node must still resume at the new front")
}

// TestCPUUtilizationWindowMatchesSourceFormula exercises
// sampleCPUWindowLocked/CPUUtilization directly against task.c's
// cpu_utilization = 100 - idle_tick/4 formula: sampling every tick for a
// full 400-tick window means the idle task ran constantly, i.e. 0% busy.
func TestCPUUtilizationWindowMatchesSourceFormula(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(2))

	k.mu.Lock()
	for tick := uint64(1); tick <= 400; tick++ {
		k.tickCount = tick
		k.sampleCPUWindowLocked()
	}
	k.mu.Unlock()

	require.Equal(t, 0, k.CPUUtilization())
}

// TestCPUUtilizationReportsBusyWhenIdleRarelySampled mirrors the same
// formula when the idle task only gets to sample a quarter of the ticks in
// the window (100 of 400), which the source's math reports as 75% busy.
func TestCPUUtilizationReportsBusyWhenIdleRarelySampled(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(2))

	k.mu.Lock()
	for tick := uint64(1); tick <= 400; tick++ {
		k.tickCount = tick
		if tick%4 == 0 {
			k.sampleCPUWindowLocked()
		}
	}
	k.mu.Unlock()

	require.Equal(t, 75, k.CPUUtilization())
}

// TestCPUUtilizationReports100WhenIdleNeverRuns covers task.c's
// os_get_cpu_utilization guard: a window that hasn't rolled over in over
// 400 ticks means the idle task has been starved, which is reported as
// fully busy rather than stale data from the last completed window.
func TestCPUUtilizationReports100WhenIdleNeverRuns(t *testing.T) {
	k := newTestKernel(t, WithMaxPriorities(2))

	k.mu.Lock()
	k.tickCount = 401
	k.mu.Unlock()

	require.Equal(t, 100, k.CPUUtilization())
}

package ipc

import (
	"testing"
	"time"

	"github.com/biaboi/Kora/sched"
	"github.com/stretchr/testify/require"
)

func TestMutexLockUnlockRoundTrip(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	m := NewMutex(k)

	done := make(chan struct{})
	k.CreateTask("t", 0, func(self *sched.Task) {
		m.Lock(self)
		require.Equal(t, self, m.Owner())
		m.Unlock(self)
		require.Nil(t, m.Owner())
		close(done)
	})
	go k.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestMutexDeleteRequiresNoOwner(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	m := NewMutex(k)

	locked := make(chan struct{})
	release := make(chan struct{})
	k.CreateTask("owner", 0, func(self *sched.Task) {
		m.Lock(self)
		close(locked)
		<-release
		m.Unlock(self)
	})
	go k.Start()

	select {
	case <-locked:
	case <-time.After(2 * time.Second):
		t.Fatal("owner never locked")
	}

	require.ErrorIs(t, m.Delete(), ErrBusy)
	close(release)
}

// TestScenarioS2MutexPriorityInheritance mirrors spec scenario S2: a
// low-priority task L locks the mutex, a mid-priority task runs a busy
// loop that would otherwise starve L, and a high-priority task H then
// attempts to lock. L must be boosted to H's priority for the duration
// of the wait, preempting the mid-priority busy loop, and restored to
// its original priority on unlock.
func TestScenarioS2MutexPriorityInheritance(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(8))
	m := NewMutex(k)

	const (
		lowPrio  = 5
		midPrio  = 3
		highPrio = 0
	)

	var lPrioDuringHold int
	lLocked := make(chan struct{})
	hWaiting := make(chan struct{})
	hDone := make(chan struct{})
	stopMid := make(chan struct{})

	var lTask *sched.Task
	k.CreateTask("L", lowPrio, func(self *sched.Task) {
		lTask = self
		m.Lock(self)
		close(lLocked)

		<-hWaiting
		time.Sleep(20 * time.Millisecond)
		// While H waits, L should have been boosted to H's priority.
		k.Lock()
		lPrioDuringHold = self.Priority
		k.Unlock()
		m.Unlock(self)
		close(stopMid)
	})

	k.CreateTask("M", midPrio, func(self *sched.Task) {
		<-lLocked
		for {
			select {
			case <-stopMid:
				return
			default:
			}
			self.Checkpoint()
		}
	})

	k.CreateTask("H", highPrio, func(self *sched.Task) {
		<-lLocked
		close(hWaiting)
		m.Lock(self)
		m.Unlock(self)
		close(hDone)
	})

	go k.Start()
	go func() {
		for {
			k.TickHandler()
			time.Sleep(time.Millisecond)
		}
	}()

	select {
	case <-hDone:
	case <-time.After(3 * time.Second):
		t.Fatal("H never completed")
	}

	require.Equal(t, highPrio, lPrioDuringHold)
	k.Lock()
	restored := lTask.Priority
	k.Unlock()
	require.Equal(t, lowPrio, restored) // restored after unlock
}

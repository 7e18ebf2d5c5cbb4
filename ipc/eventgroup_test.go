package ipc

import (
	"testing"
	"time"

	"github.com/biaboi/Kora/sched"
	"github.com/stretchr/testify/require"
)

func TestEventGroupWaitOR(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	e := NewEventGroup(k, 0)

	woke := make(chan struct{})
	k.CreateTask("waiter", 0, func(self *sched.Task) {
		require.NoError(t, e.Wait(self, 0b0010, false, EvtOR, sched.Forever))
		close(woke)
	})
	k.CreateTask("setter", 1, func(self *sched.Task) {
		time.Sleep(20 * time.Millisecond)
		e.Set(self, 0b0100)
		e.Set(self, 0b0010)
	})
	go k.Start()

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke")
	}
	require.Equal(t, uint32(0b0110), e.Bits())
}

func TestEventGroupWaitZeroTicksFailsImmediately(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	e := NewEventGroup(k, 0)

	done := make(chan error, 1)
	k.CreateTask("waiter", 0, func(self *sched.Task) {
		done <- e.Wait(self, 0b0001, false, EvtOR, 0)
	})
	go k.Start()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never ran")
	}
}

func TestEventGroupWaitInvalidBitsRejected(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	e := NewEventGroup(k, 0)

	done := make(chan error, 1)
	k.CreateTask("waiter", 0, func(self *sched.Task) {
		done <- e.Wait(self, 1<<30, false, EvtOR, 0)
	})
	go k.Start()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrInvalid)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never ran")
	}
}

func TestEventGroupDeleteBusyFails(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	e := NewEventGroup(k, 0)

	blocked := make(chan struct{})
	k.CreateTask("waiter", 0, func(self *sched.Task) {
		close(blocked)
		_ = e.Wait(self, 0b0001, false, EvtOR, sched.Forever)
	})
	go k.Start()

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never started")
	}
	time.Sleep(20 * time.Millisecond)

	require.ErrorIs(t, e.Delete(), ErrBusy)
}

// TestScenarioS5EventGroupAND mirrors spec scenario S5: a task waits
// forever for bits 0b0011 under EvtAND with clear=true. The setter
// issues set(0b0001) then set(0b0010) with a pause in between; the
// waiter must wake only once both bits are present (after the second
// set), and the group's mask is left at 0b0000 afterward.
func TestScenarioS5EventGroupAND(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	e := NewEventGroup(k, 0)

	woke := make(chan struct{})
	var wokeAfterFirstSet bool
	firstSetDone := make(chan struct{})

	k.CreateTask("waiter", 0, func(self *sched.Task) {
		err := e.Wait(self, 0b0011, true, EvtAND, sched.Forever)
		require.NoError(t, err)
		select {
		case <-firstSetDone:
		default:
			wokeAfterFirstSet = true
		}
		close(woke)
	})
	k.CreateTask("setter", 1, func(self *sched.Task) {
		time.Sleep(20 * time.Millisecond)
		e.Set(self, 0b0001)
		close(firstSetDone)
		time.Sleep(20 * time.Millisecond)
		e.Set(self, 0b0010)
	})
	go k.Start()

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke")
	}

	require.False(t, wokeAfterFirstSet, "waiter must not wake until both bits are set")
	require.Equal(t, uint32(0b0000), e.Bits())
}

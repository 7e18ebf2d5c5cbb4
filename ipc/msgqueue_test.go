package ipc

import (
	"testing"
	"time"

	"github.com/biaboi/Kora/sched"
	"github.com/stretchr/testify/require"
)

func TestMsgQueuePushFrontPop(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	q := NewMsgQueue[int](k, 2)

	done := make(chan struct{})
	k.CreateTask("t", 0, func(self *sched.Task) {
		require.NoError(t, q.Push(self, 1, sched.Forever))
		require.NoError(t, q.Push(self, 2, sched.Forever))
		require.ErrorIs(t, q.Push(self, 3, 0), ErrFull)

		item, err := q.Front(self, sched.Forever)
		require.NoError(t, err)
		require.Equal(t, 1, item)

		require.NoError(t, q.Pop(self))
		require.Equal(t, 1, q.Len())
		close(done)
	})
	go k.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestMsgQueueFrontBlocksUntilPush(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	q := NewMsgQueue[string](k, 1)

	result := make(chan string, 1)
	k.CreateTask("reader", 0, func(self *sched.Task) {
		item, err := q.Front(self, sched.Forever)
		require.NoError(t, err)
		result <- item
	})
	k.CreateTask("writer", 1, func(self *sched.Task) {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, q.Push(self, "hi", sched.Forever))
	})
	go k.Start()

	select {
	case got := <-result:
		require.Equal(t, "hi", got)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never woke")
	}
}

func TestMsgQueueWaitForPush(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	q := NewMsgQueue[int](k, 1)

	done := make(chan struct{})
	k.CreateTask("t", 0, func(self *sched.Task) {
		require.NoError(t, q.WaitForPush(self, sched.Forever))
		require.Equal(t, 0, q.Len())
		close(done)
	})
	go k.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestMsgQueueDeleteWithoutHeapFails(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	q := NewMsgQueue[int](k, 1)
	require.ErrorIs(t, q.Delete(), ErrNotOnHeap)
}

// TestScenarioS3MsgQueueOverwriteWraps mirrors spec scenario S3: a
// capacity-3 queue overwritten with 4 distinct items via Overwrite
// leaves only the last 3 — the first write is silently discarded when
// the fourth overwrite wraps the front pointer forward.
func TestScenarioS3MsgQueueOverwriteWraps(t *testing.T) {
	k := sched.New(sched.WithMaxPriorities(4))
	q := NewMsgQueue[int](k, 3)

	done := make(chan struct{})
	k.CreateTask("t", 0, func(self *sched.Task) {
		q.Overwrite(self, 1)
		q.Overwrite(self, 2)
		q.Overwrite(self, 3)
		q.Overwrite(self, 4)

		require.Equal(t, 3, q.Len())

		var got []int
		for i := 0; i < 3; i++ {
			item, err := q.Front(self, 0)
			require.NoError(t, err)
			got = append(got, item)
			require.NoError(t, q.Pop(self))
		}
		require.Equal(t, []int{2, 3, 4}, got)
		close(done)
	})
	go k.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
}

// Command korasim runs a short in-process simulation of a Kora kernel,
// exercising priority-based preemption, mutex priority inheritance, a
// message queue overwrite, an AND-predicated event group wait, and a
// stream queue buffer wrap, while logging every kernel event as
// structured JSON. The stream queue is backed by the heap and the idle
// task drains the heap's deferred frees, but no demo task deletes an
// object, so no deferred free happens during a run.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/biaboi/Kora/ipc"
	"github.com/biaboi/Kora/kheap"
	"github.com/biaboi/Kora/korlog"
	"github.com/biaboi/Kora/port"
	"github.com/biaboi/Kora/sched"
	"github.com/joeycumines/logiface"
)

func main() {
	level := flag.String("level", "info", "minimum log level: trace|debug|info|warning|error")
	duration := flag.Duration("duration", 2*time.Second, "how long to run the simulation")
	flag.Parse()

	logger := korlog.New(os.Stdout, parseLevel(*level))
	heap := kheap.New(8192, kheap.WithHooks(logger))

	k := sched.New(
		sched.WithMaxPriorities(8),
		sched.WithTickRate(1000),
		sched.WithHooks(logger),
		sched.WithHeap(heap),
	)

	sem := ipc.NewSemaphore(k, 1, 0)
	mtx := ipc.NewMutex(k)
	msgq := ipc.NewMsgQueue[int](k, 3)
	evt := ipc.NewEventGroup(k, 0)
	strq := ipc.NewStreamQueue(k, 32, ipc.WithHeap(heap))

	runPreemptionDemo(k, sem)
	runMutexInheritanceDemo(k, mtx)
	runMsgQueueOverwriteDemo(k, msgq)
	runEventGroupDemo(k, evt)
	runStreamQueueDemo(k, strq)

	go k.Start()

	p := port.NewTickerPort()
	stop := make(chan struct{})
	go p.Run(k, 1000, stop)

	time.Sleep(*duration)
	close(stop)
}

func parseLevel(s string) logiface.Level {
	switch s {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// runPreemptionDemo mirrors scenario S1: a busy-looping high-priority
// task shares the CPU with a sleeper that signals a same-priority
// waiter.
func runPreemptionDemo(k *sched.Kernel, sem *ipc.Semaphore) {
	k.CreateTask("preempt-busy", 1, func(self *sched.Task) {
		for i := 0; i < 2000; i++ {
			self.Checkpoint()
		}
	})
	k.CreateTask("preempt-signaler", 2, func(self *sched.Task) {
		k.Sleep(self, 50)
		_ = sem.Signal(self)
	})
	k.CreateTask("preempt-waiter", 2, func(self *sched.Task) {
		_ = sem.Wait(self, sched.Forever)
	})
}

// runMutexInheritanceDemo mirrors scenario S2: a low-priority holder is
// boosted to a high-priority waiter's level for the duration of the
// wait.
func runMutexInheritanceDemo(k *sched.Kernel, m *ipc.Mutex) {
	k.CreateTask("mtx-low", 5, func(self *sched.Task) {
		m.Lock(self)
		k.Sleep(self, 100)
		m.Unlock(self)
	})
	k.CreateTask("mtx-mid", 3, func(self *sched.Task) {
		for i := 0; i < 3000; i++ {
			self.Checkpoint()
		}
	})
	k.CreateTask("mtx-high", 0, func(self *sched.Task) {
		k.Sleep(self, 10)
		m.Lock(self)
		m.Unlock(self)
	})
}

// runMsgQueueOverwriteDemo mirrors scenario S3: four overwrites into a
// capacity-3 queue leave only the three most recent items.
func runMsgQueueOverwriteDemo(k *sched.Kernel, q *ipc.MsgQueue[int]) {
	k.CreateTask("msgq-writer", 4, func(self *sched.Task) {
		for i := 1; i <= 4; i++ {
			q.Overwrite(self, i)
		}
	})
}

// runEventGroupDemo mirrors scenario S5: a waiter blocks for two bits
// under AND semantics, woken only once both have been set.
func runEventGroupDemo(k *sched.Kernel, e *ipc.EventGroup) {
	k.CreateTask("evt-waiter", 4, func(self *sched.Task) {
		_ = e.Wait(self, 0b0011, true, ipc.EvtAND, sched.Forever)
	})
	k.CreateTask("evt-setter", 4, func(self *sched.Task) {
		k.Sleep(self, 20)
		e.Set(self, 0b0001)
		k.Sleep(self, 20)
		e.Set(self, 0b0010)
	})
}

// runStreamQueueDemo mirrors scenario S4: a buffer sized so that the
// third push must wrap to the start rather than fit at the tail.
func runStreamQueueDemo(k *sched.Kernel, sq *ipc.StreamQueue) {
	k.CreateTask("streamq-writer", 4, func(self *sched.Task) {
		_ = sq.Push(self, make([]byte, 10), sched.Forever)
		_ = sq.Push(self, make([]byte, 10), sched.Forever)
		_ = sq.Pop(self)
		_ = sq.Push(self, make([]byte, 8), sched.Forever)
	})
}

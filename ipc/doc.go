// Package ipc implements Kora's inter-task synchronization primitives
// — counting semaphore, priority-inheriting mutex, fixed-item message
// queue, event flag group, and variable-length stream queue — on top
// of sched.Kernel's block/wake primitives (Lock/Unlock, Block/
// BlockLocked, Ready/ReadyLocked/ReadyISR, Yield). Every blocking
// method follows the same retry-loop shape the source uses throughout
// ipc.c: check the condition under the kernel lock, block with the
// caller-supplied timeout if unmet, then recheck using the task's
// remaining sleep ticks as the next iteration's timeout — so a
// spurious wake (another waiter took the resource first) is retried
// rather than treated as success or failure.
package ipc

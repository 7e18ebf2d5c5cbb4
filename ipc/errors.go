package ipc

import "errors"

var (
	// ErrTimeout is returned by a blocking call whose deadline elapsed
	// before the awaited condition was satisfied.
	ErrTimeout = errors.New("ipc: timeout")
	// ErrFull is returned by a non-blocking or exceeded-capacity signal
	// (semaphore at max count, strict message-queue push) that cannot
	// proceed without blocking or overwriting.
	ErrFull = errors.New("ipc: full")
	// ErrEmpty is returned by a read of an object with nothing to give.
	ErrEmpty = errors.New("ipc: empty")
	// ErrBusy is returned by Delete when the object still has blocked
	// waiters (or, for a mutex, a owner).
	ErrBusy = errors.New("ipc: busy")
	// ErrNotOnHeap is returned by Delete for an object that was not
	// constructed with a backing heap (the Go analogue of the source's
	// is_heap_addr check rejecting deletion of a statically allocated
	// object): there is nothing for queue_free to release.
	ErrNotOnHeap = errors.New("ipc: not allocated on heap")
	// ErrInvalid is returned for bad arguments (e.g. a bit pattern
	// outside the 24-bit event-group range).
	ErrInvalid = errors.New("ipc: invalid argument")
)

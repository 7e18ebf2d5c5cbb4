package ipc

import "github.com/biaboi/Kora/kheap"

// config bundles construction-time options shared by every IPC object
// in this package.
type config struct {
	heap *kheap.Heap
}

// Option configures an IPC object at construction time, following the
// functional-options shape used throughout the example pack
// (eventloop.LoopOption, sched.Option).
type Option func(*config)

func resolveOptions(opts []Option) config {
	var c config
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&c)
	}
	return c
}

// WithHeap backs the object with a reservation from h: Delete will
// queue the reservation for deferred free (drained by the idle task)
// instead of failing with ErrNotOnHeap. Matches the source's
// malloc/queue_free lifecycle for heap-created IPC objects, as opposed
// to statically declared ones.
func WithHeap(h *kheap.Heap) Option {
	return func(c *config) { c.heap = h }
}

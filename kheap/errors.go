package kheap

import "errors"

var (
	// ErrOutOfMemory is returned by Alloc/Calloc when no free block big
	// enough exists, or the requested size is invalid.
	ErrOutOfMemory = errors.New("kheap: out of memory")
)

// CorruptionError is raised (via panic) when Free observes a header
// whose magic word doesn't match. Treating this as fatal rather than a
// silent best-effort hook call is a deliberate choice: a corrupted
// free list poisons every future allocation, so surfacing it loudly
// and immediately beats papering over it.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string { return "kheap: corruption detected: " + e.Reason }

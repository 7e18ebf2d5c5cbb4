// Package klist implements the intrusive doubly-linked list used
// throughout the kernel: ready lists, the sleep list, and every IPC
// block list are built on it.
package klist

// Node is a single link in a List. The zero value is a detached node.
// Handle carries whatever payload the owner needs reachable from the
// node (a *Task, a waiter record, ...) without resorting to pointer
// arithmetic the way the original C intrusive list did.
type Node[T any] struct {
	Handle T
	// Value is an opaque ordering/encoding key. The sleep list uses it
	// for the absolute wake deadline; event-group waiters use it for
	// the AND/OR + bitmask predicate encoding.
	Value uint32

	prev, next *Node[T]
	owner      *List[T]
}

// Linked reports whether the node is currently attached to a list.
func (n *Node[T]) Linked() bool {
	return n.owner != nil
}

// List is a dummy-headed circular doubly-linked list with a length
// counter.
type List[T any] struct {
	dummy Node[T]
	len   int
}

// New returns an empty, ready-to-use list.
func New[T any]() *List[T] {
	l := &List[T]{}
	l.dummy.next = &l.dummy
	l.dummy.prev = &l.dummy
	return l
}

// Init resets l to the empty state. Useful for embedding a List by
// value (e.g. inside a fixed-size array of ready lists) the way the
// source's ready[CFG_MAX_PRIOS] array does.
func (l *List[T]) Init() {
	l.dummy.next = &l.dummy
	l.dummy.prev = &l.dummy
	l.len = 0
}

// Len returns the number of linked nodes.
func (l *List[T]) Len() int { return l.len }

// Empty reports whether the list has no linked nodes.
func (l *List[T]) Empty() bool { return l.len == 0 }

// Front returns the first linked node, or nil if empty.
func (l *List[T]) Front() *Node[T] {
	if l.len == 0 {
		return nil
	}
	return l.dummy.next
}

// InsertBack appends n at the tail (FIFO insert). n must be detached.
func (l *List[T]) InsertBack(n *Node[T]) {
	if n.owner != nil {
		panic("klist: node already linked")
	}
	last := l.dummy.prev
	n.prev = last
	n.next = &l.dummy
	last.next = n
	l.dummy.prev = n
	n.owner = l
	l.len++
}

// InsertSorted inserts n in ascending order by n.Value, used by the
// sleep list so its head is always the earliest deadline. n must be
// detached.
func (l *List[T]) InsertSorted(n *Node[T]) {
	if n.owner != nil {
		panic("klist: node already linked")
	}
	cur := l.dummy.next
	for cur != &l.dummy && cur.Value <= n.Value {
		cur = cur.next
	}
	n.prev = cur.prev
	n.next = cur
	cur.prev.next = n
	cur.prev = n
	n.owner = l
	l.len++
}

// Remove detaches n from whichever list it belongs to. It tolerates an
// already-detached node (no-op). It returns the node's former
// predecessor within its list, which is the correct rewind target for
// a round-robin iterator that may have been pointing at n.
func Remove[T any](n *Node[T]) *Node[T] {
	if n.owner == nil {
		return nil
	}
	prev := n.prev
	n.prev.next = n.next
	n.next.prev = n.prev
	n.owner.len--
	n.owner = nil
	n.prev = nil
	n.next = nil
	return prev
}

// NextFrom returns cur's successor within l, wrapping past the dummy
// sentinel back to the front, so repeated calls cycle through the list
// without end. It returns nil if l is empty or cur is detached. Used by
// round-robin iteration: pass the current cursor and advance.
func (l *List[T]) NextFrom(cur *Node[T]) *Node[T] {
	if l.len == 0 {
		return nil
	}
	n := cur.next
	if n == &l.dummy {
		n = n.next
	}
	return n
}

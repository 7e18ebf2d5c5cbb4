// Package bytebuf implements the segmented circular byte buffer that
// backs the stream queue: a byte-addressable ring holding
// length-prefixed variable-length records, with a 0xFFFF sentinel
// marking "wrap to the start of the buffer".
package bytebuf

import "encoding/binary"

// wrapSentinel is written in place of a record's length prefix when
// the record continues at the start of the buffer.
const wrapSentinel = 0xFFFF

// headerSize is the 2-byte length prefix preceding every record.
const headerSize = 2

// Buffer is a fixed-size circular byte buffer of variable-length,
// length-prefixed records.
type Buffer struct {
	buf         []byte
	front, rear int
	count       int
}

// New returns a buffer backed by a region of the given size.
func New(size int) *Buffer {
	if size <= headerSize {
		panic("bytebuf: size too small")
	}
	return &Buffer{buf: make([]byte, size)}
}

// Len returns the number of records currently stored.
func (b *Buffer) Len() int { return b.count }

func (b *Buffer) tailSpace() int {
	if b.front > b.rear {
		return b.front - b.rear
	}
	return len(b.buf) - b.rear
}

// FreeSpace returns the number of bytes currently available, following
// the source's count==0 special case (an empty buffer reports its
// full size free, even though front==rear in that state).
func (b *Buffer) FreeSpace() int {
	if b.count == 0 {
		return len(b.buf)
	}
	if b.front > b.rear {
		return b.front - b.rear
	}
	return len(b.buf) - (b.rear - b.front)
}

// Push writes a record. It requires len(data)+2 contiguous bytes,
// either at the tail or, failing that, wrapped to the buffer's start
// (which additionally requires front > len(data)+2, i.e. the head
// room must be strictly greater than the record-plus-header size).
func (b *Buffer) Push(data []byte) error {
	total := len(data) + headerSize
	if total > b.FreeSpace() {
		return ErrNoSpace
	}

	if b.tailSpace() >= total {
		binary.LittleEndian.PutUint16(b.buf[b.rear:], uint16(len(data)))
		b.rear += headerSize
		copy(b.buf[b.rear:], data)
		b.rear += len(data)
	} else {
		if b.front <= total {
			return ErrNoSpace
		}
		binary.LittleEndian.PutUint16(b.buf[b.rear:], wrapSentinel)
		b.rear = 0
		binary.LittleEndian.PutUint16(b.buf[b.rear:], uint16(len(data)))
		b.rear += headerSize
		copy(b.buf[b.rear:], data)
		b.rear += len(data)
	}

	b.count++
	return nil
}

// followSentinel relocates front to the buffer start if the record
// length prefix at the current front is the wrap sentinel, returning
// the resolved record length. This mutates b.front even when called
// from a read-only accessor (Front/FrontPointer), matching the
// source's byte_buffer_front/byte_buffer_front_pointer behavior
// exactly: following the sentinel is not deferred to Pop.
func (b *Buffer) followSentinel() uint16 {
	l := binary.LittleEndian.Uint16(b.buf[b.front:])
	if l == wrapSentinel {
		b.front = 0
		l = binary.LittleEndian.Uint16(b.buf[b.front:])
	}
	return l
}

// Front copies the record at the front of the buffer into a freshly
// allocated slice, without removing it. It returns ErrEmpty if the
// buffer holds no records.
func (b *Buffer) Front() ([]byte, error) {
	if b.count == 0 {
		return nil, ErrEmpty
	}
	l := b.followSentinel()
	out := make([]byte, l)
	copy(out, b.buf[b.front+headerSize:b.front+headerSize+int(l)])
	return out, nil
}

// FrontPointer returns a zero-copy view of the record at the front of
// the buffer. The returned slice aliases the buffer's internal storage
// and is invalidated by the next Pop.
func (b *Buffer) FrontPointer() ([]byte, error) {
	if b.count == 0 {
		return nil, ErrEmpty
	}
	l := b.followSentinel()
	return b.buf[b.front+headerSize : b.front+headerSize+int(l)], nil
}

// Pop removes the record at the front of the buffer.
func (b *Buffer) Pop() error {
	if b.count == 0 {
		return ErrEmpty
	}
	l := b.followSentinel()
	b.front += headerSize + int(l)
	b.count--
	return nil
}

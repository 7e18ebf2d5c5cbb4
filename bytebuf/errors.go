package bytebuf

import "errors"

var (
	// ErrEmpty is returned by Front/FrontPointer/Pop when the buffer
	// holds no records.
	ErrEmpty = errors.New("bytebuf: empty")
	// ErrNoSpace is returned by Push when neither the tail nor the
	// wrapped head segment has room for the record.
	ErrNoSpace = errors.New("bytebuf: no space")
)

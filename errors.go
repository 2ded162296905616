package ringdb

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors making up the failure taxonomy of the CRUD surface.
// Codec errors (ErrCorruptKey, ErrSchemaMismatch) are fatal and never retried;
// forwarding errors are recoverable per ring but fatal once the chain is
// exhausted.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrIDOutOfRange   = errors.New("id out of range")
	ErrReadOnly       = errors.New("ring is read-only")
	ErrNoWritableRing = errors.New("no writable ring")
	ErrCorruptKey     = errors.New("corrupt key")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// RingError attaches ring and sequence context to a storage or forwarding
// failure.
type RingError struct {
	Ring string
	Seq  string
	ID   uint64
	Msg  string
	Err  error
}

func ringErrf(ring, seq string, id uint64, err error, format string, args ...any) error {
	return &RingError{ring, seq, id, fmt.Sprintf(format, args...), err}
}

func (e *RingError) Unwrap() error {
	return e.Err
}

func (e *RingError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Ring)
	if e.Seq != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Seq)
	}
	fmt.Fprintf(&buf, "/%d", e.ID)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

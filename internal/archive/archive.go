// Package archive implements a direction-tagged serializer.
//
// A composite type writes a single Serialize(Archive) method. Handed a writer
// backend it encodes; handed a reader backend the very same calls decode into
// the value. Read and write therefore cannot drift apart.
//
// Errors are sticky: after the first failure every further call is a no-op and
// Err reports the original cause.
package archive

import (
	"errors"
	"fmt"
)

// Limits applied while decoding untrusted input.
const (
	MaxSequenceLength = 1 << 22
	MaxStringLength   = 1 << 20
)

var (
	// ErrEndOfStream is reported when data ends before a value is complete.
	// It means short or corrupt input, never a device failure.
	ErrEndOfStream = errors.New("archive: end of stream")

	// ErrTooLarge is reported when a decoded length prefix exceeds the limits.
	ErrTooLarge = errors.New("archive: length prefix exceeds limit")

	// ErrUnsupported is reported by backends that cannot perform an operation
	// (the debug writer cannot seek).
	ErrUnsupported = errors.New("archive: operation not supported by backend")

	// ErrInvalidSeek is reported when seeking outside the written range.
	ErrInvalidSeek = errors.New("archive: invalid seek position")

	// ErrWrongDirection is reported when Encode is handed a reader or Decode
	// a writer.
	ErrWrongDirection = errors.New("archive: wrong direction")
)

// IOError wraps a failure reported by the underlying device.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("archive: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Archive is the direction-polymorphic primitive set. Every method takes a
// pointer: writers read the pointee, readers store into it.
type Archive interface {
	// Reading reports whether this archive decodes (true) or encodes (false).
	Reading() bool

	Byte(v *uint8)
	Bool(v *bool)
	Uint32(v *uint32)
	Float32(v *float32)
	// String is length-prefixed with a uint32.
	String(v *string)
	// Bytes transfers exactly len(p) bytes without a length prefix.
	Bytes(p []byte)

	// Tell returns the current position in backend units (bytes or bits).
	Tell() int64
	// Seek moves to a position previously returned by Tell.
	Seek(pos int64)

	// Err returns the first error encountered.
	Err() error
	// Fail records err unless an error is already recorded.
	Fail(err error)
}

// Serializable is implemented by every composite type that can travel through
// an Archive.
type Serializable interface {
	Serialize(a Archive)
}

// Encode writes v into a writing archive and returns the archive's error.
func Encode(a Archive, v Serializable) error {
	if a.Reading() {
		a.Fail(fmt.Errorf("%w: encode into a reader", ErrWrongDirection))
		return a.Err()
	}
	v.Serialize(a)
	return a.Err()
}

// Decode fills v from a reading archive and returns the archive's error.
func Decode(a Archive, v Serializable) error {
	if !a.Reading() {
		a.Fail(fmt.Errorf("%w: decode from a writer", ErrWrongDirection))
		return a.Err()
	}
	v.Serialize(a)
	return a.Err()
}

// Sequence serializes a slice as its element count followed by each element.
// On read the slice is resized to the decoded count.
func Sequence[T any, PT interface {
	*T
	Serializable
}](a Archive, s *[]T) {
	n := uint32(len(*s))
	a.Uint32(&n)
	if a.Err() != nil {
		return
	}
	if a.Reading() {
		if n > MaxSequenceLength {
			a.Fail(fmt.Errorf("%w: sequence of %d", ErrTooLarge, n))
			return
		}
		*s = make([]T, n)
	}
	for i := range *s {
		PT(&(*s)[i]).Serialize(a)
		if a.Err() != nil {
			return
		}
	}
}

// Blob serializes a variable-length byte slice as count followed by bytes.
func Blob(a Archive, b *[]byte) {
	n := uint32(len(*b))
	a.Uint32(&n)
	if a.Err() != nil {
		return
	}
	if a.Reading() {
		if n > MaxSequenceLength {
			a.Fail(fmt.Errorf("%w: blob of %d", ErrTooLarge, n))
			return
		}
		*b = make([]byte, n)
	}
	a.Bytes(*b)
}

// Int32 serializes a signed integer through its uint32 bit pattern.
func Int32(a Archive, v *int32) {
	u := uint32(*v)
	a.Uint32(&u)
	if a.Reading() && a.Err() == nil {
		*v = int32(u)
	}
}

// errState carries the sticky error shared by every backend.
type errState struct {
	err error
}

func (s *errState) Err() error { return s.err }

func (s *errState) Fail(err error) {
	if s.err == nil && err != nil {
		s.err = err
	}
}

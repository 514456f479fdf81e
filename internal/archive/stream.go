package archive

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// StreamWriter encodes little-endian values into a seekable byte stream,
// normally an *os.File.
type StreamWriter struct {
	errState
	w   io.WriteSeeker
	buf [4]byte
}

// NewStreamWriter returns a writing archive over w.
func NewStreamWriter(w io.WriteSeeker) *StreamWriter {
	return &StreamWriter{w: w}
}

func (s *StreamWriter) Reading() bool { return false }

func (s *StreamWriter) write(p []byte) {
	if s.err != nil {
		return
	}
	if _, err := s.w.Write(p); err != nil {
		s.Fail(&IOError{Op: "write", Err: err})
	}
}

func (s *StreamWriter) Byte(v *uint8) {
	s.buf[0] = *v
	s.write(s.buf[:1])
}

func (s *StreamWriter) Bool(v *bool) {
	s.buf[0] = 0
	if *v {
		s.buf[0] = 1
	}
	s.write(s.buf[:1])
}

func (s *StreamWriter) Uint32(v *uint32) {
	binary.LittleEndian.PutUint32(s.buf[:], *v)
	s.write(s.buf[:])
}

func (s *StreamWriter) Float32(v *float32) {
	binary.LittleEndian.PutUint32(s.buf[:], math.Float32bits(*v))
	s.write(s.buf[:])
}

func (s *StreamWriter) String(v *string) {
	n := uint32(len(*v))
	s.Uint32(&n)
	s.write([]byte(*v))
}

func (s *StreamWriter) Bytes(p []byte) { s.write(p) }

func (s *StreamWriter) Tell() int64 {
	if s.err != nil {
		return 0
	}
	pos, err := s.w.Seek(0, io.SeekCurrent)
	if err != nil {
		s.Fail(&IOError{Op: "tell", Err: err})
	}
	return pos
}

func (s *StreamWriter) Seek(pos int64) {
	if s.err != nil {
		return
	}
	if pos < 0 {
		s.Fail(ErrInvalidSeek)
		return
	}
	if _, err := s.w.Seek(pos, io.SeekStart); err != nil {
		s.Fail(&IOError{Op: "seek", Err: err})
	}
}

// StreamReader decodes values written by StreamWriter.
type StreamReader struct {
	errState
	r   io.ReadSeeker
	buf [4]byte
}

// NewStreamReader returns a reading archive over r.
func NewStreamReader(r io.ReadSeeker) *StreamReader {
	return &StreamReader{r: r}
}

func (s *StreamReader) Reading() bool { return true }

func (s *StreamReader) read(p []byte) bool {
	if s.err != nil {
		return false
	}
	if _, err := io.ReadFull(s.r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.Fail(ErrEndOfStream)
		} else {
			s.Fail(&IOError{Op: "read", Err: err})
		}
		return false
	}
	return true
}

func (s *StreamReader) Byte(v *uint8) {
	if s.read(s.buf[:1]) {
		*v = s.buf[0]
	}
}

func (s *StreamReader) Bool(v *bool) {
	if s.read(s.buf[:1]) {
		*v = s.buf[0] != 0
	}
}

func (s *StreamReader) Uint32(v *uint32) {
	if s.read(s.buf[:]) {
		*v = binary.LittleEndian.Uint32(s.buf[:])
	}
}

func (s *StreamReader) Float32(v *float32) {
	if s.read(s.buf[:]) {
		*v = math.Float32frombits(binary.LittleEndian.Uint32(s.buf[:]))
	}
}

func (s *StreamReader) String(v *string) {
	var n uint32
	s.Uint32(&n)
	if s.err != nil {
		return
	}
	if n > MaxStringLength {
		s.Fail(ErrTooLarge)
		return
	}
	p := make([]byte, n)
	if s.read(p) {
		*v = string(p)
	}
}

func (s *StreamReader) Bytes(p []byte) { s.read(p) }

func (s *StreamReader) Tell() int64 {
	if s.err != nil {
		return 0
	}
	pos, err := s.r.Seek(0, io.SeekCurrent)
	if err != nil {
		s.Fail(&IOError{Op: "tell", Err: err})
	}
	return pos
}

func (s *StreamReader) Seek(pos int64) {
	if s.err != nil {
		return
	}
	if pos < 0 {
		s.Fail(ErrInvalidSeek)
		return
	}
	if _, err := s.r.Seek(pos, io.SeekStart); err != nil {
		s.Fail(&IOError{Op: "seek", Err: err})
	}
}

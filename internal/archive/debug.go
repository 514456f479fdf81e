package archive

import (
	"fmt"
	"io"
	"strings"
)

// DebugWriter renders every primitive as one human-readable line. It is
// write-only and cannot seek, so placeholders written to it stay unpatched.
type DebugWriter struct {
	errState
	w       io.Writer
	written int64
}

// NewDebugWriter returns a text archive writing to w.
func NewDebugWriter(w io.Writer) *DebugWriter {
	return &DebugWriter{w: w}
}

func (d *DebugWriter) Reading() bool { return false }

func (d *DebugWriter) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	n, err := fmt.Fprintf(d.w, format, args...)
	d.written += int64(n)
	if err != nil {
		d.Fail(&IOError{Op: "write", Err: err})
	}
}

func (d *DebugWriter) Byte(v *uint8)      { d.printf("byte: %d\n", *v) }
func (d *DebugWriter) Bool(v *bool)       { d.printf("bool: %t\n", *v) }
func (d *DebugWriter) Uint32(v *uint32)   { d.printf("uint: %d\n", *v) }
func (d *DebugWriter) Float32(v *float32) { d.printf("float: %g\n", *v) }
func (d *DebugWriter) String(v *string)   { d.printf("string: %q\n", *v) }

func (d *DebugWriter) Bytes(p []byte) {
	if len(p) == 0 {
		d.printf("bytes: -\n")
		return
	}
	var sb strings.Builder
	for i, c := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	d.printf("bytes: %s\n", sb.String())
}

// Tell returns the number of text bytes written so far.
func (d *DebugWriter) Tell() int64 { return d.written }

func (d *DebugWriter) Seek(pos int64) {
	d.Fail(ErrUnsupported)
}

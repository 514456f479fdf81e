package archive

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type item struct {
	ID   uint32
	Name string
}

func (it *item) Serialize(a Archive) {
	a.Uint32(&it.ID)
	a.String(&it.Name)
}

type sample struct {
	B     uint8
	F     bool
	G     bool
	U     uint32
	X     float32
	S     string
	Fixed [4]byte
	Items []item
	Raw   []byte
}

func (s *sample) Serialize(a Archive) {
	a.Byte(&s.B)
	a.Bool(&s.F)
	a.Bool(&s.G)
	a.Uint32(&s.U)
	a.Float32(&s.X)
	a.String(&s.S)
	a.Bytes(s.Fixed[:])
	Sequence(a, &s.Items)
	Blob(a, &s.Raw)
}

func newSample() sample {
	return sample{
		B:     0xAB,
		F:     true,
		G:     false,
		U:     0xDEADBEEF,
		X:     -123.456,
		S:     "blob ❤ volley",
		Fixed: [4]byte{1, 2, 3, 4},
		Items: []item{{ID: 1, Name: "left"}, {ID: 2, Name: ""}, {ID: 3, Name: "right"}},
		Raw:   []byte{0x80, 0x00, 0xFF},
	}
}

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "archive.bin"))
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestRoundTripBackends(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, in *sample) sample
	}{
		{
			name: "file",
			run: func(t *testing.T, in *sample) sample {
				f := tempFile(t)
				w := NewStreamWriter(f)
				in.Serialize(w)
				if err := w.Err(); err != nil {
					t.Fatalf("write: %v", err)
				}
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					t.Fatal(err)
				}
				var out sample
				r := NewStreamReader(f)
				out.Serialize(r)
				if err := r.Err(); err != nil {
					t.Fatalf("read: %v", err)
				}
				return out
			},
		},
		{
			name: "bitstream",
			run: func(t *testing.T, in *sample) sample {
				w := NewBitWriter()
				in.Serialize(w)
				if err := w.Err(); err != nil {
					t.Fatalf("write: %v", err)
				}
				var out sample
				r := NewBitReader(w.Data())
				out.Serialize(r)
				if err := r.Err(); err != nil {
					t.Fatalf("read: %v", err)
				}
				return out
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newSample()
			out := tt.run(t, &in)
			if !reflect.DeepEqual(in, out) {
				t.Errorf("Expected %+v, got %+v", in, out)
			}
		})
	}
}

func TestFloatBitPatternsSurvive(t *testing.T) {
	values := []float32{0, float32(math.Copysign(0, -1)), math.SmallestNonzeroFloat32, math.MaxFloat32, -0.1, float32(math.Inf(1))}
	w := NewBitWriter()
	for i := range values {
		w.Float32(&values[i])
	}
	r := NewBitReader(w.Data())
	for i, want := range values {
		var got float32
		r.Float32(&got)
		if math.Float32bits(got) != math.Float32bits(want) {
			t.Errorf("value %d: expected bits %08x, got %08x", i, math.Float32bits(want), math.Float32bits(got))
		}
	}
}

func TestBitStreamPacksBooleans(t *testing.T) {
	w := NewBitWriter()
	for i := 0; i < 8; i++ {
		v := i%2 == 0
		w.Bool(&v)
	}
	if got := len(w.Data()); got != 1 {
		t.Fatalf("Expected 8 booleans in 1 byte, got %d bytes", got)
	}
	if w.Data()[0] != 0xAA {
		t.Errorf("Expected 0xAA, got %#x", w.Data()[0])
	}
}

// writePatched writes a placeholder count, the payload, then patches the count.
func writePatched(a Archive, words []uint32) {
	var placeholder uint32
	mark := a.Tell()
	a.Uint32(&placeholder)
	for i := range words {
		a.Uint32(&words[i])
	}
	end := a.Tell()
	n := uint32(len(words))
	a.Seek(mark)
	a.Uint32(&n)
	a.Seek(end)
}

func TestTellSeekPatchesPlaceholder(t *testing.T) {
	words := []uint32{7, 8, 9}

	t.Run("bitstream", func(t *testing.T) {
		w := NewBitWriter()
		writePatched(w, words)
		if err := w.Err(); err != nil {
			t.Fatal(err)
		}
		r := NewBitReader(w.Data())
		var n uint32
		r.Uint32(&n)
		if n != 3 {
			t.Errorf("Expected patched count 3, got %d", n)
		}
		if w.Len() != 4*32 {
			t.Errorf("Expected 128 bits written, got %d", w.Len())
		}
	})

	t.Run("file", func(t *testing.T) {
		f := tempFile(t)
		w := NewStreamWriter(f)
		writePatched(w, words)
		if err := w.Err(); err != nil {
			t.Fatal(err)
		}
		f.Seek(0, io.SeekStart)
		r := NewStreamReader(f)
		var n, last uint32
		r.Uint32(&n)
		r.Seek(12)
		r.Uint32(&last)
		if n != 3 || last != 9 {
			t.Errorf("Expected (3, 9), got (%d, %d)", n, last)
		}
	})
}

func TestTruncationIsEndOfStream(t *testing.T) {
	in := newSample()
	w := NewBitWriter()
	in.Serialize(w)
	data := w.Data()

	for _, cut := range []int{0, 1, 5, len(data) / 2, len(data) - 2} {
		var out sample
		r := NewBitReader(data[:cut])
		out.Serialize(r)
		if !errors.Is(r.Err(), ErrEndOfStream) {
			t.Errorf("cut %d: expected ErrEndOfStream, got %v", cut, r.Err())
		}
	}

	var out sample
	sr := NewStreamReader(bytes.NewReader([]byte{1, 2}))
	out.Serialize(sr)
	if !errors.Is(sr.Err(), ErrEndOfStream) {
		t.Errorf("stream: expected ErrEndOfStream, got %v", sr.Err())
	}
}

type brokenDevice struct{}

func (brokenDevice) Write(p []byte) (int, error)                  { return 0, errors.New("disk on fire") }
func (brokenDevice) Read(p []byte) (int, error)                   { return 0, errors.New("bad sector") }
func (brokenDevice) Seek(offset int64, whence int) (int64, error) { return 0, nil }

func TestDeviceErrorIsNotEndOfStream(t *testing.T) {
	var v uint32 = 1
	w := NewStreamWriter(brokenDevice{})
	w.Uint32(&v)
	var ioErr *IOError
	if !errors.As(w.Err(), &ioErr) || ioErr.Op != "write" {
		t.Fatalf("Expected write IOError, got %v", w.Err())
	}

	r := NewStreamReader(brokenDevice{})
	r.Uint32(&v)
	if errors.Is(r.Err(), ErrEndOfStream) {
		t.Error("device failure must not look like end of stream")
	}
	if !errors.As(r.Err(), &ioErr) {
		t.Errorf("Expected IOError, got %v", r.Err())
	}
}

func TestSequenceRejectsHugeCount(t *testing.T) {
	w := NewBitWriter()
	n := uint32(MaxSequenceLength + 1)
	w.Uint32(&n)

	var items []item
	r := NewBitReader(w.Data())
	Sequence(r, &items)
	if !errors.Is(r.Err(), ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", r.Err())
	}
}

func TestDebugWriter(t *testing.T) {
	var sb strings.Builder
	d := NewDebugWriter(&sb)
	in := newSample()
	in.Serialize(d)
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}

	out := sb.String()
	for _, want := range []string{"byte: 171", "bool: true", "uint: 3735928559", `string: "left"`, "bytes: 01 02 03 04"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug output missing %q:\n%s", want, out)
		}
	}
	if d.Tell() != int64(len(out)) {
		t.Errorf("Expected Tell %d, got %d", len(out), d.Tell())
	}

	d.Seek(0)
	if !errors.Is(d.Err(), ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", d.Err())
	}
}

func TestErrorsAreSticky(t *testing.T) {
	r := NewBitReader([]byte{0xFF})
	var v uint32
	r.Uint32(&v)
	first := r.Err()
	var b uint8
	r.Seek(0)
	r.Byte(&b)
	if r.Err() != first || b != 0 {
		t.Errorf("Expected sticky %v and untouched byte, got %v and %d", first, r.Err(), b)
	}
}

func TestWrongDirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()

	tests := []struct {
		name string
		run  func() error
	}{
		{"decode from bit writer", func() error { return Decode(NewBitWriter(), &item{}) }},
		{"decode from stream writer", func() error { return Decode(NewStreamWriter(f), &item{}) }},
		{"decode from debug writer", func() error { return Decode(NewDebugWriter(io.Discard), &item{}) }},
		{"encode into bit reader", func() error { return Encode(NewBitReader([]byte{1, 2, 3, 4}), &item{ID: 1}) }},
		{"encode into stream reader", func() error { return Encode(NewStreamReader(bytes.NewReader(nil)), &item{ID: 1}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrWrongDirection) {
				t.Errorf("Expected ErrWrongDirection, got %v", err)
			}
		})
	}
}

func TestEncodeDecodeHelpers(t *testing.T) {
	w := NewBitWriter()
	in := item{ID: 42, Name: "blob"}
	if err := Encode(w, &in); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out item
	if err := Decode(NewBitReader(w.Data()), &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out != in {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
}

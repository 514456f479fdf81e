package archive

import "math"

// BitWriter packs values MSB-first into a growable bit buffer. Booleans take
// a single bit; nothing is byte aligned. Positions are in bits.
type BitWriter struct {
	errState
	buf []byte
	pos int64
	end int64
}

// NewBitWriter returns an empty network bit-stream writer.
func NewBitWriter() *BitWriter {
	return &BitWriter{buf: make([]byte, 0, 64)}
}

// Data returns the encoded stream padded with zero bits to a whole byte.
func (b *BitWriter) Data() []byte {
	return b.buf[:(b.end+7)/8]
}

// Len returns the number of bits written.
func (b *BitWriter) Len() int64 { return b.end }

func (b *BitWriter) Reading() bool { return false }

func (b *BitWriter) writeBits(v uint64, n int) {
	if b.err != nil {
		return
	}
	for i := n - 1; i >= 0; i-- {
		byteIdx := b.pos / 8
		for int64(len(b.buf)) <= byteIdx {
			b.buf = append(b.buf, 0)
		}
		mask := byte(0x80) >> uint(b.pos%8)
		if v&(1<<uint(i)) != 0 {
			b.buf[byteIdx] |= mask
		} else {
			b.buf[byteIdx] &^= mask
		}
		b.pos++
	}
	if b.pos > b.end {
		b.end = b.pos
	}
}

func (b *BitWriter) Byte(v *uint8) { b.writeBits(uint64(*v), 8) }

func (b *BitWriter) Bool(v *bool) {
	var bit uint64
	if *v {
		bit = 1
	}
	b.writeBits(bit, 1)
}

func (b *BitWriter) Uint32(v *uint32) { b.writeBits(uint64(*v), 32) }

func (b *BitWriter) Float32(v *float32) { b.writeBits(uint64(math.Float32bits(*v)), 32) }

func (b *BitWriter) String(v *string) {
	n := uint32(len(*v))
	b.Uint32(&n)
	for i := 0; i < len(*v); i++ {
		b.writeBits(uint64((*v)[i]), 8)
	}
}

func (b *BitWriter) Bytes(p []byte) {
	for _, c := range p {
		b.writeBits(uint64(c), 8)
	}
}

// Uint16 writes a 16-bit value. It is not part of Archive; the quantized
// wire form is the only user.
func (b *BitWriter) Uint16(v uint16) { b.writeBits(uint64(v), 16) }

func (b *BitWriter) Tell() int64 { return b.pos }

func (b *BitWriter) Seek(pos int64) {
	if b.err != nil {
		return
	}
	if pos < 0 || pos > b.end {
		b.Fail(ErrInvalidSeek)
		return
	}
	b.pos = pos
}

// BitReader decodes a stream produced by BitWriter.
type BitReader struct {
	errState
	data []byte
	pos  int64
	size int64
}

// NewBitReader returns a reading archive over data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data, size: int64(len(data)) * 8}
}

func (b *BitReader) Reading() bool { return true }

// Remaining returns the number of unread bits, padding included.
func (b *BitReader) Remaining() int64 { return b.size - b.pos }

func (b *BitReader) readBits(n int) uint64 {
	if b.err != nil {
		return 0
	}
	if b.pos+int64(n) > b.size {
		b.Fail(ErrEndOfStream)
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit := b.data[b.pos/8] & (byte(0x80) >> uint(b.pos%8))
		v <<= 1
		if bit != 0 {
			v |= 1
		}
		b.pos++
	}
	return v
}

func (b *BitReader) Byte(v *uint8) {
	x := b.readBits(8)
	if b.err == nil {
		*v = uint8(x)
	}
}

func (b *BitReader) Bool(v *bool) {
	x := b.readBits(1)
	if b.err == nil {
		*v = x == 1
	}
}

func (b *BitReader) Uint32(v *uint32) {
	x := b.readBits(32)
	if b.err == nil {
		*v = uint32(x)
	}
}

func (b *BitReader) Float32(v *float32) {
	x := b.readBits(32)
	if b.err == nil {
		*v = math.Float32frombits(uint32(x))
	}
}

func (b *BitReader) String(v *string) {
	var n uint32
	b.Uint32(&n)
	if b.err != nil {
		return
	}
	if n > MaxStringLength {
		b.Fail(ErrTooLarge)
		return
	}
	p := make([]byte, n)
	b.Bytes(p)
	if b.err == nil {
		*v = string(p)
	}
}

func (b *BitReader) Bytes(p []byte) {
	for i := range p {
		x := b.readBits(8)
		if b.err != nil {
			return
		}
		p[i] = byte(x)
	}
}

// Uint16 reads a 16-bit value written by BitWriter.Uint16.
func (b *BitReader) Uint16() uint16 {
	return uint16(b.readBits(16))
}

func (b *BitReader) Tell() int64 { return b.pos }

func (b *BitReader) Seek(pos int64) {
	if b.err != nil {
		return
	}
	if pos < 0 || pos > b.size {
		b.Fail(ErrInvalidSeek)
		return
	}
	b.pos = pos
}

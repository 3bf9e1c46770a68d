package decoders

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrShortBuffer is returned when a field read would run past the end of the buffer.
	ErrShortBuffer = errors.New("insufficient data")
	// ErrBitWidth is returned for bit spans outside 1..32 bits or with a negative start.
	ErrBitWidth = errors.New("invalid bit span")
)

func need(b []byte, off, n int) error {
	if off < 0 || n < 0 || off+n > len(b) {
		return errors.Wrapf(ErrShortBuffer, "read %d bytes at offset %d, have %d", n, off, len(b))
	}
	return nil
}

// Uint8 reads one unsigned byte at off.
func Uint8(b []byte, off int) (uint8, error) {
	if err := need(b, off, 1); err != nil {
		return 0, err
	}
	return b[off], nil
}

// Int8 reads one two's-complement byte at off.
func Int8(b []byte, off int) (int8, error) {
	v, err := Uint8(b, off)
	return int8(v), err
}

func Uint16(b []byte, off int, order binary.ByteOrder) (uint16, error) {
	if err := need(b, off, 2); err != nil {
		return 0, err
	}
	return order.Uint16(b[off:]), nil
}

func Int16(b []byte, off int, order binary.ByteOrder) (int16, error) {
	v, err := Uint16(b, off, order)
	return int16(v), err
}

func Uint32(b []byte, off int, order binary.ByteOrder) (uint32, error) {
	if err := need(b, off, 4); err != nil {
		return 0, err
	}
	return order.Uint32(b[off:]), nil
}

// BitsLE extracts width bits starting at bit start, treating b as a little-endian
// bit stream: bit 0 is the least significant bit of b[0], bit 8 the least
// significant bit of b[1], and so on. A span may cross any number of bytes; the
// bits taken from a higher byte land above those taken from the lower one.
func BitsLE(b []byte, start, width int) (uint32, error) {
	if start < 0 || width < 1 || width > 32 {
		return 0, errors.Wrapf(ErrBitWidth, "start=%d width=%d", start, width)
	}
	first, last := start/8, (start+width-1)/8
	if err := need(b, first, last-first+1); err != nil {
		return 0, err
	}
	var v uint64
	for i := last; i >= first; i-- {
		v = v<<8 | uint64(b[i])
	}
	v >>= uint(start % 8)
	return uint32(v & (1<<uint(width) - 1)), nil
}

// Hex renders b[from:to] as hexadecimal.
func Hex(b []byte, from, to int, upper bool) (string, error) {
	if err := need(b, from, to-from); err != nil {
		return "", err
	}
	s := hex.EncodeToString(b[from:to])
	if upper {
		s = strings.ToUpper(s)
	}
	return s, nil
}

// SignExtend interprets the low width bits of v as a two's-complement number.
func SignExtend(v uint32, width int) int32 {
	if v >= 1<<uint(width-1) {
		return int32(int64(v) - 1<<uint(width))
	}
	return int32(v)
}

// AllOnes reports whether the low width bits of v are all set, the "value
// unknown" pattern used by Estimote frames.
func AllOnes(v uint32, width int) bool {
	mask := uint32(1<<uint(width) - 1)
	return v&mask == mask
}

// frameReader reads fields from one frame and keeps the first error, so a
// decoder can extract every field and check once at the end.
type frameReader struct {
	b   []byte
	err error
}

func (r *frameReader) u8(off int) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := Uint8(r.b, off)
	r.err = err
	return v
}

func (r *frameReader) i8(off int) int8 {
	return int8(r.u8(off))
}

func (r *frameReader) u32le(off int) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := Uint32(r.b, off, binary.LittleEndian)
	r.err = err
	return v
}

func (r *frameReader) bits(start, width int) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := BitsLE(r.b, start, width)
	r.err = err
	return v
}

func (r *frameReader) hex(from, to int) string {
	if r.err != nil {
		return ""
	}
	s, err := Hex(r.b, from, to, false)
	r.err = err
	return s
}

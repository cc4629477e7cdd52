package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrOverflow is returned when a LEB128 value does not fit its type.
	ErrOverflow = errors.New("leb128: overflow")

	// ErrUnexpectedEOF is returned when a read runs past the end of the input.
	ErrUnexpectedEOF = errors.New("unexpected end of input")
)

// Reader decodes wasm binary encodings from an in-memory buffer. Slices it
// returns alias the buffer.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the offset of the next unread byte.
func (r *Reader) Position() int { return r.off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Since returns the bytes read from start up to Position.
func (r *Reader) Since(start int) []byte {
	if start < 0 || start > r.off {
		return nil
	}
	return r.buf[start:r.off]
}

func (r *Reader) fail(err error) error {
	return fmt.Errorf("offset %d: %w", r.off, err)
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, r.fail(ErrUnexpectedEOF)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadRemaining consumes and returns everything left.
func (r *Reader) ReadRemaining() []byte {
	out := r.buf[r.off:]
	r.off = len(r.buf)
	return out
}

func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.leb(32, false)
	return uint32(v), err
}

func (r *Reader) ReadS32() (int32, error) {
	v, err := r.leb(32, true)
	return int32(v), err
}

func (r *Reader) ReadS64() (int64, error) {
	v, err := r.leb(64, true)
	return int64(v), err
}

// leb decodes a LEB128 value of at most bits significant bits, sign
// extending when signed is set.
func (r *Reader) leb(bits uint, signed bool) (uint64, error) {
	var v uint64
	var shift uint
	for n := (bits + 6) / 7; n > 0; n-- {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 != 0 {
			continue
		}
		switch {
		case signed && shift < 64 && b&0x40 != 0:
			v |= ^uint64(0) << shift
		case !signed && bits < 64 && v>>bits != 0:
			return 0, r.fail(ErrOverflow)
		}
		return v, nil
	}
	return 0, r.fail(ErrOverflow)
}

// ReadU32LE reads a fixed four byte little-endian value.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", r.fail(errors.New("name is not valid UTF-8"))
	}
	return string(b), nil
}

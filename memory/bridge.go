package memory

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/wippyai/brainsim"
	"github.com/wippyai/brainsim/errors"
)

// Bridge wraps a guest memory with range-checked typed accessors.
type Bridge struct {
	mem brainsim.Memory
}

// New wraps mem. A nil memory yields a bridge of size zero.
func New(mem brainsim.Memory) *Bridge {
	return &Bridge{mem: mem}
}

// Size returns the current memory size in bytes.
func (b *Bridge) Size() uint32 {
	if b.mem == nil {
		return 0
	}
	return b.mem.Size()
}

func (b *Bridge) check(op string, offset uint32, length uint64) error {
	size := b.Size()
	if uint64(offset)+length > uint64(size) {
		return errors.MemoryFault(op, uint64(offset), length, size)
	}
	return nil
}

// Region validates [offset, offset+length) without copying.
func (b *Bridge) Region(offset, length uint32) error {
	return b.check("region", offset, uint64(length))
}

// Read returns a copy of length bytes at offset.
func (b *Bridge) Read(offset, length uint32) ([]byte, error) {
	if err := b.check("read", offset, uint64(length)); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}
	view, ok := b.mem.Read(offset, length)
	if !ok {
		return nil, errors.MemoryFault("read", uint64(offset), uint64(length), b.Size())
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

// Write copies data to offset.
func (b *Bridge) Write(offset uint32, data []byte) error {
	if err := b.check("write", offset, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if !b.mem.Write(offset, data) {
		return errors.MemoryFault("write", uint64(offset), uint64(len(data)), b.Size())
	}
	return nil
}

func (b *Bridge) view(op string, offset, length uint32) ([]byte, error) {
	if err := b.check(op, offset, uint64(length)); err != nil {
		return nil, err
	}
	v, ok := b.mem.Read(offset, length)
	if !ok {
		return nil, errors.MemoryFault(op, uint64(offset), uint64(length), b.Size())
	}
	return v, nil
}

// ReadU8 reads an unsigned 8-bit value.
func (b *Bridge) ReadU8(offset uint32) (uint8, error) {
	v, err := b.view("read u8", offset, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (b *Bridge) ReadU16(offset uint32) (uint16, error) {
	v, err := b.view("read u16", offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v), nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (b *Bridge) ReadU32(offset uint32) (uint32, error) {
	v, err := b.view("read u32", offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v), nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (b *Bridge) ReadU64(offset uint32) (uint64, error) {
	v, err := b.view("read u64", offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (b *Bridge) ReadI32(offset uint32) (int32, error) {
	v, err := b.ReadU32(offset)
	return int32(v), err
}

func (b *Bridge) ReadI64(offset uint32) (int64, error) {
	v, err := b.ReadU64(offset)
	return int64(v), err
}

func (b *Bridge) ReadF32(offset uint32) (float32, error) {
	v, err := b.ReadU32(offset)
	return math.Float32frombits(v), err
}

func (b *Bridge) ReadF64(offset uint32) (float64, error) {
	v, err := b.ReadU64(offset)
	return math.Float64frombits(v), err
}

// WriteU8 writes an unsigned 8-bit value.
func (b *Bridge) WriteU8(offset uint32, value uint8) error {
	return b.Write(offset, []byte{value})
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (b *Bridge) WriteU16(offset uint32, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return b.Write(offset, buf[:])
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (b *Bridge) WriteU32(offset uint32, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return b.Write(offset, buf[:])
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (b *Bridge) WriteU64(offset uint32, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return b.Write(offset, buf[:])
}

func (b *Bridge) WriteI32(offset uint32, value int32) error {
	return b.WriteU32(offset, uint32(value))
}

func (b *Bridge) WriteF32(offset uint32, value float32) error {
	return b.WriteU32(offset, math.Float32bits(value))
}

func (b *Bridge) WriteF64(offset uint32, value float64) error {
	return b.WriteU64(offset, math.Float64bits(value))
}

// ReadCString reads a NUL-terminated string of at most max bytes. Longer
// strings are truncated to max. Reaching the end of memory before either the
// terminator or max bytes is a fault.
func (b *Bridge) ReadCString(offset, max uint32) (string, error) {
	size := b.Size()
	if offset >= size {
		return "", errors.MemoryFault("read string", uint64(offset), 1, size)
	}
	avail := size - offset
	n := max
	if n > avail {
		n = avail
	}
	v, ok := b.mem.Read(offset, n)
	if !ok {
		return "", errors.MemoryFault("read string", uint64(offset), uint64(n), size)
	}
	if i := bytes.IndexByte(v, 0); i >= 0 {
		return string(v[:i]), nil
	}
	if n < max {
		return "", errors.New(errors.PhaseDispatch, errors.KindMemoryFault).
			Range(uint64(offset), uint64(n)+1, uint64(size)).
			Detail("unterminated string").
			Build()
	}
	return string(v), nil
}

// WriteCString writes s followed by a NUL into a buffer of capacity bytes,
// truncating s to capacity-1. It returns the number of string bytes written.
// A zero capacity writes nothing.
func (b *Bridge) WriteCString(offset uint32, s string, capacity uint32) (int, error) {
	if capacity == 0 {
		return 0, nil
	}
	if uint32(len(s)) > capacity-1 {
		s = s[:capacity-1]
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if err := b.Write(offset, buf); err != nil {
		return 0, err
	}
	return len(s), nil
}

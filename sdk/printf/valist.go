package printf

import (
	"math"

	"github.com/wippyai/brainsim/memory"
)

// Args supplies conversion arguments in order.
type Args interface {
	Int() (int32, error)
	Long() (int64, error)
	Double() (float64, error)
	LongDouble() (float64, error)
	String(ptr uint32, max int) (string, error)
	Store(ptr uint32, size int, v int64) error
}

// VaList walks a wasm32 C va_list in guest memory: int-sized and pointer
// arguments take 4 bytes, long long and double are 8-byte aligned, long
// double is a 16-byte aligned IEEE binary128.
type VaList struct {
	mem *memory.Bridge
	ptr uint32
}

// NewVaList starts reading arguments at ptr.
func NewVaList(mem *memory.Bridge, ptr uint32) *VaList {
	return &VaList{mem: mem, ptr: ptr}
}

// Pos returns the address of the next argument.
func (v *VaList) Pos() uint32 { return v.ptr }

func (v *VaList) align(n uint32) {
	v.ptr = (v.ptr + n - 1) &^ (n - 1)
}

func (v *VaList) Int() (int32, error) {
	v.align(4)
	x, err := v.mem.ReadI32(v.ptr)
	if err != nil {
		return 0, err
	}
	v.ptr += 4
	return x, nil
}

func (v *VaList) Long() (int64, error) {
	v.align(8)
	x, err := v.mem.ReadI64(v.ptr)
	if err != nil {
		return 0, err
	}
	v.ptr += 8
	return x, nil
}

func (v *VaList) Double() (float64, error) {
	v.align(8)
	x, err := v.mem.ReadF64(v.ptr)
	if err != nil {
		return 0, err
	}
	v.ptr += 8
	return x, nil
}

func (v *VaList) LongDouble() (float64, error) {
	v.align(16)
	lo, err := v.mem.ReadU64(v.ptr)
	if err != nil {
		return 0, err
	}
	hi, err := v.mem.ReadU64(v.ptr + 8)
	if err != nil {
		return 0, err
	}
	v.ptr += 16
	return binary128(hi, lo), nil
}

// String reads a NUL-terminated string. A non-negative max stops the read
// after max bytes even without a terminator.
func (v *VaList) String(ptr uint32, max int) (string, error) {
	if max < 0 || max > MaxString {
		max = MaxString
	}
	return v.mem.ReadCString(ptr, uint32(max))
}

func (v *VaList) Store(ptr uint32, size int, x int64) error {
	switch size {
	case 1:
		return v.mem.WriteU8(ptr, uint8(x))
	case 2:
		return v.mem.WriteU16(ptr, uint16(x))
	case 8:
		return v.mem.WriteU64(ptr, uint64(x))
	default:
		return v.mem.WriteU32(ptr, uint32(x))
	}
}

// binary128 narrows an IEEE quad (hi holds sign, exponent and the top 48
// mantissa bits) to float64.
func binary128(hi, lo uint64) float64 {
	sign := hi >> 63
	exp := int((hi >> 48) & 0x7fff)
	mant := (hi&0xffffffffffff)<<4 | lo>>60

	var bits uint64
	switch {
	case exp == 0x7fff:
		bits = 0x7ff << 52
		if mant != 0 || lo<<4 != 0 {
			bits |= 1 << 51
		}
	case exp == 0:
		bits = 0
	default:
		e := exp - 16383 + 1023
		switch {
		case e >= 0x7ff:
			bits = 0x7ff << 52
		case e <= 0:
			bits = 0
		default:
			bits = uint64(e)<<52 | mant
		}
	}
	return math.Float64frombits(sign<<63 | bits)
}

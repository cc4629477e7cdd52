package jumptable

import (
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/brainsim/wasm"
)

// ArgKind describes how a slot argument is decoded.
type ArgKind uint8

const (
	Int    ArgKind = iota // i32, signed
	Uint                  // i32, unsigned
	Long                  // i64
	Float                 // f32
	Double                // f64
	Ptr                   // i32 guest pointer, resolved by the handler
	Str                   // i32 pointer to a NUL-terminated string, resolved before the call
	Buf                   // i32 pointer whose length is the next argument, copied before the call
)

var argNames = [...]string{"int", "uint", "long", "float", "double", "ptr", "str", "buf"}

func (k ArgKind) String() string {
	if int(k) < len(argNames) {
		return argNames[k]
	}
	return fmt.Sprintf("arg(%d)", uint8(k))
}

// ValType returns the wasm type the argument travels as.
func (k ArgKind) ValType() wasm.ValType {
	switch k {
	case Long:
		return wasm.ValI64
	case Float:
		return wasm.ValF32
	case Double:
		return wasm.ValF64
	default:
		return wasm.ValI32
	}
}

// RetKind describes how a slot result is encoded.
type RetKind uint8

const (
	Void RetKind = iota
	RetInt
	RetUint
	RetLong
	RetULong
	RetFloat
	RetDouble
)

var retNames = [...]string{"void", "int", "uint", "long", "ulong", "float", "double"}

func (k RetKind) String() string {
	if int(k) < len(retNames) {
		return retNames[k]
	}
	return fmt.Sprintf("ret(%d)", uint8(k))
}

// ValTypes returns the wasm result types.
func (k RetKind) ValTypes() []wasm.ValType {
	switch k {
	case Void:
		return nil
	case RetLong, RetULong:
		return []wasm.ValType{wasm.ValI64}
	case RetFloat:
		return []wasm.ValType{wasm.ValF32}
	case RetDouble:
		return []wasm.ValType{wasm.ValF64}
	default:
		return []wasm.ValType{wasm.ValI32}
	}
}

// Sig is a slot's argument and return shape.
type Sig struct {
	Args []ArgKind
	Ret  RetKind
}

// Fn builds a Sig.
func Fn(ret RetKind, args ...ArgKind) Sig {
	return Sig{Args: args, Ret: ret}
}

// FuncType returns the wasm function type for s.
func (s Sig) FuncType() wasm.FuncType {
	params := make([]wasm.ValType, len(s.Args))
	for i, a := range s.Args {
		params[i] = a.ValType()
	}
	return wasm.FuncType{Params: params, Results: s.Ret.ValTypes()}
}

func (s Sig) validate() error {
	for i, a := range s.Args {
		if a > Buf {
			return fmt.Errorf("argument %d has unknown kind %d", i, a)
		}
		if a == Buf {
			if i+1 >= len(s.Args) || (s.Args[i+1] != Int && s.Args[i+1] != Uint) {
				return fmt.Errorf("buf argument %d must be followed by an int length", i)
			}
		}
	}
	if s.Ret > RetDouble {
		return fmt.Errorf("unknown return kind %d", s.Ret)
	}
	return nil
}

func (s Sig) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + s.Ret.String()
}

// Result encoders for handler return values.

func I32(v int32) uint64   { return uint64(uint32(v)) }
func U32(v uint32) uint64  { return uint64(v) }
func I64(v int64) uint64   { return uint64(v) }
func F32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func F64(v float64) uint64 { return math.Float64bits(v) }

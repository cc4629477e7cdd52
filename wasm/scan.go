package wasm

import (
	"github.com/wippyai/brainsim/wasm/internal/binary"
)

// ConstIndirectCall is a call_indirect whose callee index is loaded from a
// constant address: `i32.const a; i32.load offset; call_indirect type table`.
type ConstIndirectCall struct {
	Address  uint32 // a + offset
	TypeIdx  uint32
	TableIdx uint32
}

// ConstIndirectCalls finds the constant-address indirect call sequence in a
// function body. Matching is done on byte patterns rather than decoded
// instructions, so results are hints and may include spurious matches.
func ConstIndirectCalls(code []byte) []ConstIndirectCall {
	var out []ConstIndirectCall
	for i, b := range code {
		if b != OpI32Const {
			continue
		}
		if c, ok := matchConstIndirect(code[i+1:]); ok {
			out = append(out, c)
		}
	}
	return out
}

func matchConstIndirect(code []byte) (ConstIndirectCall, bool) {
	var c ConstIndirectCall
	r := binary.NewReader(code)

	base, err := r.ReadS32()
	if err != nil {
		return c, false
	}
	if op, err := r.ReadByte(); err != nil || op != OpI32Load {
		return c, false
	}
	if _, err := r.ReadU32(); err != nil { // alignment
		return c, false
	}
	offset, err := r.ReadU32()
	if err != nil {
		return c, false
	}
	if op, err := r.ReadByte(); err != nil || op != OpCallIndirect {
		return c, false
	}
	if c.TypeIdx, err = r.ReadU32(); err != nil {
		return c, false
	}
	if c.TableIdx, err = r.ReadU32(); err != nil {
		return c, false
	}
	c.Address = uint32(base) + offset
	return c, true
}

package wasm

import (
	"github.com/wippyai/brainsim/wasm/internal/binary"
)

// Expr builds instruction sequences for function bodies and constant
// expressions. Methods append one instruction each and return the receiver.
type Expr struct {
	w binary.Writer
}

// NewExpr starts an empty instruction sequence.
func NewExpr() *Expr {
	return &Expr{}
}

// ConstI32 returns the constant expression `i32.const v; end`.
func ConstI32(v int32) []byte {
	return NewExpr().I32Const(v).End()
}

func (e *Expr) op(b byte) *Expr {
	e.w.Byte(b)
	return e
}

func (e *Expr) I32Const(v int32) *Expr {
	e.w.Byte(OpI32Const)
	e.w.WriteS64(int64(v))
	return e
}

func (e *Expr) I64Const(v int64) *Expr {
	e.w.Byte(OpI64Const)
	e.w.WriteS64(v)
	return e
}

func (e *Expr) LocalGet(idx uint32) *Expr {
	e.w.Byte(OpLocalGet)
	e.w.WriteU32(idx)
	return e
}

func (e *Expr) Call(funcIdx uint32) *Expr {
	e.w.Byte(OpCall)
	e.w.WriteU32(funcIdx)
	return e
}

func (e *Expr) CallIndirect(typeIdx, tableIdx uint32) *Expr {
	e.w.Byte(OpCallIndirect)
	e.w.WriteU32(typeIdx)
	e.w.WriteU32(tableIdx)
	return e
}

// I32Load emits i32.load with the given alignment exponent and offset.
func (e *Expr) I32Load(align, offset uint32) *Expr {
	e.w.Byte(OpI32Load)
	e.w.WriteU32(align)
	e.w.WriteU32(offset)
	return e
}

// I32Store emits i32.store with the given alignment exponent and offset.
func (e *Expr) I32Store(align, offset uint32) *Expr {
	e.w.Byte(OpI32Store)
	e.w.WriteU32(align)
	e.w.WriteU32(offset)
	return e
}

func (e *Expr) Drop() *Expr        { return e.op(OpDrop) }
func (e *Expr) Unreachable() *Expr { return e.op(OpUnreachable) }
func (e *Expr) Return() *Expr      { return e.op(OpReturn) }

// End terminates the sequence and returns its encoding.
func (e *Expr) End() []byte {
	e.w.Byte(OpEnd)
	out := make([]byte, e.w.Len())
	copy(out, e.w.Bytes())
	return out
}

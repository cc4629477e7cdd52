package binary

import (
	"encoding/binary"
)

// Writer accumulates wasm binary encoding.
type Writer struct {
	b []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoding so far. The slice aliases the writer.
func (w *Writer) Bytes() []byte { return w.b }
func (w *Writer) Len() int      { return len(w.b) }

func (w *Writer) Byte(b byte)         { w.b = append(w.b, b) }
func (w *Writer) WriteBytes(p []byte) { w.b = append(w.b, p...) }

// WriteU32 writes unsigned LEB128, which is the uvarint encoding.
func (w *Writer) WriteU32(v uint32) {
	w.b = binary.AppendUvarint(w.b, uint64(v))
}

// WriteS64 writes signed LEB128.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 && b&0x40 == 0 || v == -1 && b&0x40 != 0 {
			w.b = append(w.b, b)
			return
		}
		w.b = append(w.b, b|0x80)
	}
}

// WriteName writes a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.b = append(w.b, s...)
}

// WriteU32LE writes a fixed-width little-endian word.
func (w *Writer) WriteU32LE(v uint32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
}

package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestReader_ReadU32(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte", []byte{0x7f}, 127},
		{"two bytes", []byte{0x80, 0x01}, 128},
		{"jump table base", []byte{0x80, 0x80, 0xff, 0x1b}, 0x037FC000},
		{"max", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReader(tt.data).ReadU32()
			if err != nil {
				t.Fatalf("ReadU32: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadU32 = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestReader_Overflow(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too many bytes", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
		{"high bits set", []byte{0xff, 0xff, 0xff, 0xff, 0x7f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(tt.data).ReadU32(); !errors.Is(err, ErrOverflow) {
				t.Errorf("err = %v, want overflow", err)
			}
		})
	}
}

func TestReader_S32(t *testing.T) {
	for _, v := range []int32{0, -1, 0x037FC89C, -0x80000000, 0x7fffffff} {
		w := NewWriter()
		w.WriteS64(int64(v))
		got, err := NewReader(w.Bytes()).ReadS32()
		if err != nil || got != v {
			t.Errorf("ReadS32 = %d, %v, want %d", got, err, v)
		}
	}
}

func TestReader_EOF(t *testing.T) {
	r := NewReader([]byte{0x80})
	if _, err := r.ReadU32(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("err = %v, want EOF", err)
	}
	if _, err := NewReader([]byte{1, 2}).ReadBytes(3); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadBytes err = %v, want EOF", err)
	}
}

func TestWriterReaderSigned(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, -64, 64, -65, 0x037FC89C, -0x80000000} {
		w := NewWriter()
		w.WriteS64(v)
		got, err := NewReader(w.Bytes()).ReadS64()
		if err != nil {
			t.Fatalf("ReadS64(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d = %d", v, got)
		}
	}
}

func TestWriterU32(t *testing.T) {
	w := NewWriter()
	w.WriteU32(0x037FC000)
	w.WriteU32(127)
	if want := []byte{0x80, 0x80, 0xff, 0x1b, 0x7f}; !bytes.Equal(w.Bytes(), want) {
		t.Errorf("WriteU32 = %x, want %x", w.Bytes(), want)
	}
}

func TestWriterName(t *testing.T) {
	w := NewWriter()
	w.WriteName("__indirect_function_table")
	w.WriteU32LE(0x35585658)

	r := NewReader(w.Bytes())
	name, err := r.ReadName()
	if err != nil || name != "__indirect_function_table" {
		t.Fatalf("ReadName = %q, %v", name, err)
	}
	magic, err := r.ReadU32LE()
	if err != nil || magic != 0x35585658 {
		t.Fatalf("ReadU32LE = %#x, %v", magic, err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestReadName_InvalidUTF8(t *testing.T) {
	if _, err := NewReader([]byte{2, 0xff, 0xfe}).ReadName(); err == nil {
		t.Error("expected UTF-8 error")
	}
}

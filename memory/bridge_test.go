package memory

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/brainsim/errors"
)

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory"
	0x02, 0x00, // kind: memory, index 0
}

func faultOf(t *testing.T, err error) *errors.Error {
	t.Helper()
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	return e
}

func TestBridge_Bounds(t *testing.T) {
	b := New(NewBuffer(PageSize, 1))

	tests := []struct {
		name   string
		offset uint32
		length uint32
		fault  bool
	}{
		{"start", 0, 16, false},
		{"exact end", PageSize - 10, 10, false},
		{"zero at end", PageSize, 0, false},
		{"one past", PageSize - 10, 11, true},
		{"scenario 65530+10", 65530, 10, true},
		{"offset past end", PageSize + 1, 0, true},
		{"wraps u32", 0xFFFFFFF0, 0x20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rerr := b.Read(tt.offset, tt.length)
			werr := b.Write(tt.offset, make([]byte, tt.length))
			if !tt.fault {
				if rerr != nil || werr != nil {
					t.Fatalf("unexpected errors: %v / %v", rerr, werr)
				}
				return
			}
			e := faultOf(t, rerr)
			if e.Offset != uint64(tt.offset) || e.Length != uint64(tt.length) || e.Limit != PageSize {
				t.Errorf("fault range = %#x+%#x limit %#x", e.Offset, e.Length, e.Limit)
			}
			faultOf(t, werr)
		})
	}
}

func TestBridge_WriteStaysInRange(t *testing.T) {
	buf := NewBuffer(64, 1)
	for i := range buf.Bytes() {
		buf.Bytes()[i] = 0xAA
	}
	b := New(buf)

	if err := b.Write(10, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	if raw[9] != 0xAA || raw[13] != 0xAA {
		t.Errorf("write touched bytes outside range: %x", raw[8:15])
	}

	if err := b.Write(62, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected fault")
	}
	if raw[62] != 0xAA || raw[63] != 0xAA {
		t.Error("faulting write must not modify memory")
	}
}

func TestBridge_ReadReturnsCopy(t *testing.T) {
	buf := NewBuffer(16, 1)
	b := New(buf)
	_ = b.Write(0, []byte("abcd"))

	got, err := b.Read(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 'z'
	if buf.Bytes()[0] != 'a' {
		t.Error("Read must not alias guest memory")
	}
}

func TestBridge_Typed(t *testing.T) {
	b := New(NewBuffer(64, 1))

	if err := b.WriteU16(0, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteU32(4, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteU64(8, 0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteF64(16, 3.5); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteF32(24, -1.25); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteI32(28, -7); err != nil {
		t.Fatal(err)
	}

	if v, _ := b.ReadU16(0); v != 0xBEEF {
		t.Errorf("ReadU16 = %#x", v)
	}
	if v, _ := b.ReadU8(0); v != 0xEF {
		t.Errorf("ReadU8 = %#x (little endian)", v)
	}
	if v, _ := b.ReadU32(4); v != 0xDEADBEEF {
		t.Errorf("ReadU32 = %#x", v)
	}
	if v, _ := b.ReadU64(8); v != 0x0102030405060708 {
		t.Errorf("ReadU64 = %#x", v)
	}
	if v, _ := b.ReadF64(16); v != 3.5 {
		t.Errorf("ReadF64 = %v", v)
	}
	if v, _ := b.ReadF32(24); v != -1.25 {
		t.Errorf("ReadF32 = %v", v)
	}
	if v, _ := b.ReadI32(28); v != -7 {
		t.Errorf("ReadI32 = %v", v)
	}

	if _, err := b.ReadU64(60); err == nil {
		t.Error("ReadU64 straddling the end should fault")
	}
	if err := b.WriteU32(62, 1); err == nil {
		t.Error("WriteU32 straddling the end should fault")
	}
}

func TestBridge_CString(t *testing.T) {
	buf := NewBuffer(32, 1)
	b := New(buf)
	copy(buf.Bytes(), "hello\x00world")
	copy(buf.Bytes()[24:], "unterminated") // 8 bytes fit, no NUL before end

	tests := []struct {
		name   string
		offset uint32
		max    uint32
		want   string
		fault  bool
	}{
		{"terminated", 0, 64, "hello", false},
		{"truncated", 0, 3, "hel", false},
		{"empty", 5, 64, "", false},
		{"runs off end", 24, 64, "", true},
		{"truncated before end", 24, 4, "unte", false},
		{"offset at end", 32, 4, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.ReadCString(tt.offset, tt.max)
			if tt.fault {
				faultOf(t, err)
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ReadCString = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBridge_WriteCString(t *testing.T) {
	buf := NewBuffer(16, 1)
	b := New(buf)

	n, err := b.WriteCString(0, "hello", 4)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || string(buf.Bytes()[:4]) != "hel\x00" {
		t.Errorf("WriteCString = %d, %q", n, buf.Bytes()[:4])
	}

	if n, err := b.WriteCString(0, "x", 0); n != 0 || err != nil {
		t.Errorf("zero capacity = %d, %v", n, err)
	}

	if _, err := b.WriteCString(14, "abcdef", 10); err == nil {
		t.Error("expected fault past end")
	}
}

func TestBridge_SizeTracksGrowth(t *testing.T) {
	buf := NewBuffer(PageSize, 2)
	b := New(buf)

	if err := b.Region(PageSize, 4); err == nil {
		t.Fatal("expected fault before growth")
	}
	if _, ok := buf.Grow(1); !ok {
		t.Fatal("grow failed")
	}
	if err := b.Region(PageSize, 4); err != nil {
		t.Errorf("region after growth: %v", err)
	}
	if _, ok := buf.Grow(1); ok {
		t.Error("grow past max pages should fail")
	}
}

func TestBridge_Nil(t *testing.T) {
	b := New(nil)
	if b.Size() != 0 {
		t.Error("nil memory should have size 0")
	}
	if _, err := b.Read(0, 1); err == nil {
		t.Error("expected fault")
	}
}

func TestBridge_Wazero(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, memoryWASM)
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}
	defer mod.Close(ctx)

	b := New(mod.ExportedMemory("memory"))
	if b.Size() != PageSize {
		t.Fatalf("Size = %d", b.Size())
	}
	if err := b.Write(100, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	s, err := b.ReadCString(100, 16)
	if err != nil || s != "hello" {
		t.Errorf("ReadCString = %q, %v", s, err)
	}
	if _, err := b.Read(65530, 10); !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Errorf("expected memory fault, got %v", err)
	}
}

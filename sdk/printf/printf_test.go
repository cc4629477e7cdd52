package printf

import (
	"encoding/binary"
	stderrors "errors"
	"math"
	"testing"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/memory"
)

const (
	listBase = 0x100
	strBase  = 0x800
	outBase  = 0x900
)

// frame lays out variadic arguments the way clang does for wasm32.
type frame struct {
	buf *memory.Buffer
	pos uint32
	str uint32
}

func newFrame() *frame {
	return &frame{buf: memory.NewBuffer(memory.PageSize, 1), pos: listBase, str: strBase}
}

func (f *frame) align(n uint32) { f.pos = (f.pos + n - 1) &^ (n - 1) }

func (f *frame) i32(v int32) *frame {
	f.align(4)
	binary.LittleEndian.PutUint32(f.buf.Bytes()[f.pos:], uint32(v))
	f.pos += 4
	return f
}

func (f *frame) i64(v int64) *frame {
	f.align(8)
	binary.LittleEndian.PutUint64(f.buf.Bytes()[f.pos:], uint64(v))
	f.pos += 8
	return f
}

func (f *frame) f64(v float64) *frame { return f.i64(int64(math.Float64bits(v))) }

func (f *frame) quad(hi, lo uint64) *frame {
	f.align(16)
	binary.LittleEndian.PutUint64(f.buf.Bytes()[f.pos:], lo)
	binary.LittleEndian.PutUint64(f.buf.Bytes()[f.pos+8:], hi)
	f.pos += 16
	return f
}

func (f *frame) cstr(s string) *frame {
	addr := f.str
	copy(f.buf.Bytes()[addr:], s)
	f.buf.Bytes()[addr+uint32(len(s))] = 0
	f.str += uint32(len(s)) + 1
	return f.i32(int32(addr))
}

func (f *frame) format(t *testing.T, format string) string {
	t.Helper()
	out, err := Format(format, NewVaList(memory.New(f.buf), listBase))
	if err != nil {
		t.Fatalf("Format(%q): %v", format, err)
	}
	return out
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		args   func(*frame)
		want   string
	}{
		{"literal", "hello\n", func(*frame) {}, "hello\n"},
		{"percent", "100%%", func(*frame) {}, "100%"},
		{"ints", "%d %i", func(f *frame) { f.i32(-42).i32(7) }, "-42 7"},
		{"width", "%5d|%-5d|%05d", func(f *frame) { f.i32(42).i32(42).i32(42) }, "   42|42   |00042"},
		{"sign flags", "%+d % d", func(f *frame) { f.i32(5).i32(5) }, "+5  5"},
		{"int precision", "%.3d|%.0d|", func(f *frame) { f.i32(7).i32(0) }, "007||"},
		{"unsigned", "%u", func(f *frame) { f.i32(-1) }, "4294967295"},
		{"hex octal", "%x %X %#x %o %#o", func(f *frame) { f.i32(255).i32(255).i32(255).i32(8).i32(8) }, "ff FF 0xff 10 010"},
		{"hh", "%hhd", func(f *frame) { f.i32(0x1ff) }, "-1"},
		{"h", "%hu", func(f *frame) { f.i32(0x10001) }, "1"},
		{"long is 32 bit", "%ld %lu", func(f *frame) { f.i32(-3).i32(-1) }, "-3 4294967295"},
		{"long long aligned", "%d %lld", func(f *frame) { f.i32(1).i64(-5000000000) }, "1 -5000000000"},
		{"long long hex", "%llx", func(f *frame) { f.i64(0x1122334455667788) }, "1122334455667788"},
		{"chars", "%c%c%3c", func(f *frame) { f.i32('h').i32('i').i32('!') }, "hi  !"},
		{"strings", "%s|%.2s|%8s|%-4s|", func(f *frame) { f.cstr("abc").cstr("abc").cstr("abc").cstr("abc") }, "abc|ab|     abc|abc |"},
		{"null string", "%s", func(f *frame) { f.i32(0) }, "(null)"},
		{"pointer", "%p", func(f *frame) { f.i32(0x1234) }, "0x1234"},
		{"star width", "%*d|%-*d|", func(f *frame) { f.i32(4).i32(7).i32(3).i32(1) }, "   7|1  |"},
		{"negative star width", "%*d|", func(f *frame) { f.i32(-4).i32(7) }, "7   |"},
		{"star precision", "%.*f", func(f *frame) { f.i32(1).f64(2.25) }, "2.2"},
		{"float default", "%f", func(f *frame) { f.f64(3.14159) }, "3.141590"},
		{"float width", "%5.2f|%-7.1f|%07.2f", func(f *frame) { f.f64(3.14159).f64(2.5).f64(-1.5) }, " 3.14|2.5    |-001.50"},
		{"float after int", "%d %f", func(f *frame) { f.i32(3).f64(0.5) }, "3 0.500000"},
		{"exp", "%e %.2E", func(f *frame) { f.f64(12345.678).f64(0.000123) }, "1.234568e+04 1.23E-04"},
		{"general", "%g %g %g %g", func(f *frame) { f.f64(0.0001).f64(1e6).f64(100).f64(0.5) }, "0.0001 1e+06 100 0.5"},
		{"general upper", "%G", func(f *frame) { f.f64(1e-10) }, "1E-10"},
		{"general precision", "%.3g %#g", func(f *frame) { f.f64(3.14159).f64(1) }, "3.14 1.00000"},
		{"hex float", "%a %A", func(f *frame) { f.f64(1).f64(0.5) }, "0x1p+0 0X1P-1"},
		{"inf nan", "%f %F %f %+f", func(f *frame) { f.f64(math.Inf(1)).f64(math.Inf(1)).f64(math.Inf(-1)).f64(math.NaN()) }, "inf INF -inf +nan"},
		{"long double", "%d %Lf", func(f *frame) { f.i32(1).quad(0x3FFF800000000000, 0) }, "1 1.500000"},
		{"unknown conversion", "%y!", func(*frame) {}, "%y!"},
		{"trailing percent", "50%", func(*frame) {}, "50%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFrame()
			tt.args(f)
			if got := f.format(t, tt.format); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestFormat_StoreCount(t *testing.T) {
	tests := []struct {
		format string
		size   int
	}{
		{"abc%n", 4},
		{"abc%hhn", 1},
		{"abc%hn", 2},
		{"abc%lln", 8},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f := newFrame()
			copy(f.buf.Bytes()[outBase:], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xee})
			f.i32(outBase)
			if got := f.format(t, tt.format); got != "abc" {
				t.Fatalf("output = %q", got)
			}
			b := f.buf.Bytes()[outBase:]
			if b[0] != 3 {
				t.Errorf("stored %x", b[:8])
			}
			for i := 1; i < tt.size; i++ {
				if b[i] != 0 {
					t.Errorf("byte %d = %x, want 0", i, b[i])
				}
			}
			if tt.size < 8 && b[tt.size] != 0xff {
				t.Errorf("byte %d clobbered: %x", tt.size, b[tt.size])
			}
		})
	}
}

func TestFormat_MemoryFault(t *testing.T) {
	buf := memory.NewBuffer(memory.PageSize, 1)
	mem := memory.New(buf)

	_, err := Format("%d", NewVaList(mem, memory.PageSize-2))
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Errorf("argument past end: err = %v", err)
	}

	binary.LittleEndian.PutUint32(buf.Bytes()[listBase:], memory.PageSize+16)
	_, err = Format("%s", NewVaList(mem, listBase))
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Errorf("string past end: err = %v", err)
	}
}

func TestVaList_Alignment(t *testing.T) {
	f := newFrame().i32(1).i64(2).i32(3).quad(0x4000000000000000, 0)
	va := NewVaList(memory.New(f.buf), listBase)

	if v, _ := va.Int(); v != 1 {
		t.Errorf("Int = %d", v)
	}
	if v, _ := va.Long(); v != 2 || va.Pos() != listBase+16 {
		t.Errorf("Long = %d, pos %#x", v, va.Pos())
	}
	if v, _ := va.Int(); v != 3 {
		t.Errorf("Int = %d", v)
	}
	if v, _ := va.LongDouble(); v != 2 || va.Pos() != listBase+48 {
		t.Errorf("LongDouble = %v, pos %#x", v, va.Pos())
	}
}

func TestBinary128(t *testing.T) {
	tests := []struct {
		name   string
		hi, lo uint64
		want   float64
	}{
		{"one", 0x3FFF000000000000, 0, 1},
		{"minus two", 0xC000000000000000, 0, -2},
		{"low mantissa bits", 0x3FFF000000000000, 0x8000000000000000, 1 + 1.0/(1<<49)},
		{"zero", 0, 0, 0},
		{"overflow", 0x7FFE000000000000, 0, math.Inf(1)},
		{"inf", 0x7FFF000000000000, 0, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := binary128(tt.hi, tt.lo); got != tt.want {
				t.Errorf("binary128 = %v, want %v", got, tt.want)
			}
		})
	}
	if !math.IsNaN(binary128(0x7FFF800000000000, 0)) {
		t.Error("quad NaN should narrow to NaN")
	}
}

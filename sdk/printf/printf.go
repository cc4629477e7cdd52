// Package printf implements C99 printf formatting over a guest va_list.
//
// Conversions: d i u o x X c s p f F e E g G a A n %. Flags "-+ 0#",
// field width and precision (including '*'), and the length modifiers
// hh h l ll j z t L are honoured with wasm32 sizes: long, size_t and
// ptrdiff_t are 32 bits, long long and intmax_t are 64.
package printf

import (
	"math"
	"strconv"
	"strings"
)

// MaxString bounds %s reads.
const MaxString = 4096

type flags struct {
	left, plus, space, zero, alt bool
}

type directive struct {
	flags
	width  int
	prec   int // -1 when absent
	length string
	verb   byte
}

// Format renders format with arguments drawn from args. Memory faults while
// reading arguments abort formatting and are returned as-is.
func Format(format string, args Args) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			j := strings.IndexByte(format[i:], '%')
			if j < 0 {
				out.WriteString(format[i:])
				break
			}
			out.WriteString(format[i : i+j])
			i += j
			continue
		}

		start := i
		i++
		var s directive
		s.prec = -1

	flagLoop:
		for ; i < len(format); i++ {
			switch format[i] {
			case '-':
				s.left = true
			case '+':
				s.plus = true
			case ' ':
				s.space = true
			case '0':
				s.zero = true
			case '#':
				s.alt = true
			default:
				break flagLoop
			}
		}

		if i < len(format) && format[i] == '*' {
			w, err := args.Int()
			if err != nil {
				return out.String(), err
			}
			if w < 0 {
				s.left = true
				w = -w
			}
			s.width = int(w)
			i++
		} else {
			s.width, i = number(format, i)
		}

		if i < len(format) && format[i] == '.' {
			i++
			if i < len(format) && format[i] == '*' {
				p, err := args.Int()
				if err != nil {
					return out.String(), err
				}
				s.prec = int(p)
				if p < 0 {
					s.prec = -1
				}
				i++
			} else {
				s.prec, i = number(format, i)
			}
		}

		for _, l := range []string{"hh", "ll", "h", "l", "j", "z", "t", "L", "q"} {
			if strings.HasPrefix(format[i:], l) {
				s.length = l
				i += len(l)
				break
			}
		}

		if i >= len(format) {
			out.WriteString(format[start:])
			break
		}
		s.verb = format[i]
		i++

		if err := convert(&out, s, args, format[start:i]); err != nil {
			return out.String(), err
		}
	}
	return out.String(), nil
}

func number(format string, i int) (int, int) {
	n := 0
	for i < len(format) && format[i] >= '0' && format[i] <= '9' {
		if n < 1<<20 {
			n = n*10 + int(format[i]-'0')
		}
		i++
	}
	return n, i
}

func convert(out *strings.Builder, s directive, args Args, raw string) error {
	switch s.verb {
	case '%':
		out.WriteByte('%')

	case 'd', 'i':
		v, err := signed(args, s.length)
		if err != nil {
			return err
		}
		neg := v < 0
		mag := uint64(v)
		if neg {
			mag = -mag
		}
		writeInt(out, s, strconv.FormatUint(mag, 10), sign(neg, s.flags), "")

	case 'u', 'o', 'x', 'X':
		v, err := unsigned(args, s.length)
		if err != nil {
			return err
		}
		var digits, prefix string
		switch s.verb {
		case 'u':
			digits = strconv.FormatUint(v, 10)
		case 'o':
			digits = strconv.FormatUint(v, 8)
			if s.alt {
				if v == 0 && s.prec == 0 {
					s.prec = 1
				} else if v != 0 && s.prec <= len(digits) {
					s.prec = len(digits) + 1
				}
			}
		case 'x':
			digits = strconv.FormatUint(v, 16)
			if s.alt && v != 0 {
				prefix = "0x"
			}
		case 'X':
			digits = strings.ToUpper(strconv.FormatUint(v, 16))
			if s.alt && v != 0 {
				prefix = "0X"
			}
		}
		writeInt(out, s, digits, "", prefix)

	case 'c':
		v, err := args.Int()
		if err != nil {
			return err
		}
		pad(out, s, string([]byte{byte(v)}))

	case 's':
		p, err := args.Int()
		if err != nil {
			return err
		}
		str := "(null)"
		if p != 0 {
			str, err = args.String(uint32(p), s.prec)
			if err != nil {
				return err
			}
		}
		if s.prec >= 0 && len(str) > s.prec {
			str = str[:s.prec]
		}
		pad(out, s, str)

	case 'p':
		p, err := args.Int()
		if err != nil {
			return err
		}
		s.alt = true
		writeInt(out, s, strconv.FormatUint(uint64(uint32(p)), 16), "", "0x")

	case 'f', 'F', 'e', 'E', 'g', 'G', 'a', 'A':
		var v float64
		var err error
		if s.length == "L" {
			v, err = args.LongDouble()
		} else {
			v, err = args.Double()
		}
		if err != nil {
			return err
		}
		writeFloat(out, s, v)

	case 'n':
		p, err := args.Int()
		if err != nil {
			return err
		}
		size := 4
		switch s.length {
		case "hh":
			size = 1
		case "h":
			size = 2
		case "ll", "j", "q":
			size = 8
		}
		return args.Store(uint32(p), size, int64(out.Len()))

	default:
		out.WriteString(raw)
	}
	return nil
}

func signed(args Args, length string) (int64, error) {
	switch length {
	case "ll", "j", "q", "L":
		return args.Long()
	}
	v, err := args.Int()
	switch length {
	case "hh":
		return int64(int8(v)), err
	case "h":
		return int64(int16(v)), err
	}
	return int64(v), err
}

func unsigned(args Args, length string) (uint64, error) {
	switch length {
	case "ll", "j", "q", "L":
		v, err := args.Long()
		return uint64(v), err
	}
	v, err := args.Int()
	switch length {
	case "hh":
		return uint64(uint8(v)), err
	case "h":
		return uint64(uint16(v)), err
	}
	return uint64(uint32(v)), err
}

func sign(neg bool, f flags) string {
	switch {
	case neg:
		return "-"
	case f.plus:
		return "+"
	case f.space:
		return " "
	}
	return ""
}

// writeInt applies precision (minimum digits) then width.
func writeInt(out *strings.Builder, s directive, digits, signStr, prefix string) {
	if s.prec == 0 && digits == "0" {
		digits = ""
	}
	if s.prec > len(digits) {
		digits = strings.Repeat("0", s.prec-len(digits)) + digits
	}
	zero := s.zero && !s.left && s.prec < 0
	body := digits
	head := signStr + prefix
	if n := s.width - len(head) - len(body); n > 0 && zero {
		body = strings.Repeat("0", n) + body
	}
	pad(out, s, head+body)
}

func pad(out *strings.Builder, s directive, str string) {
	n := s.width - len(str)
	if n <= 0 {
		out.WriteString(str)
		return
	}
	if s.left {
		out.WriteString(str)
		out.WriteString(strings.Repeat(" ", n))
		return
	}
	out.WriteString(strings.Repeat(" ", n))
	out.WriteString(str)
}

func writeFloat(out *strings.Builder, s directive, v float64) {
	upper := s.verb >= 'A' && s.verb <= 'Z'
	neg := math.Signbit(v)
	signStr := sign(neg, s.flags)
	mag := math.Abs(v)

	if math.IsInf(v, 0) || math.IsNaN(v) {
		word := "inf"
		if math.IsNaN(v) {
			word = "nan"
		}
		if upper {
			word = strings.ToUpper(word)
		}
		pad(out, s, signStr+word)
		return
	}

	prec := s.prec
	var body string
	switch s.verb | 0x20 {
	case 'f':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(mag, 'f', prec, 64)
		if s.alt && prec == 0 {
			body += "."
		}
	case 'e':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(mag, 'e', prec, 64)
		if s.alt && prec == 0 {
			body = strings.Replace(body, "e", ".e", 1)
		}
	case 'g':
		body = formatG(mag, prec, s.alt)
	case 'a':
		body = formatA(mag, prec)
	}
	if upper {
		body = strings.ToUpper(body)
	}

	if s.zero && !s.left {
		if n := s.width - len(signStr) - len(body); n > 0 {
			zeros := strings.Repeat("0", n)
			if s.verb|0x20 == 'a' {
				// zeros go after the 0x prefix
				body = body[:2] + zeros + body[2:]
			} else {
				body = zeros + body
			}
		}
	}
	pad(out, s, signStr+body)
}

// formatG follows C: P significant digits, %e style when the exponent is
// below -4 or at least P, trailing zeros removed unless alt is set.
func formatG(v float64, prec int, alt bool) string {
	if prec < 0 {
		prec = 6
	}
	if prec == 0 {
		prec = 1
	}
	exp := 0
	if v != 0 {
		e := strconv.FormatFloat(v, 'e', prec-1, 64)
		exp, _ = strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	}

	var s string
	if exp < -4 || exp >= prec {
		s = strconv.FormatFloat(v, 'e', prec-1, 64)
		if !alt {
			mant, ex, _ := strings.Cut(s, "e")
			s = trimZeros(mant) + "e" + ex
		} else if !strings.Contains(s, ".") {
			s = strings.Replace(s, "e", ".e", 1)
		}
		return s
	}
	s = strconv.FormatFloat(v, 'f', prec-1-exp, 64)
	if !alt {
		return trimZeros(s)
	}
	if !strings.Contains(s, ".") {
		s += "."
	}
	return s
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// formatA renders hex floating point with a minimal exponent, as C does.
func formatA(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'x', prec, 64)
	mant, ex, ok := strings.Cut(s, "p")
	if !ok || len(ex) < 2 {
		return s
	}
	sgn, digits := ex[:1], strings.TrimLeft(ex[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "p" + sgn + digits
}

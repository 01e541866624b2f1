// Package format renders numbers as text according to a printf style
// descriptor and funnels the text through a small double buffered writer so
// the same code can target streams, growable strings and fixed capacity
// strings.
package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Notation selects how a number is rendered.
type Notation uint8

const (
	Decimal Notation = iota
	Hex
	Octal
	Binary
	Fixed
	Exponent
	Smart
)

var ErrBadFormat = errors.New("bad format descriptor")

// Descriptor is the parsed form of strings such as "%-8.3f" or "%#x".
type Descriptor struct {
	Notation Notation
	Width    int
	// Precision is -1 when unset: floats then use the shortest exact form.
	Precision int
	LeftAlign bool
	// Padded pads with zeros instead of spaces.
	Padded bool
	// FullNotation prints the 0x, 0o and 0b prefixes.
	FullNotation bool
	// Sign forces a leading '+' on positive numbers.
	Sign  bool
	Upper bool
}

// Default renders integers in decimal and floats in their shortest exact form.
var Default = Descriptor{Notation: Decimal, Precision: -1}

// Parse reads a single printf style verb: % [-+#0] [width] [.precision] verb,
// where verb is one of d i u x X o b f e E g G s.
func Parse(s string) (Descriptor, error) {
	d := Default
	rest, ok := strings.CutPrefix(s, "%")
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}
	i := 0
flags:
	for ; i < len(rest); i++ {
		switch rest[i] {
		case '-':
			d.LeftAlign = true
		case '+':
			d.Sign = true
		case '#':
			d.FullNotation = true
		case '0':
			d.Padded = true
		default:
			break flags
		}
	}
	start := i
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > start {
		d.Width, _ = strconv.Atoi(rest[start:i])
	}
	if i < len(rest) && rest[i] == '.' {
		i++
		start = i
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		d.Precision, _ = strconv.Atoi(rest[start:i])
	}
	if i != len(rest)-1 {
		return d, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}
	switch rest[i] {
	case 'd', 'i', 'u', 's':
		d.Notation = Decimal
	case 'x':
		d.Notation = Hex
	case 'X':
		d.Notation, d.Upper = Hex, true
	case 'o':
		d.Notation = Octal
	case 'b':
		d.Notation = Binary
	case 'f':
		d.Notation = Fixed
	case 'e':
		d.Notation = Exponent
	case 'E':
		d.Notation, d.Upper = Exponent, true
	case 'g':
		d.Notation = Smart
	case 'G':
		d.Notation, d.Upper = Smart, true
	default:
		return d, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}
	return d, nil
}

func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('%')
	if d.LeftAlign {
		b.WriteByte('-')
	}
	if d.Sign {
		b.WriteByte('+')
	}
	if d.FullNotation {
		b.WriteByte('#')
	}
	if d.Padded {
		b.WriteByte('0')
	}
	if d.Width > 0 {
		b.WriteString(strconv.Itoa(d.Width))
	}
	if d.Precision >= 0 {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(d.Precision))
	}
	verb := map[Notation]byte{Decimal: 'd', Hex: 'x', Octal: 'o', Binary: 'b', Fixed: 'f', Exponent: 'e', Smart: 'g'}[d.Notation]
	if d.Upper {
		verb &^= 'a' - 'A'
	}
	b.WriteByte(verb)
	return b.String()
}

func (d Descriptor) base() int {
	switch d.Notation {
	case Hex:
		return 16
	case Octal:
		return 8
	case Binary:
		return 2
	}
	return 10
}

func (d Descriptor) prefix() string {
	if !d.FullNotation {
		return ""
	}
	switch d.Notation {
	case Hex:
		return "0x"
	case Octal:
		return "0o"
	case Binary:
		return "0b"
	}
	return ""
}

// pad applies width, alignment and zero padding. Zeros go after the sign and
// the base prefix.
func (d Descriptor) pad(sign, prefix, digits string) string {
	n := len(sign) + len(prefix) + len(digits)
	if d.Width <= n {
		return sign + prefix + digits
	}
	fill := d.Width - n
	switch {
	case d.LeftAlign:
		return sign + prefix + digits + strings.Repeat(" ", fill)
	case d.Padded:
		return sign + prefix + strings.Repeat("0", fill) + digits
	}
	return strings.Repeat(" ", fill) + sign + prefix + digits
}

// Unsigned renders u. Non decimal notations print the bit pattern.
func Unsigned(u uint64, d Descriptor) string {
	if d.Notation >= Fixed {
		return Float(float64(u), 64, d)
	}
	digits := strconv.FormatUint(u, d.base())
	if d.Upper {
		digits = strings.ToUpper(digits)
	}
	sign := ""
	if d.Sign && d.Notation == Decimal {
		sign = "+"
	}
	return d.pad(sign, d.prefix(), digits)
}

// Integer renders v held on bits bits. In hex, octal and binary negative
// values print their two's complement pattern on that width.
func Integer(v int64, bits int, d Descriptor) string {
	if d.Notation >= Fixed {
		return Float(float64(v), 64, d)
	}
	if d.Notation != Decimal {
		u := uint64(v)
		if bits < 64 {
			u &= 1<<uint(bits) - 1
		}
		return Unsigned(u, d)
	}
	sign := ""
	mag := strconv.FormatUint(uint64(v), 10)
	if v < 0 {
		sign = "-"
		mag = strconv.FormatUint(uint64(^v)+1, 10)
	} else if d.Sign {
		sign = "+"
	}
	return d.pad(sign, "", mag)
}

// Float renders f held on bits (32 or 64) bits.
func Float(f float64, bits int, d Descriptor) string {
	verb := byte('g')
	switch d.Notation {
	case Fixed:
		verb = 'f'
	case Exponent:
		verb = 'e'
	}
	if d.Upper {
		verb &^= 'a' - 'A'
	}
	prec := d.Precision
	if d.Notation == Fixed && prec < 0 {
		prec = 6
	}
	s := strconv.FormatFloat(f, verb, prec, bits)
	sign := ""
	if s[0] == '-' || s[0] == '+' {
		sign, s = s[:1], s[1:]
	} else if d.Sign {
		sign = "+"
	}
	return d.pad(sign, "", s)
}

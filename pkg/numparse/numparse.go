// Package numparse turns text tokens into numbers. Integers accept decimal with
// an optional sign or the 0x, 0o and 0b prefixes; floats accept the usual
// sign, fraction and exponent syntax.
package numparse

import (
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/errflags"
)

// MaxTokenLength bounds every scan.
const MaxTokenLength = 1000

// Notation splits the base prefix from a token without sign.
func Notation(s string) (base int, digits string) {
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x':
			return 16, s[2:]
		case 'o':
			return 8, s[2:]
		case 'b':
			return 2, s[2:]
		}
	}
	return 10, s
}

func digitValue(c byte) uint64 {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0')
	case c >= 'a' && c <= 'f':
		return uint64(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return uint64(c-'A') + 10
	}
	return 99
}

func bitsPerDigit(base int) uint {
	switch base {
	case 16:
		return 4
	case 8:
		return 3
	}
	return 1
}

func checkToken(s string) (string, errflags.Flags) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errflags.IllegalOperation
	}
	if len(s) > MaxTokenLength {
		return "", errflags.FatalError
	}
	return s, errflags.None
}

func splitSign(s string) (neg bool, rest string) {
	switch s[0] {
	case '-':
		return true, s[1:]
	case '+':
		return false, s[1:]
	}
	return false, s
}

// decimal accumulates base 10 digits up to limit. On overflow the result
// saturates to limit, OutOfRange is raised and the remaining characters are
// still validated.
func decimal(digits string, limit uint64) (uint64, errflags.Flags) {
	if digits == "" {
		return 0, errflags.FatalError
	}
	var acc uint64
	ret := errflags.None
	for i := 0; i < len(digits); i++ {
		d := digitValue(digits[i])
		if d > 9 {
			return 0, errflags.FatalError
		}
		if ret.Has(errflags.OutOfRange) {
			continue
		}
		if acc > (limit-d)/10 {
			acc = limit
			ret |= errflags.OutOfRange
			continue
		}
		acc = acc*10 + d
	}
	return acc, ret
}

// prefixed accumulates a power of two base into at most maxBits bits. On
// overflow it stops with FatalError and returns what was accumulated so far.
func prefixed(digits string, base int, maxBits uint) (uint64, errflags.Flags) {
	if digits == "" {
		return 0, errflags.FatalError
	}
	step := bitsPerDigit(base)
	var acc uint64
	var used uint
	for i := 0; i < len(digits); i++ {
		d := digitValue(digits[i])
		if d >= uint64(base) {
			return acc, errflags.FatalError
		}
		if used == 0 && d == 0 {
			continue
		}
		width := step
		if used == 0 {
			width = uint(64 - bits.LeadingZeros64(d))
		}
		if used+width > maxBits {
			return acc, errflags.FatalError
		}
		acc = acc<<step | d
		used += width
	}
	return acc, errflags.None
}

func checkBits(bits int) bool {
	switch bits {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

// ParseUint parses s into an unsigned integer of the given width.
func ParseUint(s string, bits int) (uint64, errflags.Flags) {
	s, ret := checkToken(s)
	if ret != errflags.None {
		return 0, ret
	}
	if !checkBits(bits) {
		return 0, errflags.ParametersError
	}
	neg, rest := splitSign(s)
	if neg {
		return 0, errflags.FatalError
	}
	base, digits := Notation(rest)
	if base != 10 {
		return prefixed(digits, base, uint(bits))
	}
	return decimal(digits, math.MaxUint64>>(64-bits))
}

// ParseInt parses s into a signed integer of the given width. Unsigned
// prefixed notations describe the two's complement bit pattern of the
// destination; with a minus sign they are a magnitude, clamped to the
// minimum with OutOfRange when it does not fit.
func ParseInt(s string, bits int) (int64, errflags.Flags) {
	s, ret := checkToken(s)
	if ret != errflags.None {
		return 0, ret
	}
	if !checkBits(bits) {
		return 0, errflags.ParametersError
	}
	neg, rest := splitSign(s)
	base, digits := Notation(rest)
	if base != 10 {
		u, ret := prefixed(digits, base, uint(bits))
		if neg {
			limit := uint64(1) << (bits - 1)
			if u > limit {
				return -int64(limit-1) - 1, ret | errflags.OutOfRange
			}
			return -int64(u-1) - 1, ret
		}
		shift := uint(64 - bits)
		return int64(u<<shift) >> shift, ret
	}
	max := uint64(1)<<(bits-1) - 1
	if neg {
		u, ret := decimal(digits, max+1)
		return -int64(u-1) - 1, ret
	}
	u, ret := decimal(digits, max)
	return int64(u), ret
}

type floatState uint8

const (
	fsStart floatState = iota
	fsSign
	fsInteger
	fsDot
	fsFraction
	fsExp
	fsExpSign
	fsExpDigits
)

// validFloat runs the float syntax state machine.
func validFloat(s string) bool {
	st := fsStart
	mantissa := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		digit := c >= '0' && c <= '9'
		switch st {
		case fsStart, fsSign:
			switch {
			case digit:
				st, mantissa = fsInteger, true
			case c == '.':
				st = fsDot
			case (c == '+' || c == '-') && st == fsStart:
				st = fsSign
			default:
				return false
			}
		case fsInteger:
			switch {
			case digit:
			case c == '.':
				st = fsDot
			case c == 'e' || c == 'E':
				st = fsExp
			default:
				return false
			}
		case fsDot, fsFraction:
			switch {
			case digit:
				st, mantissa = fsFraction, true
			case (c == 'e' || c == 'E') && mantissa:
				st = fsExp
			default:
				return false
			}
		case fsExp:
			switch {
			case digit:
				st = fsExpDigits
			case c == '+' || c == '-':
				st = fsExpSign
			default:
				return false
			}
		case fsExpSign, fsExpDigits:
			if !digit {
				return false
			}
			st = fsExpDigits
		}
	}
	switch st {
	case fsInteger, fsFraction, fsExpDigits:
		return true
	case fsDot:
		return mantissa
	}
	return false
}

// ParseFloat parses s as a 32 or 64 bit float. Values that do not fit the
// destination as a finite number are a FatalError.
func ParseFloat(s string, bits int) (float64, errflags.Flags) {
	s, ret := checkToken(s)
	if ret != errflags.None {
		return 0, ret
	}
	if bits != 32 && bits != 64 {
		return 0, errflags.ParametersError
	}
	if !validFloat(s) {
		return 0, errflags.FatalError
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errflags.FatalError
	}
	return f, errflags.None
}

// Package saturated implements integers that saturate to infinities instead
// of wrapping. The top three raw values of the underlying type encode the
// special states, so an Int[T] has exactly the size of T.
package saturated

import (
	"strconv"
	"unsafe"
)

// Integer lists the native integer kinds an Int can wrap.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr
}

// State is the tag of an Int. The raw encoding is maxRaw+State.
type State uint8

const (
	Valid State = iota
	StateIndeterminate
	StateNegativeInf
	StatePositiveInf
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case StateIndeterminate:
		return "indeterminate"
	case StateNegativeInf:
		return "-inf"
	case StatePositiveInf:
		return "+inf"
	}
	return "unknown"
}

// compute marks table cells where both operands are valid and the native
// operation must run with an overflow check.
const compute State = 0xFF

var addTable = [4][4]State{
	Valid:              {compute, StateIndeterminate, StateNegativeInf, StatePositiveInf},
	StateIndeterminate: {StateIndeterminate, StateIndeterminate, StateIndeterminate, StateIndeterminate},
	StateNegativeInf:   {StateNegativeInf, StateIndeterminate, StateNegativeInf, StateIndeterminate},
	StatePositiveInf:   {StatePositiveInf, StateIndeterminate, StateIndeterminate, StatePositiveInf},
}

var subTable = [4][4]State{
	Valid:              {compute, StateIndeterminate, StatePositiveInf, StateNegativeInf},
	StateIndeterminate: {StateIndeterminate, StateIndeterminate, StateIndeterminate, StateIndeterminate},
	StateNegativeInf:   {StateNegativeInf, StateIndeterminate, StateIndeterminate, StateNegativeInf},
	StatePositiveInf:   {StatePositiveInf, StateIndeterminate, StatePositiveInf, StateIndeterminate},
}

// multiplication needs the sign of valid operands
type mulClass uint8

const (
	classZero mulClass = iota
	classPositive
	classNegative
	classIndeterminate
	classNegativeInf
	classPositiveInf
)

var mulTable = [6][6]State{
	classZero:          {compute, compute, compute, StateIndeterminate, StateIndeterminate, StateIndeterminate},
	classPositive:      {compute, compute, compute, StateIndeterminate, StateNegativeInf, StatePositiveInf},
	classNegative:      {compute, compute, compute, StateIndeterminate, StatePositiveInf, StateNegativeInf},
	classIndeterminate: {StateIndeterminate, StateIndeterminate, StateIndeterminate, StateIndeterminate, StateIndeterminate, StateIndeterminate},
	classNegativeInf:   {StateIndeterminate, StateNegativeInf, StatePositiveInf, StateIndeterminate, StatePositiveInf, StateNegativeInf},
	classPositiveInf:   {StateIndeterminate, StatePositiveInf, StateNegativeInf, StateIndeterminate, StateNegativeInf, StatePositiveInf},
}

// Int is a saturating integer.
type Int[T Integer] struct {
	raw T
}

func isSigned[T Integer]() bool {
	var zero T
	return ^zero < zero
}

// Max is the native maximum of T.
func Max[T Integer]() T {
	var zero T
	if !isSigned[T]() {
		return ^zero
	}
	bits := uint64(unsafe.Sizeof(zero)) * 8
	return T(uint64(1)<<(bits-1) - 1)
}

// Min is the native minimum of T.
func Min[T Integer]() T {
	if !isSigned[T]() {
		return 0
	}
	return -Max[T]() - 1
}

// MaxValid is the largest value an Int[T] can hold as a valid number.
func MaxValid[T Integer]() T {
	return Max[T]() - 3
}

// New wraps v. Values in the reserved band saturate to positive infinity.
func New[T Integer](v T) Int[T] {
	if v > MaxValid[T]() {
		return PositiveInf[T]()
	}
	return Int[T]{raw: v}
}

func fromState[T Integer](s State) Int[T] {
	return Int[T]{raw: MaxValid[T]() + T(s)}
}

func PositiveInf[T Integer]() Int[T] {
	return fromState[T](StatePositiveInf)
}

func NegativeInf[T Integer]() Int[T] {
	return fromState[T](StateNegativeInf)
}

func Indeterminate[T Integer]() Int[T] {
	return fromState[T](StateIndeterminate)
}

// FromRaw reinterprets a raw encoded value.
func FromRaw[T Integer](raw T) Int[T] {
	return Int[T]{raw: raw}
}

// Raw returns the encoded value, reserved codes included.
func (s Int[T]) Raw() T {
	return s.raw
}

// Code returns the State of s.
func (s Int[T]) Code() State {
	if s.raw > MaxValid[T]() {
		return State(s.raw - MaxValid[T]())
	}
	return Valid
}

// State is the pattern-matchable view: the state, and the value when valid.
func (s Int[T]) State() (State, T) {
	c := s.Code()
	if c != Valid {
		return c, 0
	}
	return Valid, s.raw
}

// Value returns the number and whether it is valid.
func (s Int[T]) Value() (T, bool) {
	c, v := s.State()
	return v, c == Valid
}

func (s Int[T]) IsValid() bool {
	return s.Code() == Valid
}

func (s Int[T]) IsInfinite() bool {
	c := s.Code()
	return c == StatePositiveInf || c == StateNegativeInf
}

func (s Int[T]) String() string {
	switch s.Code() {
	case StatePositiveInf:
		return "+Inf"
	case StateNegativeInf:
		return "-Inf"
	case StateIndeterminate:
		return "Indeterminate"
	}
	if isSigned[T]() {
		return strconv.FormatInt(int64(s.raw), 10)
	}
	return strconv.FormatUint(uint64(s.raw), 10)
}

// Add returns s+o following the addition transition table.
func (s Int[T]) Add(o Int[T]) Int[T] {
	if r := addTable[s.Code()][o.Code()]; r != compute {
		return fromState[T](r)
	}
	a, b := s.raw, o.raw
	r := a + b
	if isSigned[T]() {
		if (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0) {
			if a >= 0 {
				return PositiveInf[T]()
			}
			return NegativeInf[T]()
		}
	} else if r < a {
		return PositiveInf[T]()
	}
	return New(r)
}

// Sub returns s-o following the subtraction transition table.
func (s Int[T]) Sub(o Int[T]) Int[T] {
	if r := subTable[s.Code()][o.Code()]; r != compute {
		return fromState[T](r)
	}
	a, b := s.raw, o.raw
	if !isSigned[T]() {
		if b > a {
			return NegativeInf[T]()
		}
		return Int[T]{raw: a - b}
	}
	r := a - b
	if (a >= 0) != (b >= 0) && (r >= 0) != (a >= 0) {
		if a >= 0 {
			return PositiveInf[T]()
		}
		return NegativeInf[T]()
	}
	return New(r)
}

func (s Int[T]) class() mulClass {
	switch s.Code() {
	case StateIndeterminate:
		return classIndeterminate
	case StateNegativeInf:
		return classNegativeInf
	case StatePositiveInf:
		return classPositiveInf
	}
	switch {
	case s.raw == 0:
		return classZero
	case s.raw < 0:
		return classNegative
	}
	return classPositive
}

// Mul returns s*o following the multiplication transition table.
func (s Int[T]) Mul(o Int[T]) Int[T] {
	if r := mulTable[s.class()][o.class()]; r != compute {
		return fromState[T](r)
	}
	a, b := s.raw, o.raw
	if a == 0 || b == 0 {
		return Int[T]{}
	}
	overflow := func() Int[T] {
		if (a < 0) != (b < 0) {
			return NegativeInf[T]()
		}
		return PositiveInf[T]()
	}
	minusOne := ^T(0)
	if isSigned[T]() && ((a == minusOne && b == Min[T]()) || (b == minusOne && a == Min[T]())) {
		return overflow()
	}
	r := a * b
	if r/b != a {
		return overflow()
	}
	return New(r)
}

// Neg returns -s.
func (s Int[T]) Neg() Int[T] {
	switch s.Code() {
	case StatePositiveInf:
		return NegativeInf[T]()
	case StateNegativeInf:
		return PositiveInf[T]()
	case StateIndeterminate:
		return s
	}
	if !isSigned[T]() {
		if s.raw == 0 {
			return s
		}
		return NegativeInf[T]()
	}
	if s.raw == Min[T]() {
		return PositiveInf[T]()
	}
	return New(-s.raw)
}

// Compare orders two values. ok is false when either side is indeterminate.
func (s Int[T]) Compare(o Int[T]) (cmp int, ok bool) {
	rank := func(x Int[T]) (int, T) {
		switch x.Code() {
		case StateNegativeInf:
			return -1, 0
		case StatePositiveInf:
			return 1, 0
		}
		return 0, x.raw
	}
	if s.Code() == StateIndeterminate || o.Code() == StateIndeterminate {
		return 0, false
	}
	ra, va := rank(s)
	rb, vb := rank(o)
	switch {
	case ra != rb:
		if ra < rb {
			return -1, true
		}
		return 1, true
	case va < vb:
		return -1, true
	case va > vb:
		return 1, true
	}
	return 0, true
}

// wide splits v into sign and magnitude so values of different widths compare.
func wide[T Integer](v T) (neg bool, mag uint64) {
	if v < 0 {
		return true, uint64(^int64(v)) + 1
	}
	return false, uint64(v)
}

func less(an bool, am uint64, bn bool, bm uint64) bool {
	switch {
	case an && !bn:
		return true
	case !an && bn:
		return false
	case an:
		return am > bm
	}
	return am < bm
}

// Convert changes the underlying width, saturating to infinities.
func Convert[D, S Integer](s Int[S]) Int[D] {
	c, v := s.State()
	if c != Valid {
		return fromState[D](c)
	}
	vn, vm := wide(v)
	hn, hm := wide(MaxValid[D]())
	if less(hn, hm, vn, vm) {
		return PositiveInf[D]()
	}
	ln, lm := wide(Min[D]())
	if less(vn, vm, ln, lm) {
		return NegativeInf[D]()
	}
	return Int[D]{raw: D(v)}
}

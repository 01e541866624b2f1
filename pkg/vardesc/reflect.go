package vardesc

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

// StructLookup resolves struct types to their structured leaf descriptor.
type StructLookup interface {
	Lookup(rt reflect.Type) (typedesc.Descriptor, bool)
}

// Char is a single byte character leaf.
type Char byte

// Matrix is a rows by columns matrix stored row major. It maps to the M
// modifier.
type Matrix[T any] struct {
	Rows, Cols int
	Data       []T
}

func (Matrix[T]) matrixElem() reflect.Type {
	return reflect.TypeFor[T]()
}

// At returns the element at row r and column c.
func (m Matrix[T]) At(r, c int) T {
	return m.Data[r*m.Cols+c]
}

// ZeroTerminated is a slice stored as a zero terminated array (the Z
// modifier). The terminator is implied, not part of the slice.
type ZeroTerminated[T any] []T

func (ZeroTerminated[T]) ztaElem() reflect.Type {
	return reflect.TypeFor[T]()
}

type matrixShape interface {
	matrixElem() reflect.Type
}

type ztaShape interface {
	ztaElem() reflect.Type
}

var (
	matrixIface = reflect.TypeFor[matrixShape]()
	ztaIface    = reflect.TypeFor[ztaShape]()
	charType    = reflect.TypeFor[Char]()
)

// Of derives the descriptor of the Go type T.
func Of[T any](lookup StructLookup) (Descriptor, error) {
	return FromReflect(reflect.TypeFor[T](), lookup)
}

// FromReflect walks the declarator of rt one layer at a time, appending one
// modifier per layer, until it reaches a scalar or a registered struct.
func FromReflect(rt reflect.Type, lookup StructLookup) (Descriptor, error) {
	var b strings.Builder
	leaf, err := match(rt, lookup, &b)
	if err != nil {
		return Descriptor{}, err
	}
	return New(leaf, b.String()), nil
}

func match(rt reflect.Type, lookup StructLookup, b *strings.Builder) (typedesc.Descriptor, error) {
	if rt == nil {
		return typedesc.InvalidType, fmt.Errorf("%w: nil type", ErrUnsupported)
	}
	if td, ok := Scalar(rt); ok {
		return td, nil
	}
	switch {
	case rt.Kind() == reflect.Struct && rt.Implements(matrixIface):
		b.WriteByte('M')
		return match(reflect.Zero(rt).Interface().(matrixShape).matrixElem(), lookup, b)
	case rt.Kind() == reflect.Slice && rt.Implements(ztaIface):
		b.WriteByte('Z')
		return match(reflect.Zero(rt).Interface().(ztaShape).ztaElem(), lookup, b)
	}
	switch rt.Kind() {
	case reflect.Array:
		b.WriteByte('A')
		b.WriteString(strconv.Itoa(rt.Len()))
		return match(rt.Elem(), lookup, b)
	case reflect.Pointer:
		elem := rt.Elem()
		if elem.Kind() == reflect.Array {
			// *[N]T points at N elements
			b.WriteByte('P')
			b.WriteString(strconv.Itoa(elem.Len()))
			return match(elem.Elem(), lookup, b)
		}
		b.WriteString("P1")
		return match(elem, lookup, b)
	case reflect.Slice:
		b.WriteByte('V')
		return match(rt.Elem(), lookup, b)
	case reflect.Struct:
		if lookup == nil {
			return typedesc.InvalidType, fmt.Errorf("%w: %s", ErrNoClass, rt)
		}
		td, ok := lookup.Lookup(rt)
		if !ok {
			return typedesc.InvalidType, fmt.Errorf("%w: %s", ErrNoClass, rt)
		}
		return td, nil
	}
	return typedesc.InvalidType, fmt.Errorf("%w: %s", ErrUnsupported, rt)
}

// Scalar maps builtin Go kinds to leaf descriptors. int, uint and uintptr are
// 64 bit; bool is stored as uint8 and string as a zero terminated string.
func Scalar(rt reflect.Type) (typedesc.Descriptor, bool) {
	if rt == charType {
		return typedesc.Char8, true
	}
	switch rt.Kind() {
	case reflect.Int8:
		return typedesc.Int8, true
	case reflect.Int16:
		return typedesc.Int16, true
	case reflect.Int32:
		return typedesc.Int32, true
	case reflect.Int64, reflect.Int:
		return typedesc.Int64, true
	case reflect.Uint8, reflect.Bool:
		return typedesc.Uint8, true
	case reflect.Uint16:
		return typedesc.Uint16, true
	case reflect.Uint32:
		return typedesc.Uint32, true
	case reflect.Uint64, reflect.Uint:
		return typedesc.Uint64, true
	case reflect.Uintptr, reflect.UnsafePointer:
		return typedesc.VoidPointer, true
	case reflect.Float32:
		return typedesc.Float32, true
	case reflect.Float64:
		return typedesc.Float64, true
	case reflect.String:
		return typedesc.CCStringType, true
	}
	return typedesc.InvalidType, false
}

// Package dimension compiles modifier strings such as "A3A4" or "P5V" into an
// ordered list of layers and redirects addresses through them.
//
// Grammar, one token per layer, outer to inner:
//
//	A<n>      inline array of n elements
//	P<n> p<n> pointer to an array of n elements (p: pointed data is constant)
//	V v       vector header (address, count)
//	M m       matrix header (address, rows, columns)
//	Z z       pointer to a zero terminated array
//	D d       pointer to a dynamically allocated zero terminated array
//	S<n> s<n> inline zero terminated array of capacity n
//
// A bare P (or P0) turns the leaf into an opaque pointer and ends the list, as
// does any pointer token directly after a P. Malformed strings never fail:
// they yield an invalid leaf.
package dimension

import (
	"strconv"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/saturated"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

// Kind is the layer tag. Values are the uppercase grammar letters.
type Kind byte

const (
	KindTerminal   Kind = 0
	KindArray      Kind = 'A'
	KindPointer    Kind = 'P'
	KindVector     Kind = 'V'
	KindMatrix     Kind = 'M'
	KindZTA        Kind = 'Z'
	KindDynamicZTA Kind = 'D'
	KindStaticZTA  Kind = 'S'
	// KindRow is the row layer a matrix adds below itself. It has no token.
	KindRow Kind = 'R'
)

// Redirects reports layers whose elements live behind an address.
func (k Kind) Redirects() bool {
	switch k {
	case KindPointer, KindVector, KindMatrix, KindZTA, KindDynamicZTA:
		return true
	}
	return false
}

// IsZTA reports the zero terminated kinds.
func (k Kind) IsZTA() bool {
	return k == KindZTA || k == KindDynamicZTA || k == KindStaticZTA
}

// Overhead is the inline size of the address or header of a redirecting layer.
func (k Kind) Overhead() uint64 {
	switch k {
	case KindPointer, KindZTA, KindDynamicZTA:
		return memory.PointerSize
	case KindVector:
		return memory.VectorHeaderSize
	case KindMatrix:
		return memory.MatrixHeaderSize
	}
	return 0
}

// Layer is one level of a variable's shape.
type Layer struct {
	Kind Kind
	// Const marks the data below a pointer, vector or matrix as constant.
	Const bool
	// Count is the static element count; 0 means it is only known at runtime.
	Count uint32
	// ElementSize is the footprint of one element of this layer. It is 0 for
	// matrices, whose row size depends on the stored column count.
	ElementSize uint64
	// Terminal is the kind of the nearest non array layer at or below this one.
	Terminal Kind
}

// Handler is the compiled form of a modifier string over a leaf type.
type Handler struct {
	layers []Layer
	leaf   typedesc.Descriptor
}

func isPointerClass(c byte) bool {
	switch c {
	case 'P', 'p', 'Z', 'z', 'D', 'd':
		return true
	}
	return false
}

func isZTAToken(c byte) bool {
	switch c {
	case 'Z', 'z', 'D', 'd', 'S', 's':
		return true
	}
	return false
}

// readCount consumes the decimal count following position i.
func readCount(m string, i int) (count uint32, next int, present, ok bool) {
	j := i
	for j < len(m) && m[j] >= '0' && m[j] <= '9' {
		j++
	}
	if j == i {
		return 0, i, false, true
	}
	v, err := strconv.ParseUint(m[i:j], 10, 32)
	if err != nil {
		return 0, j, true, false
	}
	return uint32(v), j, true, true
}

// New compiles modifiers over leaf. It never fails; malformed input yields a
// handler whose Leaf is typedesc.InvalidType.
func New(modifiers string, leaf typedesc.Descriptor) *Handler {
	h := &Handler{leaf: leaf}
	h.parse(modifiers)
	h.layers = append(h.layers, Layer{Kind: KindTerminal, Count: 1})
	h.postPass()
	return h
}

func (h *Handler) invalidate() {
	h.leaf = typedesc.InvalidType
}

func (h *Handler) collapse(constant bool) {
	h.leaf = typedesc.VoidPointer
	h.leaf.Const = constant
}

func (h *Handler) parse(m string) {
	var prev byte
	for i := 0; i < len(m); {
		c := m[i]
		count, next, present, ok := readCount(m, i+1)
		i = next
		if !ok {
			h.invalidate()
			return
		}
		if isPointerClass(c) && (prev == 'P' || prev == 'p') {
			// the elements of the previous pointer are themselves pointers
			h.collapse(c >= 'a')
			return
		}
		if isZTAToken(c) && isZTAToken(prev) {
			h.invalidate()
			return
		}
		constant := c >= 'a' && c <= 'z'
		upper := Kind(c &^ ('a' - 'A'))
		switch c {
		case 'A':
			if !present {
				h.invalidate()
				return
			}
			h.layers = append(h.layers, Layer{Kind: KindArray, Count: count})
		case 'S', 's':
			if !present || count == 0 {
				h.invalidate()
				return
			}
			h.layers = append(h.layers, Layer{Kind: KindStaticZTA, Const: constant, Count: count})
		case 'P', 'p':
			if count == 0 {
				h.collapse(constant)
				return
			}
			h.layers = append(h.layers, Layer{Kind: KindPointer, Const: constant, Count: count})
		case 'Z', 'z', 'D', 'd', 'V', 'v':
			if present {
				h.invalidate()
				return
			}
			h.layers = append(h.layers, Layer{Kind: upper, Const: constant})
		case 'M', 'm':
			if present {
				h.invalidate()
				return
			}
			h.layers = append(h.layers, Layer{Kind: KindMatrix, Const: constant}, Layer{Kind: KindRow})
		default:
			h.invalidate()
			return
		}
		prev = c
	}
}

// footprint is the inline size of one element whose outermost layer is l.
func (h *Handler) footprint(l Layer) (uint64, bool) {
	switch l.Kind {
	case KindTerminal:
		return uint64(h.leaf.StorageSize()), true
	case KindArray, KindStaticZTA:
		return mul(uint64(l.Count), l.ElementSize)
	case KindRow:
		return 0, true
	}
	return l.Kind.Overhead(), true
}

func mul(a, b uint64) (uint64, bool) {
	return saturated.New(a).Mul(saturated.New(b)).Value()
}

func (h *Handler) postPass() {
	last := len(h.layers) - 1
	h.layers[last].ElementSize = uint64(h.leaf.StorageSize())
	h.layers[last].Terminal = KindTerminal
	for i := last - 1; i >= 0; i-- {
		l := &h.layers[i]
		below := h.layers[i+1]
		if l.Kind == KindMatrix {
			l.ElementSize = 0
		} else {
			size, ok := h.footprint(below)
			if !ok {
				h.invalidate()
				return
			}
			l.ElementSize = size
		}
		if l.Kind == KindArray || l.Kind == KindRow {
			l.Terminal = below.Terminal
		} else {
			l.Terminal = l.Kind
		}
	}
	if _, ok := h.footprint(h.layers[0]); !ok {
		h.invalidate()
	}
}

// Leaf is the leaf type after parsing. It is InvalidType for malformed modifiers
// and VoidPointer when a pointer chain collapsed.
func (h *Handler) Leaf() typedesc.Descriptor {
	return h.leaf
}

// NumberOfLayers counts every layer, the terminal one included.
func (h *Handler) NumberOfLayers() int {
	return len(h.layers)
}

// NumberOfDimensions counts the non terminal layers.
func (h *Handler) NumberOfDimensions() int {
	return len(h.layers) - 1
}

// Layer returns layer i; out of range indices yield the terminal layer.
func (h *Handler) Layer(i int) Layer {
	if i < 0 || i >= len(h.layers) {
		return h.layers[len(h.layers)-1]
	}
	return h.layers[i]
}

// Footprint is the inline size of the whole variable.
func (h *Handler) Footprint() uint64 {
	size, _ := h.footprint(h.layers[0])
	return size
}

// IsInline reports whether everything from layer i down lives contiguously at
// the variable's address, with no redirection.
func (h *Handler) IsInline(i int) bool {
	return h.Layer(i).Terminal == KindTerminal
}

// Step is the result of redirecting through one layer.
type Step struct {
	// Ptr addresses the first element of the layer.
	Ptr memory.Address
	// NumberOfElements at this layer; 0 for NULL pointers and empty containers.
	NumberOfElements uint32
	// ElementSize is the stride between elements.
	ElementSize uint64
	// Overhead is the inline size of the pointer or header that was followed.
	Overhead uint64
}

const fatal = errflags.FatalError | errflags.Exception

// UpdatePointerAndSize positions a walk at layer. ptr addresses the layer's
// inline data. elementSize is the ElementSize returned for the layer above,
// which matrix rows need to recover their column count.
func (h *Handler) UpdatePointerAndSize(space *memory.Space, layer int, ptr memory.Address, elementSize uint64) (Step, errflags.Flags) {
	if layer < 0 || layer >= len(h.layers) {
		return Step{}, errflags.ParametersError
	}
	if !h.leaf.IsValid() {
		return Step{}, errflags.InvalidOperation
	}
	l := h.layers[layer]
	step := Step{Ptr: ptr, ElementSize: l.ElementSize, Overhead: l.Kind.Overhead()}

	switch l.Kind {
	case KindTerminal:
		step.NumberOfElements = 1
		return step, errflags.None

	case KindArray:
		step.NumberOfElements = l.Count
		return step, errflags.None

	case KindRow:
		if l.ElementSize != 0 {
			step.NumberOfElements = uint32(elementSize / l.ElementSize)
		}
		return step, errflags.None

	case KindStaticZTA:
		size, _ := mul(uint64(l.Count), l.ElementSize)
		buf, err := space.Bytes(ptr, size)
		if err != nil {
			return Step{}, fatal
		}
		n, err := memory.ScanTerminatedIn(buf, l.ElementSize)
		if err != nil {
			return Step{}, fatal
		}
		step.NumberOfElements = n
		return step, errflags.None

	case KindPointer, KindZTA, KindDynamicZTA:
		target, err := space.ReadPointer(ptr)
		if err != nil {
			return Step{}, fatal
		}
		step.Ptr = target
		if target == memory.Nil {
			return step, errflags.None
		}
		if l.Kind == KindPointer {
			size, ok := mul(uint64(l.Count), l.ElementSize)
			if !ok || space.Check(target, size) != nil {
				return Step{}, fatal
			}
			step.NumberOfElements = l.Count
			return step, errflags.None
		}
		n, err := space.ScanTerminated(target, l.ElementSize)
		if err != nil {
			return Step{}, fatal
		}
		step.NumberOfElements = n
		return step, errflags.None

	case KindVector:
		data, n, err := space.ReadVector(ptr)
		if err != nil {
			return Step{}, fatal
		}
		step.Ptr = data
		if n == 0 {
			return step, errflags.None
		}
		size, ok := mul(uint64(n), l.ElementSize)
		if data == memory.Nil || !ok || space.Check(data, size) != nil {
			return Step{}, fatal
		}
		step.NumberOfElements = n
		return step, errflags.None

	case KindMatrix:
		data, rows, cols, err := space.ReadMatrix(ptr)
		if err != nil {
			return Step{}, fatal
		}
		step.Ptr = data
		rowSize, ok := mul(uint64(cols), h.layers[layer+1].ElementSize)
		if !ok {
			return Step{}, fatal
		}
		step.ElementSize = rowSize
		if rows == 0 || cols == 0 {
			return step, errflags.None
		}
		size, ok := mul(uint64(rows), rowSize)
		if data == memory.Nil || !ok || space.Check(data, size) != nil {
			return Step{}, fatal
		}
		step.NumberOfElements = rows
		return step, errflags.None
	}
	return Step{}, errflags.InternalStateError
}

// HasSameDimensionsAs checks that two shapes can be walked in lockstep. A count
// of 0 on either side matches anything.
func (h *Handler) HasSameDimensionsAs(other *Handler) errflags.Flags {
	if h.NumberOfDimensions() != other.NumberOfDimensions() {
		return errflags.InvalidOperation
	}
	for i := 0; i < h.NumberOfDimensions(); i++ {
		a, b := h.layers[i].Count, other.layers[i].Count
		if a != 0 && b != 0 && a != b {
			return errflags.InvalidOperation
		}
	}
	return errflags.None
}

// Modifiers renders the layers back into a modifier string.
func (h *Handler) Modifiers() string {
	var b strings.Builder
	for _, l := range h.layers {
		if l.Kind == KindTerminal || l.Kind == KindRow {
			continue
		}
		c := byte(l.Kind)
		if l.Const {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
		switch l.Kind {
		case KindArray, KindPointer, KindStaticZTA:
			b.WriteString(strconv.FormatUint(uint64(l.Count), 10))
		}
	}
	return b.String()
}

// String describes the shape, e.g. "array[3] of array[4] of int16".
func (h *Handler) String() string {
	var b strings.Builder
	for _, l := range h.layers {
		var s string
		switch l.Kind {
		case KindArray:
			s = "array[" + strconv.FormatUint(uint64(l.Count), 10) + "] of "
		case KindPointer:
			s = "pointer to array[" + strconv.FormatUint(uint64(l.Count), 10) + "] of "
		case KindVector:
			s = "vector of "
		case KindMatrix:
			s = "matrix of "
		case KindZTA:
			s = "zero terminated array of "
		case KindDynamicZTA:
			s = "dynamic zero terminated array of "
		case KindStaticZTA:
			s = "static zero terminated array[" + strconv.FormatUint(uint64(l.Count), 10) + "] of "
		}
		if l.Const {
			s += "const "
		}
		b.WriteString(s)
	}
	b.WriteString(h.leaf.String())
	return b.String()
}

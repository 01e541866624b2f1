// Package vardesc pairs a leaf type with its modifier string. Descriptors are
// built directly from a type descriptor or derived from Go types by reflection.
package vardesc

import (
	"errors"
	"fmt"

	"github.com/rawbytedev/typeconv/pkg/dimension"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/saturated"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

var (
	ErrUnsupported = errors.New("unsupported go type")
	ErrNoClass     = errors.New("struct type not registered")
)

// Descriptor describes a whole variable: its leaf type and shape.
type Descriptor struct {
	leaf      typedesc.Descriptor
	modifiers string
	handler   *dimension.Handler
}

// New builds a descriptor; the modifier string is compiled once.
func New(td typedesc.Descriptor, modifiers string) Descriptor {
	return Descriptor{leaf: td, modifiers: modifiers, handler: dimension.New(modifiers, td)}
}

// FromTypeDescriptor describes a scalar.
func FromTypeDescriptor(td typedesc.Descriptor) Descriptor {
	return New(td, "")
}

func (d Descriptor) compiled() *dimension.Handler {
	if d.handler == nil {
		return dimension.New(d.modifiers, d.leaf)
	}
	return d.handler
}

// TypeDescriptor is the effective leaf type: a collapsed pointer chain yields
// VoidPointer and malformed modifiers yield InvalidType.
func (d Descriptor) TypeDescriptor() typedesc.Descriptor {
	return d.compiled().Leaf()
}

func (d Descriptor) Modifiers() string {
	return d.modifiers
}

func (d Descriptor) Handler() *dimension.Handler {
	return d.compiled()
}

func (d Descriptor) IsValid() bool {
	return d.TypeDescriptor().IsValid()
}

// IsScalar reports descriptors without dimension layers.
func (d Descriptor) IsScalar() bool {
	return d.compiled().NumberOfDimensions() == 0
}

// Footprint is the inline size of the variable.
func (d Descriptor) Footprint() uint64 {
	return d.compiled().Footprint()
}

// SameAs compares leaf types (constness ignored) and shapes.
func (d Descriptor) SameAs(o Descriptor) bool {
	return d.TypeDescriptor().SameAs(o.TypeDescriptor()) &&
		d.compiled().Modifiers() == o.compiled().Modifiers()
}

func (d Descriptor) String() string {
	return d.compiled().String()
}

// Size is the number of bytes the variable at ref occupies, the data reached
// through its pointers and headers included. The sum saturates: a result that
// does not fit is reported as OutOfRange with the largest value.
func (d Descriptor) Size(ref memory.Ref) (uint64, errflags.Flags) {
	h := d.compiled()
	if !h.Leaf().IsValid() {
		return 0, errflags.InvalidOperation
	}
	total, ret := sizeAt(h, ref.Space, 0, ref.Addr, 0)
	v, ok := total.Value()
	if !ok {
		return saturated.MaxValid[uint64](), ret | errflags.OutOfRange
	}
	return v, ret
}

type size = saturated.Int[uint64]

func sizeAt(h *dimension.Handler, space *memory.Space, layer int, ptr memory.Address, es uint64) (size, errflags.Flags) {
	l := h.Layer(layer)
	if l.Kind == dimension.KindTerminal {
		return saturated.New(l.ElementSize), errflags.None
	}
	step, ret := h.UpdatePointerAndSize(space, layer, ptr, es)
	if !ret.ErrorsCleared() {
		return size{}, ret
	}
	n := saturated.New(uint64(step.NumberOfElements))
	stride := saturated.New(step.ElementSize)

	var children size
	if h.IsInline(layer + 1) {
		children = n.Mul(stride)
	} else {
		for k := uint32(0); k < step.NumberOfElements; k++ {
			at := step.Ptr + memory.Address(uint64(k)*step.ElementSize)
			s, r := sizeAt(h, space, layer+1, at, step.ElementSize)
			ret |= r
			if !r.ErrorsCleared() {
				return size{}, ret
			}
			children = children.Add(s)
		}
	}

	total := saturated.New(step.Overhead).Add(children)
	switch l.Kind {
	case dimension.KindStaticZTA:
		unused := saturated.New(uint64(l.Count)).Sub(n)
		total = total.Add(unused.Mul(stride))
	case dimension.KindZTA, dimension.KindDynamicZTA:
		if step.Ptr != memory.Nil {
			total = total.Add(stride)
		}
	}
	return total, ret
}

// Variable is an address bound to the description of what lives there.
type Variable struct {
	Ref  memory.Ref
	Desc Descriptor
}

// Alloc maps a zeroed variable of desc in space.
func Alloc(space *memory.Space, desc Descriptor) Variable {
	addr, _ := space.Alloc(desc.Footprint())
	return Variable{Ref: memory.Ref{Space: space, Addr: addr}, Desc: desc}
}

// At describes existing memory.
func At(space *memory.Space, addr memory.Address, desc Descriptor) Variable {
	return Variable{Ref: memory.Ref{Space: space, Addr: addr}, Desc: desc}
}

// Bytes returns the inline bytes of the variable.
func (v Variable) Bytes() ([]byte, error) {
	return v.Ref.Bytes(v.Desc.Footprint())
}

// Size is Descriptor.Size at the variable's address.
func (v Variable) Size() (uint64, errflags.Flags) {
	return v.Desc.Size(v.Ref)
}

func (v Variable) String() string {
	return fmt.Sprintf("%s@%#x", v.Desc, uint64(v.Ref.Addr))
}

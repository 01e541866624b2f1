package typecreator

import (
	"fmt"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

// Object owns the pages of a finished build and describes them as a variable:
//
//	scalar                   ""
//	vector                   A<n>
//	matrix in one page       A<r>A<c>
//	matrix across pages      A<r>P<c>   (auxiliary page of row addresses)
//	sparse matrix            A<r>V      (auxiliary page of vector headers)
type Object struct {
	space    *memory.Space
	pages    Pages
	leaf     typedesc.Descriptor
	elemSize uint64
	shape    Shape
	rows     []row
	strings  []memory.Address

	aux  memory.Address
	root memory.Address
	desc vardesc.Descriptor
}

func (r row) addr() memory.Address {
	if r.page == nil {
		return memory.Nil
	}
	return r.page.Addr + memory.Address(r.offset)
}

func (o *Object) materialise() errflags.Flags {
	var modifiers string
	switch o.shape {
	case ShapeScalar, ShapeVector:
		r := o.rows[0]
		if r.page == nil {
			o.aux, _ = o.space.Alloc(0)
			o.root = o.aux
		} else {
			o.root = r.addr()
		}
		if o.shape == ShapeVector {
			modifiers = fmt.Sprintf("A%d", r.n)
		}
	case ShapeMatrix:
		cols := o.rows[0].n
		switch {
		case cols == 0:
			o.aux, _ = o.space.Alloc(0)
			o.root = o.aux
			modifiers = fmt.Sprintf("A%dA0", len(o.rows))
		case o.singlePage():
			o.root = o.rows[0].addr()
			modifiers = fmt.Sprintf("A%dA%d", len(o.rows), cols)
		default:
			o.aux, _ = o.space.Alloc(uint64(len(o.rows)) * memory.PointerSize)
			for i, r := range o.rows {
				if err := o.space.WritePointer(o.aux+memory.Address(i*memory.PointerSize), r.addr()); err != nil {
					return errflags.FatalError
				}
			}
			o.root = o.aux
			modifiers = fmt.Sprintf("A%dP%d", len(o.rows), cols)
		}
	case ShapeSparseMatrix:
		o.aux, _ = o.space.Alloc(uint64(len(o.rows)) * memory.VectorHeaderSize)
		for i, r := range o.rows {
			if err := o.space.WriteVector(o.aux+memory.Address(i*memory.VectorHeaderSize), r.addr(), r.n); err != nil {
				return errflags.FatalError
			}
		}
		o.root = o.aux
		modifiers = fmt.Sprintf("A%dV", len(o.rows))
	default:
		return errflags.InternalStateError
	}
	for _, r := range o.rows {
		if ret := o.deepAddress(r); ret != errflags.None {
			return ret
		}
	}
	o.desc = vardesc.New(o.leaf, modifiers)
	return errflags.None
}

func (o *Object) singlePage() bool {
	first := o.rows[0]
	stride := uint64(first.n) * o.elemSize
	for i, r := range o.rows {
		if r.page != first.page || r.offset != first.offset+uint64(i)*stride {
			return false
		}
	}
	return true
}

// deepAddress checks that the whole row lies inside the page it was built in.
func (o *Object) deepAddress(r row) errflags.Flags {
	if r.n == 0 {
		return errflags.None
	}
	addr := r.addr()
	base, size, err := o.space.SegmentOf(addr)
	if err != nil || base != r.page.Addr {
		return errflags.FatalError
	}
	if uint64(addr-base)+uint64(r.n)*o.elemSize > size {
		return errflags.FatalError
	}
	return errflags.None
}

// Variable describes the object in its space.
func (o *Object) Variable() vardesc.Variable {
	return vardesc.At(o.space, o.root, o.desc)
}

func (o *Object) Shape() Shape { return o.shape }
func (o *Object) Leaf() typedesc.Descriptor { return o.leaf }
func (o *Object) Space() *memory.Space { return o.space }

// NumberOfRows is 1 for scalars and vectors.
func (o *Object) NumberOfRows() int { return len(o.rows) }

// RowLengths reads back the element count of every row. Sparse matrices are
// read through their vector headers.
func (o *Object) RowLengths() ([]uint32, error) {
	out := make([]uint32, len(o.rows))
	for i, r := range o.rows {
		if o.shape != ShapeSparseMatrix {
			out[i] = r.n
			continue
		}
		_, n, err := o.space.ReadVector(o.aux + memory.Address(i*memory.VectorHeaderSize))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (o *Object) NumberOfElements() uint64 {
	var n uint64
	for _, r := range o.rows {
		n += uint64(r.n)
	}
	return n
}

// Row returns the raw element bytes of row i.
func (o *Object) Row(i int) ([]byte, error) {
	if i < 0 || i >= len(o.rows) {
		return nil, fmt.Errorf("row %d of %d: %w", i, len(o.rows), memory.ErrOutOfBounds)
	}
	r := o.rows[i]
	if r.n == 0 {
		return nil, nil
	}
	return o.space.Bytes(r.addr(), uint64(r.n)*o.elemSize)
}

// Element returns the raw bytes of one element.
func (o *Object) Element(i, j int) ([]byte, error) {
	b, err := o.Row(i)
	if err != nil {
		return nil, err
	}
	es := int(o.elemSize)
	if j < 0 || (j+1)*es > len(b) {
		return nil, fmt.Errorf("element %d,%d: %w", i, j, memory.ErrOutOfBounds)
	}
	return b[j*es : (j+1)*es], nil
}

// Text reads a CCString element.
func (o *Object) Text(i, j int) (string, error) {
	if o.leaf.Type != typedesc.CCString {
		return "", fmt.Errorf("leaf %s is not a string", o.leaf)
	}
	b, err := o.Element(i, j)
	if err != nil {
		return "", err
	}
	return o.space.CString(memory.Address(common.LoadUint(b, memory.PointerSize)))
}

// Release unmaps the pages, the auxiliary page and any string elements.
func (o *Object) Release() {
	_ = o.pages.Clean()
	if o.aux != memory.Nil {
		_ = o.space.Free(o.aux)
		o.aux = memory.Nil
	}
	for _, addr := range o.strings {
		_ = o.space.Free(addr)
	}
	o.strings = nil
	o.rows = nil
	o.root = memory.Nil
}

package conversion

import (
	"github.com/rawbytedev/typeconv/pkg/classreg"
	"github.com/rawbytedev/typeconv/pkg/dimension"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

// Copy converts src into dst layer by layer. Vectors and dynamic zero
// terminated arrays in dst are reallocated to the source element count.
func (m *Manager) Copy(dst, src vardesc.Variable) errflags.Flags {
	return (&walker{m: m}).run(dst, src)
}

// CopyDetached is Copy with CCString leaves written as new text in dst's
// space, so dst keeps no reference into src's space.
func (m *Manager) CopyDetached(dst, src vardesc.Variable) errflags.Flags {
	return (&walker{m: m, detach: true}).run(dst, src)
}

// Compare reports ComparisonFailure when a differs from what copying b into
// it would produce. Neither side is modified.
func (m *Manager) Compare(a, b vardesc.Variable) errflags.Flags {
	return (&walker{m: m, compare: true}).run(a, b)
}

type walker struct {
	m       *Manager
	compare bool
	// detach makes string leaves own their text instead of sharing it.
	detach bool
}

func (w *walker) run(dst, src vardesc.Variable) errflags.Flags {
	if !dst.Desc.IsValid() || !src.Desc.IsValid() || dst.Ref.Space == nil || src.Ref.Space == nil {
		return errflags.InvalidOperation
	}
	if !w.compare && dst.Desc.TypeDescriptor().Const {
		return errflags.IllegalOperation
	}
	if vo := w.m.GetVariableOperator(dst.Desc, src.Desc, w.compare); vo != nil {
		defer vo.Close()
		return vo.Convert(dst, src)
	}
	dh, sh := dst.Desc.Handler(), src.Desc.Handler()
	op := w.operator(dh.Leaf(), sh.Leaf())
	if op == nil {
		w.m.logger.Debug("no conversion", "dst", dst.Desc.String(), "src", src.Desc.String())
		return errflags.UnsupportedFeature
	}
	defer op.Close()
	if dh.Leaf().IsStream() || sh.Leaf().IsStream() {
		return w.flat(op, dst, src)
	}
	if ret := dh.HasSameDimensionsAs(sh); ret != errflags.None {
		return ret
	}
	return w.walk(op, dh, sh, 0, dst.Ref, src.Ref, 0, 0)
}

func (w *walker) operator(dl, sl typedesc.Descriptor) Operator {
	if w.detach && dl.Type == typedesc.CCString && sl.IsCharString() {
		return &textOp{dst: dl, src: sl, compare: w.compare, policy: w.m.policy}
	}
	if op := w.m.GetOperator(dl, sl, w.compare); op != nil {
		return op
	}
	if dl.IsStructuredData() && sl.IsStructuredData() && dl.ClassID == sl.ClassID {
		if class, ok := w.m.registry.ByID(dl.ClassID); ok {
			return &memberOp{w: w, class: class}
		}
	}
	return nil
}

// flat handles a scalar stream facing an inline variable: the stream is
// read or written once per inline element.
func (w *walker) flat(op Operator, dst, src vardesc.Variable) errflags.Flags {
	var streamSide vardesc.Descriptor
	var other *dimension.Handler
	switch {
	case dst.Desc.TypeDescriptor().IsStream() && src.Desc.TypeDescriptor().IsStream():
		if !dst.Desc.IsScalar() || !src.Desc.IsScalar() {
			return errflags.UnsupportedFeature
		}
		return op.Convert(dst.Ref, src.Ref, 1)
	case dst.Desc.TypeDescriptor().IsStream():
		streamSide, other = dst.Desc, src.Desc.Handler()
	default:
		streamSide, other = src.Desc, dst.Desc.Handler()
	}
	leaf := uint64(other.Leaf().StorageSize())
	if !streamSide.IsScalar() || !other.IsInline(0) || leaf == 0 {
		return errflags.UnsupportedFeature
	}
	return op.Convert(dst.Ref, src.Ref, uint32(other.Footprint()/leaf))
}

func (w *walker) walk(op Operator, dh, sh *dimension.Handler, layer int, dst, src memory.Ref, des, ses uint64) errflags.Flags {
	ds, ret := dh.UpdatePointerAndSize(dst.Space, layer, dst.Addr, des)
	if !ret.ErrorsCleared() {
		return ret
	}
	ss, r := sh.UpdatePointerAndSize(src.Space, layer, src.Addr, ses)
	ret |= r
	if !r.ErrorsCleared() {
		return ret
	}
	if dh.Layer(layer).Kind == dimension.KindTerminal {
		return ret | op.Convert(dst.At(ds.Ptr), src.At(ss.Ptr), 1)
	}
	if ds.NumberOfElements != ss.NumberOfElements {
		if w.compare {
			return ret | errflags.ComparisonFailure
		}
		var f errflags.Flags
		ds, f = w.resize(dh, sh, layer, dst, ds, ss)
		ret |= f
		if !f.ErrorsCleared() {
			return ret
		}
	}
	n := min(ds.NumberOfElements, ss.NumberOfElements)
	if n == 0 {
		return ret
	}
	if dh.IsInline(layer+1) && sh.IsInline(layer+1) {
		dl, sl := uint64(dh.Leaf().StorageSize()), uint64(sh.Leaf().StorageSize())
		// both blocks must hold the same number of leaves
		if dl != 0 && sl != 0 && ds.ElementSize/dl == ss.ElementSize/sl {
			per := ds.ElementSize / dl
			return ret | op.Convert(dst.At(ds.Ptr), src.At(ss.Ptr), n*uint32(per))
		}
	}
	for i := uint64(0); i < uint64(n); i++ {
		r := w.walk(op, dh, sh, layer+1,
			dst.At(ds.Ptr+memory.Address(i*ds.ElementSize)),
			src.At(ss.Ptr+memory.Address(i*ss.ElementSize)),
			ds.ElementSize, ss.ElementSize)
		ret |= r
		if stop(r, w.m.policy) {
			break
		}
	}
	return ret
}

// resize makes the destination layer hold as many elements as the source.
// Only layers that own their storage can change size.
func (w *walker) resize(dh, sh *dimension.Handler, layer int, dst memory.Ref, ds, ss dimension.Step) (dimension.Step, errflags.Flags) {
	space := dst.Space
	n := ss.NumberOfElements
	l := dh.Layer(layer)
	switch l.Kind {
	case dimension.KindVector:
		addr := memory.Nil
		if n > 0 {
			addr, _ = space.Alloc(uint64(n) * ds.ElementSize)
		}
		if err := space.WriteVector(dst.Addr, addr, n); err != nil {
			return ds, fatal
		}
		ds.Ptr, ds.NumberOfElements = addr, n

	case dimension.KindDynamicZTA:
		addr, _ := space.Alloc(uint64(n+1) * ds.ElementSize)
		if err := space.WritePointer(dst.Addr, addr); err != nil {
			return ds, fatal
		}
		if ds.Ptr != memory.Nil {
			_ = space.Free(ds.Ptr)
		}
		ds.Ptr, ds.NumberOfElements = addr, n

	case dimension.KindStaticZTA:
		ret := errflags.None
		if n >= l.Count {
			n = l.Count - 1
			ret = errflags.OutOfRange
		}
		term, err := space.Bytes(ds.Ptr+memory.Address(uint64(n)*ds.ElementSize), ds.ElementSize)
		if err != nil {
			return ds, fatal
		}
		clear(term)
		ds.NumberOfElements = n
		return ds, ret

	case dimension.KindMatrix:
		inner := sh.Layer(layer + 1).ElementSize
		if !sh.IsInline(layer+1) || inner == 0 {
			return ds, errflags.InvalidOperation
		}
		cols := ss.ElementSize / inner
		rowSize := cols * dh.Layer(layer+1).ElementSize
		addr := memory.Nil
		if n > 0 && cols > 0 {
			addr, _ = space.Alloc(uint64(n) * rowSize)
		}
		if err := space.WriteMatrix(dst.Addr, addr, n, uint32(cols)); err != nil {
			return ds, fatal
		}
		ds.Ptr, ds.NumberOfElements, ds.ElementSize = addr, n, rowSize

	default:
		return ds, errflags.InvalidOperation
	}
	return ds, errflags.None
}

// memberOp walks records of one class member by member.
type memberOp struct {
	nopCloser
	w     *walker
	class *classreg.Class
}

func (o *memberOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	td := o.class.TypeDescriptor()
	ret := errflags.None
	for i := uint64(0); i < uint64(n); i++ {
		d := vardesc.At(dst.Space, dst.Addr+memory.Address(i*o.class.Size), vardesc.FromTypeDescriptor(td))
		s := vardesc.At(src.Space, src.Addr+memory.Address(i*o.class.Size), vardesc.FromTypeDescriptor(td))
		for _, mem := range o.class.Members {
			r := o.w.run(mem.Variable(d), mem.Variable(s))
			ret |= r
			if stop(r, o.w.m.policy) {
				return ret
			}
		}
	}
	return ret
}

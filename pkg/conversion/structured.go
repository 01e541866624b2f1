package conversion

import (
	"bytes"

	"github.com/rawbytedev/typeconv/pkg/classreg"
	"github.com/rawbytedev/typeconv/pkg/dimension"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/stream"
	"github.com/rawbytedev/typeconv/pkg/structparse"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

// StructuredFactory fills records from JSON, XML, YAML or CDB text. The
// grammar is the Format tag of the source, or of the destination when the
// source has none.
type StructuredFactory struct {
	Manager *Manager
}

func (f StructuredFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if f.Manager == nil || !dst.IsStructuredData() || !textual(src) {
		return nil
	}
	grammar := src.Format
	if grammar == typedesc.FormatNone {
		grammar = dst.Format
	}
	if grammar == typedesc.FormatNone {
		return nil
	}
	return &structuredOp{m: f.Manager, dst: dst, src: src, grammar: grammar, compare: isCompare}
}

type structuredOp struct {
	nopCloser
	m        *Manager
	dst, src typedesc.Descriptor
	grammar  typedesc.Format
	compare  bool
}

func (o *structuredOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	class, ok := o.m.registry.ByID(o.dst.ClassID)
	if !ok {
		return errflags.UnsupportedFeature
	}
	w := &walker{m: o.m, compare: o.compare, detach: true}
	ret := errflags.None
	for i := uint64(0); i < uint64(n); i++ {
		cell := src.Offset(i * strideOf(o.src))
		rec := vardesc.At(dst.Space, dst.Addr+memory.Address(i*class.Size), vardesc.FromTypeDescriptor(o.dst))
		r := o.one(w, class, rec, cell)
		ret |= r
		if stop(r, o.m.policy) {
			break
		}
	}
	return ret
}

// one opens the text of cell as a stream, parses it and fills rec.
func (o *structuredOp) one(w *walker, class *classreg.Class, rec vardesc.Variable, cell memory.Ref) errflags.Flags {
	b, err := cell.Bytes(uint64(o.src.StorageSize()))
	if err != nil {
		return fatal
	}
	var in stream.Stream
	if o.src.IsStream() {
		s, ret := streamAt(cell.Space, b)
		if ret != errflags.None {
			return ret
		}
		if !s.CanRead() {
			return errflags.UnsupportedFeature
		}
		in = s
	} else {
		text, ret := readText(cell.Space, o.src, b)
		if ret != errflags.None {
			return ret
		}
		in = stream.NewReadOnly([]byte(text))
	}
	root, err := structparse.Parse(o.grammar, in, rec.Ref.Space)
	if err != nil {
		o.m.logger.Debug("structured text rejected", "format", o.grammar.String(), "class", class.Name, "error", err)
		return errflags.FatalError | errflags.SyntaxError
	}
	defer root.Release()
	return w.fill(class, rec, root)
}

// fill converts the children of node into the members of rec. Missing
// members raise a Warning and keep their value.
func (w *walker) fill(class *classreg.Class, rec vardesc.Variable, node *structparse.Node) errflags.Flags {
	ret := errflags.None
	for _, mem := range class.Members {
		child := node.ChildFold(mem.Name)
		if child == nil {
			ret |= errflags.Warning
			continue
		}
		mv := mem.Variable(rec)
		td := mem.Desc.TypeDescriptor()
		var r errflags.Flags
		switch {
		case td.IsStructuredData() && mem.Desc.IsScalar():
			sub, ok := w.m.registry.ByID(td.ClassID)
			if !ok {
				return ret | errflags.UnsupportedFeature
			}
			r = w.fill(sub, mv, child)
		case child.IsLeaf():
			leaf := child.Variable()
			if leaf.Desc.IsScalar() && mem.Desc.Handler().NumberOfDimensions() == 1 && !charArray(mem.Desc) {
				// a one element list reads back as a scalar
				leaf.Desc = vardesc.New(leaf.Desc.TypeDescriptor(), "A1")
			}
			r = w.run(mv, leaf)
		case len(child.Children) == 0:
			r = errflags.Warning
		default:
			r = errflags.InvalidOperation
		}
		ret |= r
		if stop(r, w.m.policy) {
			break
		}
	}
	return ret
}

// CharArrayFactory converts between strings and fixed char arrays such as
// [16]vardesc.Char. Arrays keep a terminator, so at most n-1 characters are
// stored and longer text raises OutOfRange.
type CharArrayFactory struct{}

func (CharArrayFactory) GetOperator(typedesc.Descriptor, typedesc.Descriptor, bool) Operator {
	return nil
}

func (CharArrayFactory) GetVariableOperator(dst, src vardesc.Descriptor, isCompare bool) VariableOperator {
	switch {
	case charArray(dst) && stringScalar(src):
		return &charArrayOp{toArray: true, compare: isCompare}
	case stringScalar(dst) && charArray(src):
		return &charArrayOp{compare: isCompare}
	}
	return nil
}

func charArray(d vardesc.Descriptor) bool {
	h := d.Handler()
	return h.Leaf().Type == typedesc.Char && h.Leaf().Size == 1 &&
		h.NumberOfDimensions() == 1 && h.Layer(0).Kind == dimension.KindArray && h.Layer(0).Count > 0
}

func stringScalar(d vardesc.Descriptor) bool {
	return d.IsScalar() && d.TypeDescriptor().IsCharString()
}

type charArrayOp struct {
	nopCloser
	toArray bool
	compare bool
}

func arrayText(arr []byte) string {
	if i := bytes.IndexByte(arr, 0); i >= 0 {
		return string(arr[:i])
	}
	return string(arr)
}

func (o *charArrayOp) Convert(dst, src vardesc.Variable) errflags.Flags {
	db, err := dst.Bytes()
	if err != nil {
		return fatal
	}
	sb, err := src.Bytes()
	if err != nil {
		return fatal
	}
	if o.toArray {
		text, ret := readText(src.Ref.Space, src.Desc.TypeDescriptor(), sb)
		if ret != errflags.None {
			return ret
		}
		as := typedesc.StaticCStringOf(uint32(len(db)))
		if o.compare {
			if arrayText(db) != fitText(as, text) {
				return errflags.ComparisonFailure
			}
			return errflags.None
		}
		clear(db)
		return writeText(dst.Ref.Space, as, db, text)
	}
	text := arrayText(sb)
	td := dst.Desc.TypeDescriptor()
	if o.compare {
		have, ret := readText(dst.Ref.Space, td, db)
		if ret != errflags.None {
			return ret
		}
		if have != fitText(td, text) {
			return errflags.ComparisonFailure
		}
		return errflags.None
	}
	return writeText(dst.Ref.Space, td, db, text)
}

package conversion

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/format"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/numparse"
	"github.com/rawbytedev/typeconv/pkg/stream"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

// textual reports leaves that hold text: strings and stream handles.
func textual(td typedesc.Descriptor) bool {
	return td.IsValid() && (td.IsCharString() || td.IsStream())
}

func streamAt(space *memory.Space, cell []byte) (stream.Stream, errflags.Flags) {
	obj, err := space.Object(memory.Address(common.LoadUint(cell, memory.PointerSize)))
	if err != nil {
		return nil, fatal
	}
	s, ok := obj.(stream.Stream)
	if !ok {
		return nil, errflags.UnsupportedFeature
	}
	return s, errflags.None
}

// readText returns the text of one string element. A NULL string reads as
// empty; a static string without terminator is a FatalError.
func readText(space *memory.Space, td typedesc.Descriptor, b []byte) (string, errflags.Flags) {
	switch td.Type {
	case typedesc.CCString, typedesc.DynamicCString:
		addr := memory.Address(common.LoadUint(b, memory.PointerSize))
		if addr == memory.Nil {
			return "", errflags.None
		}
		s, err := space.CString(addr)
		if err != nil {
			return "", fatal
		}
		return s, errflags.None
	case typedesc.StaticCString:
		i := bytes.IndexByte(b, 0)
		if i < 0 {
			return "", errflags.FatalError
		}
		return string(b[:i]), errflags.None
	}
	return "", errflags.UnsupportedFeature
}

// writeText stores s into one string element. CCString elements get a new
// segment, DynamicCString elements reuse theirs when it is large enough and
// static strings truncate with OutOfRange.
func writeText(space *memory.Space, td typedesc.Descriptor, b []byte, s string) errflags.Flags {
	switch td.Type {
	case typedesc.CCString:
		common.StoreUint(b, memory.PointerSize, uint64(space.AllocString(s)))
		return errflags.None
	case typedesc.DynamicCString:
		old := memory.Address(common.LoadUint(b, memory.PointerSize))
		if old != memory.Nil {
			if buf, err := space.Resize(old, uint64(len(s))+1); err == nil {
				copy(buf, s)
				buf[len(s)] = 0
				return errflags.None
			}
		}
		n := uint64(len(s)) + 1
		addr, buf := space.AllocCap(n, max(2*n, 16))
		copy(buf, s)
		common.StoreUint(b, memory.PointerSize, uint64(addr))
		if old != memory.Nil {
			_ = space.Free(old)
		}
		return errflags.None
	case typedesc.StaticCString:
		sink := format.NewFixedSink(b)
		_, _ = io.WriteString(sink, s)
		_ = sink.Close()
		if sink.Truncated {
			return errflags.OutOfRange
		}
		return errflags.None
	}
	return errflags.UnsupportedFeature
}

// fitText is what a static string of td would keep of s.
func fitText(td typedesc.Descriptor, s string) string {
	if td.Type == typedesc.StaticCString && len(s) >= int(td.Size) {
		return s[:td.Size-1]
	}
	return s
}

// textSource yields one text per element: whole strings, or successive white
// space tokens when the source is a stream.
type textSource struct {
	space *memory.Space
	td    typedesc.Descriptor
}

func (t textSource) next(cell []byte) (string, errflags.Flags) {
	if !t.td.IsStream() {
		return readText(t.space, t.td, cell)
	}
	s, ret := streamAt(t.space, cell)
	if ret != errflags.None {
		return "", ret
	}
	if !s.CanRead() {
		return "", errflags.UnsupportedFeature
	}
	tok, err := stream.NextToken(s)
	switch {
	case errors.Is(err, io.EOF):
		return "", errflags.IllegalOperation
	case err != nil:
		return "", errflags.FatalError
	}
	return tok, errflags.None
}

// textSink stores one text per element. Streams receive the texts separated
// by a space.
type textSink struct {
	space *memory.Space
	td    typedesc.Descriptor
	wrote bool
}

func (t *textSink) put(cell []byte, s string) errflags.Flags {
	if !t.td.IsStream() {
		return writeText(t.space, t.td, cell, s)
	}
	st, ret := streamAt(t.space, cell)
	if ret != errflags.None {
		return ret
	}
	if !st.CanWrite() {
		return errflags.UnsupportedFeature
	}
	w := format.NewWriter(st)
	if t.wrote {
		_ = w.WriteByte(' ')
	}
	_, _ = w.WriteString(s)
	if err := w.Flush(); err != nil {
		return errflags.FatalError
	}
	t.wrote = true
	return errflags.None
}

// current is the text a compare checks against. Streams are read token by
// token like a source.
func (t *textSink) current(cell []byte) (string, errflags.Flags) {
	return textSource{space: t.space, td: t.td}.next(cell)
}

// parseInto converts a text token into one numeric element.
func parseInto(td typedesc.Descriptor, tok string) (number, errflags.Flags) {
	bits := int(td.Size * 8)
	if td.IsBitType() {
		bits = 64
	}
	switch {
	case td.IsFloat():
		f, ret := numparse.ParseFloat(tok, bits)
		return floating(f), ret
	case td.Type == typedesc.SignedInteger:
		v, ret := numparse.ParseInt(tok, bits)
		return signed(v), ret
	}
	u, ret := numparse.ParseUint(tok, bits)
	return unsigned(u), ret
}

// textToNumberOp parses text into numbers. A failed parse leaves the
// destination element untouched.
type textToNumberOp struct {
	nopCloser
	dst, src typedesc.Descriptor
	compare  bool
	policy   ComparePolicy
}

func (o *textToNumberOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	in := textSource{space: src.Space, td: o.src}
	return each(dst, src, n, o.dst, o.src, o.policy, func(d, s []byte) errflags.Flags {
		tok, ret := in.next(s)
		if ret != errflags.None {
			return ret
		}
		v, ret := parseInto(o.dst, tok)
		if !ret.ErrorsCleared() {
			return ret
		}
		if o.compare {
			return ret | compareNumber(o.dst, d, v)
		}
		return ret | storeNumber(o.dst, d, v)
	})
}

// StringToNumberFactory parses strings and streams into numeric leaves.
type StringToNumberFactory struct {
	Policy ComparePolicy
}

func (f StringToNumberFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if !numericLeaf(dst) || !textual(src) {
		return nil
	}
	return &textToNumberOp{dst: dst, src: src, compare: isCompare, policy: f.Policy}
}

// formatNumber renders v through the staging writer.
func formatNumber(td typedesc.Descriptor, v number, d format.Descriptor) string {
	var sb strings.Builder
	w := format.NewWriter(&sb)
	switch v.kind {
	case kindSigned:
		_ = w.WriteInteger(v.i, int(td.NumberOfBits()), d)
	case kindUnsigned:
		_ = w.WriteUnsigned(v.u, d)
	default:
		_ = w.WriteFloat(v.f, int(td.Size*8), d)
	}
	_ = w.Flush()
	return sb.String()
}

type numberToTextOp struct {
	dst, src typedesc.Descriptor
	format   format.Descriptor
	compare  bool
	policy   ComparePolicy
	sink     *textSink
}

func (o *numberToTextOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	if o.sink == nil || o.sink.space != dst.Space {
		o.sink = &textSink{space: dst.Space, td: o.dst}
	}
	return each(dst, src, n, o.dst, o.src, o.policy, func(d, s []byte) errflags.Flags {
		text := formatNumber(o.src, loadNumber(o.src, s), o.format)
		if !o.compare {
			return o.sink.put(d, text)
		}
		have, ret := o.sink.current(d)
		if !ret.ErrorsCleared() {
			return ret
		}
		if have != fitText(o.dst, text) {
			ret |= errflags.ComparisonFailure
		}
		return ret
	})
}

func (o *numberToTextOp) Close() error {
	o.sink = nil
	return nil
}

// NumberToStringFactory formats numeric leaves into strings and streams.
type NumberToStringFactory struct {
	Policy ComparePolicy
	// Format applies to every produced text; the zero value means format.Default.
	Format *format.Descriptor
}

func (f NumberToStringFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if !textual(dst) || !numericLeaf(src) {
		return nil
	}
	d := format.Default
	if f.Format != nil {
		d = *f.Format
	}
	return &numberToTextOp{dst: dst, src: src, format: d, compare: isCompare, policy: f.Policy}
}

type textOp struct {
	dst, src typedesc.Descriptor
	compare  bool
	policy   ComparePolicy
	sink     *textSink
}

func (o *textOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	if o.dst.IsStream() && o.src.IsStream() {
		return o.pipe(dst, src)
	}
	if o.sink == nil || o.sink.space != dst.Space {
		o.sink = &textSink{space: dst.Space, td: o.dst}
	}
	in := textSource{space: src.Space, td: o.src}
	return each(dst, src, n, o.dst, o.src, o.policy, func(d, s []byte) errflags.Flags {
		text, ret := in.next(s)
		if !ret.ErrorsCleared() {
			return ret
		}
		if !o.compare {
			return ret | o.sink.put(d, text)
		}
		have, r := o.sink.current(d)
		ret |= r
		if r.ErrorsCleared() && have != fitText(o.dst, text) {
			ret |= errflags.ComparisonFailure
		}
		return ret
	})
}

// pipe moves the rest of one stream into another, or compares both rests.
func (o *textOp) pipe(dst, src memory.Ref) errflags.Flags {
	dc, err := dst.Bytes(memory.PointerSize)
	if err != nil {
		return fatal
	}
	sc, err := src.Bytes(memory.PointerSize)
	if err != nil {
		return fatal
	}
	out, ret := streamAt(dst.Space, dc)
	if ret != errflags.None {
		return ret
	}
	in, ret := streamAt(src.Space, sc)
	if ret != errflags.None {
		return ret
	}
	if !in.CanRead() {
		return errflags.UnsupportedFeature
	}
	if o.compare {
		if !out.CanRead() {
			return errflags.UnsupportedFeature
		}
		a, errA := io.ReadAll(out)
		b, errB := io.ReadAll(in)
		if errA != nil || errB != nil {
			return errflags.FatalError
		}
		if !bytes.Equal(a, b) {
			return errflags.ComparisonFailure
		}
		return errflags.None
	}
	if !out.CanWrite() {
		return errflags.UnsupportedFeature
	}
	if _, err := io.Copy(out, in); err != nil {
		return errflags.FatalError
	}
	return errflags.None
}

func (o *textOp) Close() error {
	o.sink = nil
	return nil
}

// StringToStringFactory copies text between any two string or stream leaves
// of different representation.
type StringToStringFactory struct {
	Policy ComparePolicy
}

func (f StringToStringFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if !textual(dst) || !textual(src) {
		return nil
	}
	return &textOp{dst: dst, src: src, compare: isCompare, policy: f.Policy}
}

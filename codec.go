package typeconv

import (
	"fmt"
	"reflect"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/classreg"
	"github.com/rawbytedev/typeconv/pkg/dimension"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

type shape uint8

const (
	shapeFixed shape = iota
	shapeString
	shapeArray
	shapePointer
	shapeVector
	shapeZTA
	shapeMatrix
	shapeStruct
)

// plan is the cached layout of one Go type.
type plan struct {
	shape shape
	kind  reflect.Kind
	desc  vardesc.Descriptor
	size  uint64
	// count is the array length, or the element count behind a pointer.
	count  int
	elem   *plan
	fields []fieldPlan
}

type fieldPlan struct {
	index  int
	offset uint64
	plan   *plan
}

func (e *Engine) plan(t reflect.Type) (*plan, error) {
	e.mu.RLock()
	if p, ok := e.plans[t]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	// Double-check
	if p, ok := e.plans[t]; ok {
		return p, nil
	}
	return e.build(t)
}

// build runs with e.mu held.
func (e *Engine) build(t reflect.Type) (*plan, error) {
	if p, ok := e.plans[t]; ok {
		return p, nil
	}
	desc, err := e.registry.Describe(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	p := &plan{kind: t.Kind(), desc: desc, size: desc.Footprint()}
	sub := func(rt reflect.Type) error {
		p.elem, err = e.build(rt)
		return err
	}
	h := desc.Handler()
	first := h.Layer(0)
	switch {
	case h.NumberOfDimensions() == 0 && desc.TypeDescriptor().IsStructuredData():
		class, err := e.registry.Register(t)
		if err != nil {
			return nil, err
		}
		p.shape = shapeStruct
		for _, m := range class.Members {
			fp, err := e.build(t.Field(m.Index).Type)
			if err != nil {
				return nil, err
			}
			p.fields = append(p.fields, fieldPlan{index: m.Index, offset: m.Offset, plan: fp})
		}
	case h.NumberOfDimensions() == 0 && t.Kind() == reflect.String:
		p.shape = shapeString
	case h.NumberOfDimensions() == 0 && common.IsFixedKind(t.Kind()):
		p.shape = shapeFixed
	case first.Kind == dimension.KindMatrix:
		p.shape = shapeMatrix
		err = sub(matrixData(t).Elem())
	case first.Kind == dimension.KindZTA:
		p.shape = shapeZTA
		err = sub(t.Elem())
	case first.Kind == dimension.KindVector:
		p.shape = shapeVector
		err = sub(t.Elem())
	case first.Kind == dimension.KindArray:
		p.shape, p.count = shapeArray, t.Len()
		err = sub(t.Elem())
	case first.Kind == dimension.KindPointer && t.Elem().Kind() == reflect.Array:
		p.shape, p.count = shapePointer, t.Elem().Len()
		err = sub(t.Elem().Elem())
	case first.Kind == dimension.KindPointer:
		p.shape, p.count = shapePointer, 1
		err = sub(t.Elem())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	if err != nil {
		return nil, err
	}
	e.plans[t] = p
	return p, nil
}

func matrixData(t reflect.Type) reflect.Type {
	f, _ := t.FieldByName("Data")
	return f.Type
}

// Encode allocates the footprint of value in space and writes value into it.
// Strings, slices and pointers get their own segments.
func (e *Engine) Encode(space *memory.Space, value any) (vardesc.Variable, error) {
	rt, err := valueType(value)
	if err != nil {
		return vardesc.Variable{}, err
	}
	p, err := e.plan(rt)
	if err != nil {
		return vardesc.Variable{}, err
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer && rt.Kind() == reflect.Struct {
		if v.IsNil() {
			return vardesc.Variable{}, ErrNilValue
		}
		v = v.Elem()
	}
	addr, _ := space.Alloc(p.size)
	if err := encode(space, addr, p, v); err != nil {
		return vardesc.Variable{}, err
	}
	return vardesc.At(space, addr, p.desc), nil
}

func encode(space *memory.Space, addr memory.Address, p *plan, v reflect.Value) error {
	switch p.shape {
	case shapeFixed:
		b, err := space.Bytes(addr, p.size)
		if err != nil {
			return err
		}
		common.PutFixed(b, v)
	case shapeString:
		return space.WritePointer(addr, space.AllocString(v.String()))
	case shapeStruct:
		for _, f := range p.fields {
			if err := encode(space, addr+memory.Address(f.offset), f.plan, v.Field(f.index)); err != nil {
				return err
			}
		}
	case shapeArray:
		return encodeElems(space, addr, p.elem, v, p.count)
	case shapePointer:
		if v.IsNil() {
			return space.WritePointer(addr, memory.Nil)
		}
		data, _ := space.Alloc(uint64(p.count) * p.elem.size)
		target := v.Elem()
		var err error
		if p.count == 1 && target.Kind() != reflect.Array {
			err = encode(space, data, p.elem, target)
		} else {
			err = encodeElems(space, data, p.elem, target, p.count)
		}
		if err != nil {
			return err
		}
		return space.WritePointer(addr, data)
	case shapeVector:
		if v.IsNil() {
			return space.WriteVector(addr, memory.Nil, 0)
		}
		data, _ := space.Alloc(uint64(v.Len()) * p.elem.size)
		if err := encodeElems(space, data, p.elem, v, v.Len()); err != nil {
			return err
		}
		return space.WriteVector(addr, data, uint32(v.Len()))
	case shapeZTA:
		if v.IsNil() {
			return space.WritePointer(addr, memory.Nil)
		}
		// the extra zeroed element is the terminator
		data, _ := space.Alloc(uint64(v.Len()+1) * p.elem.size)
		if err := encodeElems(space, data, p.elem, v, v.Len()); err != nil {
			return err
		}
		return space.WritePointer(addr, data)
	case shapeMatrix:
		rows, cols := int(v.FieldByName("Rows").Int()), int(v.FieldByName("Cols").Int())
		elems := v.FieldByName("Data")
		if rows < 0 || cols < 0 || rows*cols != elems.Len() {
			return ErrShape
		}
		data, _ := space.Alloc(uint64(elems.Len()) * p.elem.size)
		if err := encodeElems(space, data, p.elem, elems, elems.Len()); err != nil {
			return err
		}
		return space.WriteMatrix(addr, data, uint32(rows), uint32(cols))
	}
	return nil
}

func encodeElems(space *memory.Space, addr memory.Address, elem *plan, v reflect.Value, n int) error {
	for i := 0; i < n; i++ {
		if err := encode(space, addr+memory.Address(uint64(i)*elem.size), elem, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads v into out, which must be a non nil pointer. When the type of
// out does not describe v, the value is first converted into a scratch
// variable of the right shape with the engine's operators, so Decode also
// accepts parsed text and other layouts. The scratch lives in its own space
// and leaves v's space as it was. Non fatal conversion flags are returned
// with the decoded value in place.
func (e *Engine) Decode(v vardesc.Variable, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNotPointer
	}
	if v.Ref.Space == nil {
		return errflags.New(errflags.InvalidOperation, "typeconv.Decode", "variable has no space")
	}
	target := rv.Elem()
	p, err := e.plan(target.Type())
	if err != nil {
		return err
	}
	var notices error
	if !p.desc.SameAs(v.Desc) {
		scratch, err := e.Encode(memory.NewSpace(), reflect.Zero(target.Type()).Interface())
		if err != nil {
			return err
		}
		if err := e.report("Decode", e.manager.CopyDetached(scratch, v), scratch, v); err != nil {
			if errflags.IsFatal(err) {
				return err
			}
			notices = err
		}
		v = scratch
	}
	if err := decode(v.Ref.Space, v.Ref.Addr, p, target); err != nil {
		return errflags.Wrap(err, errflags.FatalError, "typeconv", "Decode")
	}
	return notices
}

func decode(space *memory.Space, addr memory.Address, p *plan, v reflect.Value) error {
	switch p.shape {
	case shapeFixed:
		b, err := space.Bytes(addr, p.size)
		if err != nil {
			return err
		}
		common.SetFixed(v, b, p.kind)
	case shapeString:
		ptr, err := space.ReadPointer(addr)
		if err != nil {
			return err
		}
		if ptr == memory.Nil {
			v.SetString("")
			return nil
		}
		s, err := space.CString(ptr)
		if err != nil {
			return err
		}
		v.SetString(s)
	case shapeStruct:
		for _, f := range p.fields {
			if err := decode(space, addr+memory.Address(f.offset), f.plan, v.Field(f.index)); err != nil {
				return err
			}
		}
	case shapeArray:
		return decodeElems(space, addr, p.elem, v, p.count)
	case shapePointer:
		ptr, err := space.ReadPointer(addr)
		if err != nil {
			return err
		}
		if ptr == memory.Nil {
			v.SetZero()
			return nil
		}
		target := reflect.New(v.Type().Elem())
		if p.count == 1 && target.Elem().Kind() != reflect.Array {
			err = decode(space, ptr, p.elem, target.Elem())
		} else {
			err = decodeElems(space, ptr, p.elem, target.Elem(), p.count)
		}
		if err != nil {
			return err
		}
		v.Set(target)
	case shapeVector:
		data, n, err := space.ReadVector(addr)
		if err != nil {
			return err
		}
		if data == memory.Nil {
			v.SetZero()
			return nil
		}
		s := reflect.MakeSlice(v.Type(), int(n), int(n))
		if err := decodeElems(space, data, p.elem, s, int(n)); err != nil {
			return err
		}
		v.Set(s)
	case shapeZTA:
		ptr, err := space.ReadPointer(addr)
		if err != nil {
			return err
		}
		if ptr == memory.Nil {
			v.SetZero()
			return nil
		}
		n, err := space.ScanTerminated(ptr, p.elem.size)
		if err != nil {
			return err
		}
		s := reflect.MakeSlice(v.Type(), int(n), int(n))
		if err := decodeElems(space, ptr, p.elem, s, int(n)); err != nil {
			return err
		}
		v.Set(s)
	case shapeMatrix:
		data, rows, cols, err := space.ReadMatrix(addr)
		if err != nil {
			return err
		}
		n := int(rows) * int(cols)
		elems := reflect.MakeSlice(v.FieldByName("Data").Type(), n, n)
		if n > 0 {
			if err := decodeElems(space, data, p.elem, elems, n); err != nil {
				return err
			}
		}
		v.FieldByName("Rows").SetInt(int64(rows))
		v.FieldByName("Cols").SetInt(int64(cols))
		v.FieldByName("Data").Set(elems)
	}
	return nil
}

func decodeElems(space *memory.Space, addr memory.Address, elem *plan, v reflect.Value, n int) error {
	for i := 0; i < n; i++ {
		if err := decode(space, addr+memory.Address(uint64(i)*elem.size), elem, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// Class registers the struct type of value and returns its layout.
func (e *Engine) Class(value any) (*classreg.Class, error) {
	rt, err := valueType(value)
	if err != nil {
		return nil, err
	}
	return e.registry.Register(rt)
}

package conversion

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/classreg"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/stream"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alloc(space *memory.Space, td typedesc.Descriptor, modifiers string) vardesc.Variable {
	return vardesc.Alloc(space, vardesc.New(td, modifiers))
}

func raw(t *testing.T, v vardesc.Variable) []byte {
	t.Helper()
	b, err := v.Bytes()
	require.NoError(t, err)
	return b
}

func text(space *memory.Space, s string, td typedesc.Descriptor) vardesc.Variable {
	v := alloc(space, td, "")
	b, _ := v.Bytes()
	common.StoreUint(b, memory.PointerSize, uint64(space.AllocString(s)))
	return v
}

func readString(t *testing.T, v vardesc.Variable) string {
	t.Helper()
	s, ret := readText(v.Ref.Space, v.Desc.TypeDescriptor(), raw(t, v))
	require.Equal(t, errflags.None, ret)
	return s
}

func streamVar(space *memory.Space, s stream.Stream) vardesc.Variable {
	v := alloc(space, typedesc.StreamType, "")
	b, _ := v.Bytes()
	common.StoreUint(b, memory.PointerSize, uint64(space.RegisterObject(s)))
	return v
}

func TestTextToInt32AndCompare(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	src := text(space, "132", typedesc.CCStringType)
	dst := alloc(space, typedesc.Int32, "")

	assert.Equal(t, errflags.None, m.Copy(dst, src))
	assert.Equal(t, int64(132), common.LoadInt(raw(t, dst), 4))
	assert.False(t, m.Compare(dst, src).Has(errflags.ComparisonFailure))

	common.StoreUint(raw(t, dst), 4, 131)
	assert.True(t, m.Compare(dst, src).Has(errflags.ComparisonFailure))
	assert.Equal(t, int64(131), common.LoadInt(raw(t, dst), 4))
}

func TestCopyDetachedAcrossSpaces(t *testing.T) {
	from, into := memory.NewSpace(), memory.NewSpace()
	m := Default()
	src := text(from, "motor", typedesc.CCStringType)
	dst := alloc(into, typedesc.CCStringType, "")

	require.Equal(t, errflags.None, m.CopyDetached(dst, src))
	assert.Equal(t, "motor", readString(t, dst))
	assert.Equal(t, 2, into.Len(), "text is owned by the destination space")
	assert.Equal(t, errflags.None, m.Compare(dst, src))
}

func TestNegativeTextIntoUnsignedKeepsDestination(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	dst := alloc(space, typedesc.Uint32, "")
	common.StoreUint(raw(t, dst), 4, 77)

	ret := m.Copy(dst, text(space, "-5", typedesc.CCStringType))
	assert.True(t, ret.Has(errflags.FatalError))
	assert.Equal(t, uint64(77), common.LoadUint(raw(t, dst), 4))

	ret = m.Copy(dst, text(space, "  ", typedesc.CCStringType))
	assert.True(t, ret.Has(errflags.IllegalOperation))
}

type nullFactory struct{}

func (nullFactory) GetOperator(typedesc.Descriptor, typedesc.Descriptor, bool) Operator { return nil }

type taggedOp struct {
	nopCloser
	tag string
}

func (taggedOp) Convert(memory.Ref, memory.Ref, uint32) errflags.Flags { return errflags.None }

type taggedFactory string

func (f taggedFactory) GetOperator(typedesc.Descriptor, typedesc.Descriptor, bool) Operator {
	return &taggedOp{tag: string(f)}
}

func TestNullFactoryNeverSelected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(nullFactory{}))
	assert.Nil(t, m.GetOperator(typedesc.Int32, typedesc.Int8, false))

	space := memory.NewSpace()
	ret := m.Copy(alloc(space, typedesc.Int32, ""), alloc(space, typedesc.Int8, ""))
	assert.Equal(t, errflags.UnsupportedFeature, ret)

	require.NoError(t, m.Register(NumericFactory{}))
	op := m.GetOperator(typedesc.Int32, typedesc.Int8, false)
	require.NotNil(t, op)
	assert.IsType(t, &numberOp{}, op)
}

func TestRegistrationOrderDecides(t *testing.T) {
	for _, order := range [][]string{{"first", "second"}, {"second", "first"}} {
		m := NewManager()
		for _, name := range order {
			require.NoError(t, m.Register(taggedFactory(name)))
		}
		for range 3 {
			op := m.GetOperator(typedesc.Int8, typedesc.Int8, false)
			require.NotNil(t, op)
			assert.Equal(t, order[0], op.(*taggedOp).tag)
		}
	}
}

func TestRegistryLimits(t *testing.T) {
	m := NewManager(WithCapacity(2))
	assert.ErrorIs(t, m.Register(nil), ErrNilFactory)
	require.NoError(t, m.Register(nullFactory{}))
	require.NoError(t, m.Register(CopyFactory{}))
	assert.ErrorIs(t, m.Register(NumericFactory{}), ErrFull)

	m.Clean()
	m.Clean()
	assert.Empty(t, m.Factories())
	require.NoError(t, m.Register(NumericFactory{}))
	m.Freeze()
	assert.True(t, m.Frozen())
	assert.ErrorIs(t, m.Register(CopyFactory{}), ErrFrozen)
	assert.Len(t, m.Factories(), 1)
}

func TestDefaultOrder(t *testing.T) {
	m := Default()
	assert.True(t, m.Frozen())
	fs := m.Factories()
	require.Len(t, fs, 8)
	assert.IsType(t, CopyFactory{}, fs[0])
	assert.IsType(t, BitSetFactory{}, fs[1])
	assert.IsType(t, NumericFactory{}, fs[2])
	assert.IsType(t, StructuredFactory{}, fs[6])
	assert.IsType(t, &copyOp{}, m.GetOperator(typedesc.Int16, typedesc.Int16, false))
}

func TestNumericSaturation(t *testing.T) {
	cases := []struct {
		name     string
		dst, src typedesc.Descriptor
		store    func([]byte)
		want     func(*testing.T, []byte)
		flags    errflags.Flags
	}{
		{"300 to int8", typedesc.Int8, typedesc.Int16,
			func(b []byte) { common.StoreUint(b, 2, 300) },
			func(t *testing.T, b []byte) { assert.Equal(t, int64(127), common.LoadInt(b, 1)) },
			errflags.OutOfRange},
		{"-300 to int8", typedesc.Int8, typedesc.Int32,
			func(b []byte) { common.StoreUint(b, 4, uint64(0xfffffed4)) },
			func(t *testing.T, b []byte) { assert.Equal(t, int64(-128), common.LoadInt(b, 1)) },
			errflags.OutOfRange},
		{"-1 to uint8", typedesc.Uint8, typedesc.Int8,
			func(b []byte) { b[0] = 0xff },
			func(t *testing.T, b []byte) { assert.Equal(t, byte(0), b[0]) },
			errflags.OutOfRange},
		{"max uint64 to int64", typedesc.Int64, typedesc.Uint64,
			func(b []byte) { common.StoreUint(b, 8, math.MaxUint64) },
			func(t *testing.T, b []byte) { assert.Equal(t, int64(math.MaxInt64), common.LoadInt(b, 8)) },
			errflags.OutOfRange},
		{"1e10 to int32", typedesc.Int32, typedesc.Float64,
			func(b []byte) { common.StoreFloat(b, 8, 1e10) },
			func(t *testing.T, b []byte) { assert.Equal(t, int64(math.MaxInt32), common.LoadInt(b, 4)) },
			errflags.OutOfRange},
		{"-2.5 rounds away from zero", typedesc.Int16, typedesc.Float32,
			func(b []byte) { common.StoreFloat(b, 4, -2.5) },
			func(t *testing.T, b []byte) { assert.Equal(t, int64(-3), common.LoadInt(b, 2)) },
			errflags.None},
		{"NaN to uint16", typedesc.Uint16, typedesc.Float64,
			func(b []byte) { common.StoreFloat(b, 8, math.NaN()) },
			func(t *testing.T, b []byte) { assert.Equal(t, uint64(0), common.LoadUint(b, 2)) },
			errflags.OutOfRange},
		{"1e39 to float32", typedesc.Float32, typedesc.Float64,
			func(b []byte) { common.StoreFloat(b, 8, 1e39) },
			func(t *testing.T, b []byte) { assert.Equal(t, float64(math.MaxFloat32), common.LoadFloat(b, 4)) },
			errflags.OutOfRange},
		{"int64 to float64", typedesc.Float64, typedesc.Int64,
			func(b []byte) { common.StoreUint(b, 8, uint64(1<<40)) },
			func(t *testing.T, b []byte) { assert.Equal(t, float64(1<<40), common.LoadFloat(b, 8)) },
			errflags.None},
	}
	m := Default()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			space := memory.NewSpace()
			src := alloc(space, tc.src, "")
			dst := alloc(space, tc.dst, "")
			tc.store(raw(t, src))
			assert.Equal(t, tc.flags, m.Copy(dst, src))
			tc.want(t, raw(t, dst))
		})
	}
}

func TestTextSaturation(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	dst := alloc(space, typedesc.Int8, "")
	assert.Equal(t, errflags.OutOfRange, m.Copy(dst, text(space, "300", typedesc.CCStringType)))
	assert.Equal(t, int64(127), common.LoadInt(raw(t, dst), 1))
}

func TestBitRange(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	nibble := typedesc.BitRange(typedesc.Int16, 4, 4)
	dst := alloc(space, nibble, "")
	common.StoreUint(raw(t, dst), 2, 0xf00f)

	src := alloc(space, typedesc.Int32, "")
	common.StoreUint(raw(t, src), 4, 9)
	assert.Equal(t, errflags.OutOfRange, m.Copy(dst, src))
	assert.Equal(t, uint64(0xf07f), common.LoadUint(raw(t, dst), 2))

	common.StoreUint(raw(t, dst), 2, 0x00d0)
	back := alloc(space, typedesc.Int32, "")
	assert.Equal(t, errflags.None, m.Copy(back, dst))
	assert.Equal(t, int64(-3), common.LoadInt(raw(t, back), 4))
	assert.False(t, m.Compare(dst, back).Has(errflags.ComparisonFailure))
}

func TestNumberToText(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	n := alloc(space, typedesc.Int32, "")
	common.StoreUint(raw(t, n), 4, uint64(0xffffffd6))

	cc := alloc(space, typedesc.CCStringType, "")
	assert.Equal(t, errflags.None, m.Copy(cc, n))
	assert.Equal(t, "-42", readString(t, cc))
	assert.Equal(t, errflags.None, m.Compare(cc, n))

	f := alloc(space, typedesc.Float64, "")
	common.StoreFloat(raw(t, f), 8, 2.5)
	dyn := alloc(space, typedesc.DynamicCStringType, "")
	assert.Equal(t, errflags.None, m.Copy(dyn, f))
	assert.Equal(t, "2.5", readString(t, dyn))
	first := common.LoadUint(raw(t, dyn), 8)
	assert.Equal(t, errflags.None, m.Copy(dyn, n))
	assert.Equal(t, "-42", readString(t, dyn))
	assert.Equal(t, first, common.LoadUint(raw(t, dyn), 8), "segment reused")

	common.StoreUint(raw(t, n), 4, 12345)
	static := alloc(space, typedesc.StaticCStringOf(4), "")
	assert.Equal(t, errflags.OutOfRange, m.Copy(static, n))
	assert.Equal(t, []byte("123\x00"), raw(t, static))
	assert.False(t, m.Compare(static, n).Has(errflags.ComparisonFailure))
}

func TestStreamTokens(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	in := streamVar(space, stream.NewReadOnly([]byte(" 1\n2  0x10 ")))
	dst := alloc(space, typedesc.Int32, "A3")
	assert.Equal(t, errflags.None, m.Copy(dst, in))
	b := raw(t, dst)
	assert.Equal(t, []int64{1, 2, 16}, []int64{common.LoadInt(b, 4), common.LoadInt(b[4:], 4), common.LoadInt(b[8:], 4)})

	buf := stream.NewBuffer(nil)
	out := streamVar(space, buf)
	assert.Equal(t, errflags.None, m.Copy(out, dst))
	assert.Equal(t, "1 2 16", buf.String())

	short := streamVar(space, stream.NewReadOnly([]byte("5")))
	assert.True(t, m.Copy(dst, short).Has(errflags.IllegalOperation))

	copied := stream.NewBuffer(nil)
	assert.Equal(t, errflags.None, m.Copy(streamVar(space, copied), streamVar(space, stream.NewReadOnly([]byte("raw text")))))
	assert.Equal(t, "raw text", copied.String())
}

func TestWalkInlineBlocks(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	src := alloc(space, typedesc.Int16, "A2A3")
	b := raw(t, src)
	for i := range 6 {
		common.StoreUint(b[2*i:], 2, uint64(i+1))
	}
	dst := alloc(space, typedesc.Int32, "A2A3")
	assert.Equal(t, errflags.None, m.Copy(dst, src))
	assert.Equal(t, int64(6), common.LoadInt(raw(t, dst)[20:], 4))
	assert.Equal(t, errflags.None, m.Compare(dst, src))

	common.StoreUint(raw(t, dst)[8:], 4, 99)
	assert.True(t, m.Compare(dst, src).Has(errflags.ComparisonFailure))

	assert.Equal(t, errflags.InvalidOperation, m.Copy(alloc(space, typedesc.Int32, "A3"), alloc(space, typedesc.Int32, "A4")))

	// an open inner count matches the dimensions but holds no elements
	wide := alloc(space, typedesc.Int32, "A3A4")
	assert.Equal(t, errflags.InvalidOperation, m.Copy(wide, alloc(space, typedesc.Int32, "A3A0")))
	assert.Equal(t, make([]byte, 48), raw(t, wide))
}

func TestWalkReallocatesVectorAndMatrix(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	src := alloc(space, typedesc.Int16, "A3")
	common.StoreUint(raw(t, src)[4:], 2, 7)

	vec := alloc(space, typedesc.Int64, "V")
	assert.Equal(t, errflags.None, m.Copy(vec, src))
	data, n, err := space.ReadVector(vec.Ref.Addr)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
	elems, err := space.Bytes(data, 24)
	require.NoError(t, err)
	assert.Equal(t, int64(7), common.LoadInt(elems[16:], 8))
	assert.Equal(t, errflags.None, m.Compare(vec, src))
	assert.True(t, m.Compare(alloc(space, typedesc.Int64, "V"), src).Has(errflags.ComparisonFailure))

	grid := alloc(space, typedesc.Int32, "A2A2")
	common.StoreUint(raw(t, grid)[12:], 4, 4)
	mat := alloc(space, typedesc.Int32, "M")
	assert.Equal(t, errflags.None, m.Copy(mat, grid))
	data, rows, cols, err := space.ReadMatrix(mat.Ref.Addr)
	require.NoError(t, err)
	assert.Equal(t, [2]uint32{2, 2}, [2]uint32{rows, cols})
	cells, err := space.Bytes(data, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(4), common.LoadInt(cells[12:], 4))
	assert.Equal(t, errflags.None, m.Compare(mat, grid))
}

func TestCharArray(t *testing.T) {
	space := memory.NewSpace()
	m := Default()
	arr := alloc(space, typedesc.Char8, "A4")
	assert.Equal(t, errflags.None, m.Copy(arr, text(space, "hi", typedesc.CCStringType)))
	assert.Equal(t, []byte("hi\x00\x00"), raw(t, arr))

	assert.Equal(t, errflags.OutOfRange, m.Copy(arr, text(space, "hello", typedesc.CCStringType)))
	assert.Equal(t, []byte("hel\x00"), raw(t, arr))

	back := alloc(space, typedesc.CCStringType, "")
	assert.Equal(t, errflags.None, m.Copy(back, arr))
	assert.Equal(t, "hel", readString(t, back))
	assert.Equal(t, errflags.None, m.Compare(arr, back))
}

type motor struct {
	Id      int32
	Gains   []float64
	Name    string
	Label   [8]vardesc.Char
	Enabled bool
}

type settings struct {
	Rate    int32
	Motor   motor
	Missing int16
}

func TestStructuredFromJSON(t *testing.T) {
	reg := classreg.New()
	class, err := classreg.Instance[settings](reg)
	require.NoError(t, err)
	m := Default(WithRegistry(reg))
	space := memory.NewSpace()

	doc := `{"rate": 1000, "motor": {"id": 3, "gains": [1.5, 2], "name": "m1",
		"label": "abcdefghij", "enabled": true}}`
	src := text(space, doc, typedesc.CCStringType.WithFormat(typedesc.FormatJSON))
	rec := vardesc.Alloc(space, vardesc.FromTypeDescriptor(class.TypeDescriptor()))

	ret := m.Copy(rec, src)
	assert.True(t, ret.ErrorsCleared(), ret.String())
	assert.True(t, ret.Has(errflags.Warning), "missing member")
	assert.True(t, ret.Has(errflags.OutOfRange), "label truncated")

	member := func(v vardesc.Variable, name string) vardesc.Variable {
		c, ok := reg.ByID(v.Desc.TypeDescriptor().ClassID)
		require.True(t, ok)
		mem, ok := c.Member(name)
		require.True(t, ok, name)
		return mem.Variable(v)
	}
	assert.Equal(t, int64(1000), common.LoadInt(raw(t, member(rec, "Rate")), 4))
	mo := member(rec, "Motor")
	assert.Equal(t, int64(3), common.LoadInt(raw(t, member(mo, "Id")), 4))
	assert.Equal(t, "m1", readString(t, member(mo, "Name")))
	assert.Equal(t, []byte("abcdefg\x00"), raw(t, member(mo, "Label")))
	assert.Equal(t, []byte{1}, raw(t, member(mo, "Enabled")))

	data, n, err := space.ReadVector(member(mo, "Gains").Ref.Addr)
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)
	gains, err := space.Bytes(data, 16)
	require.NoError(t, err)
	assert.Equal(t, 2.0, common.LoadFloat(gains[8:], 8))

	cmp := m.Compare(rec, src)
	assert.False(t, cmp.Has(errflags.ComparisonFailure), cmp.String())

	bad := text(space, `{"rate": `, typedesc.CCStringType.WithFormat(typedesc.FormatJSON))
	assert.True(t, m.Copy(rec, bad).Has(errflags.SyntaxError))
	assert.Equal(t, errflags.UnsupportedFeature, m.Copy(rec, text(space, doc, typedesc.CCStringType)))
}

func TestRecordCopy(t *testing.T) {
	reg := classreg.New()
	class, err := classreg.Instance[motor](reg)
	require.NoError(t, err)
	m := Default(WithRegistry(reg))
	space := memory.NewSpace()
	desc := vardesc.FromTypeDescriptor(class.TypeDescriptor())

	a := vardesc.Alloc(space, desc)
	idm, _ := class.Member("Id")
	common.StoreUint(raw(t, idm.Variable(a)), 4, 42)
	b := vardesc.Alloc(space, desc)
	assert.Equal(t, errflags.None, m.Copy(b, a))
	assert.Equal(t, int64(42), common.LoadInt(raw(t, idm.Variable(b)), 4))
	assert.Equal(t, errflags.None, m.Compare(b, a))
}

func TestMetrics(t *testing.T) {
	none, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	reg := prometheus.NewRegistry()
	mt, err := NewMetrics(reg)
	require.NoError(t, err)
	m := Default(WithMetrics(mt))

	assert.NotNil(t, m.GetOperator(typedesc.Int32, typedesc.Int32, false))
	assert.Nil(t, m.GetOperator(typedesc.InvalidType, typedesc.InvalidType, false))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.lookups.WithLabelValues("leaf", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.lookups.WithLabelValues("leaf", "miss")))
	assert.Equal(t, 8.0, testutil.ToFloat64(mt.registrations))
	assert.Equal(t, 8.0, testutil.ToFloat64(mt.factories))

	m.Clean()
	assert.Equal(t, 0.0, testutil.ToFloat64(mt.factories))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestParseComparePolicy(t *testing.T) {
	p, err := ParseComparePolicy("First")
	require.NoError(t, err)
	assert.Equal(t, CompareFirst, p)
	p, err = ParseComparePolicy("")
	require.NoError(t, err)
	assert.Equal(t, CompareAll, p)
	_, err = ParseComparePolicy("some")
	assert.Error(t, err)
}

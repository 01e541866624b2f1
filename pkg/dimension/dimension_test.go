package dimension

import (
	"encoding/binary"
	"testing"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNestedArrays(t *testing.T) {
	h := New("A3A4", typedesc.Int16)
	require.Equal(t, 3, h.NumberOfLayers())
	assert.Equal(t, uint32(3), h.Layer(0).Count)
	assert.Equal(t, uint32(4), h.Layer(1).Count)
	assert.Equal(t, KindTerminal, h.Layer(2).Kind)
	assert.Equal(t, uint64(24), h.Footprint())
	assert.True(t, h.IsInline(0))

	s := memory.NewSpace()
	addr, _ := s.Alloc(h.Footprint())
	step, ret := h.UpdatePointerAndSize(s, 0, addr, 0)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, uint32(3), step.NumberOfElements)
	assert.Equal(t, uint64(8), step.ElementSize)
	assert.Equal(t, addr, step.Ptr)
	assert.Equal(t, "array[3] of array[4] of int16", h.String())
}

func TestPointerCollapse(t *testing.T) {
	h := New("A3P", typedesc.Int32)
	assert.Equal(t, typedesc.Pointer, h.Leaf().Type)
	assert.Equal(t, 1, h.NumberOfDimensions())
	assert.Equal(t, uint64(24), h.Footprint())

	h = New("P5P2", typedesc.Int32)
	assert.Equal(t, typedesc.Pointer, h.Leaf().Type, "pointer after pointer degenerates")
	require.Equal(t, 1, h.NumberOfDimensions())
	assert.Equal(t, uint32(5), h.Layer(0).Count)
	assert.Equal(t, uint64(8), h.Layer(0).ElementSize)

	h = New("p0", typedesc.Int8)
	assert.True(t, h.Leaf().Const)
	assert.Zero(t, h.NumberOfDimensions())
}

func TestMalformedModifiersAreInvalid(t *testing.T) {
	for _, m := range []string{"ZZ", "ZS4", "A", "S", "S0", "X3", "V3", "A99999999999", "Zd"} {
		h := New(m, typedesc.Int16)
		assert.False(t, h.Leaf().IsValid(), m)
		_, ret := h.UpdatePointerAndSize(memory.NewSpace(), 0, memory.Nil, 0)
		assert.Equal(t, errflags.InvalidOperation, ret, m)
	}
	assert.True(t, New("ZP3", typedesc.Int16).Leaf().IsValid())
}

func TestModifiersRoundTrip(t *testing.T) {
	for _, m := range []string{"A3A4", "P5", "p5V", "vA2", "M", "mA3", "Z", "zA2", "D", "S8", "s4", "A2P3V", ""} {
		h := New(m, typedesc.Float64)
		require.True(t, h.Leaf().IsValid(), m)
		again := New(h.Modifiers(), typedesc.Float64)
		assert.Equal(t, h.layers, again.layers, m)
		assert.Equal(t, m, h.Modifiers())
	}
}

func TestPointerRedirect(t *testing.T) {
	s := memory.NewSpace()
	h := New("P4", typedesc.Uint16)
	data, _ := s.Alloc(8)
	cell, _ := s.Alloc(memory.PointerSize)
	require.NoError(t, s.WritePointer(cell, data))

	step, ret := h.UpdatePointerAndSize(s, 0, cell, 0)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, data, step.Ptr)
	assert.Equal(t, uint32(4), step.NumberOfElements)
	assert.Equal(t, uint64(memory.PointerSize), step.Overhead)

	// NULL is accepted for pointers to arrays
	require.NoError(t, s.WritePointer(cell, memory.Nil))
	step, ret = h.UpdatePointerAndSize(s, 0, cell, 0)
	require.Equal(t, errflags.None, ret)
	assert.Zero(t, step.NumberOfElements)

	// a target too small for four elements fails the liveness check
	small, _ := s.Alloc(4)
	require.NoError(t, s.WritePointer(cell, small))
	step, ret = h.UpdatePointerAndSize(s, 0, cell, 0)
	assert.True(t, ret.Has(errflags.FatalError|errflags.Exception))
	assert.Zero(t, step.NumberOfElements)

	require.NoError(t, s.Free(small))
	_, ret = h.UpdatePointerAndSize(s, 0, cell, 0)
	assert.True(t, ret.Has(errflags.FatalError), "stale address")
}

func TestVectorAndMatrix(t *testing.T) {
	s := memory.NewSpace()
	v := New("V", typedesc.Int32)
	hdr, _ := s.Alloc(memory.VectorHeaderSize)
	step, ret := v.UpdatePointerAndSize(s, 0, hdr, 0)
	require.Equal(t, errflags.None, ret, "empty vector with nil data")
	assert.Zero(t, step.NumberOfElements)

	require.NoError(t, s.WriteVector(hdr, memory.Nil, 2))
	_, ret = v.UpdatePointerAndSize(s, 0, hdr, 0)
	assert.True(t, ret.Has(errflags.FatalError))

	data, _ := s.Alloc(8)
	require.NoError(t, s.WriteVector(hdr, data, 2))
	step, ret = v.UpdatePointerAndSize(s, 0, hdr, 0)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, uint32(2), step.NumberOfElements)
	assert.Equal(t, uint64(memory.VectorHeaderSize), step.Overhead)

	m := New("M", typedesc.Int16)
	require.Equal(t, 2, m.NumberOfDimensions())
	mh, _ := s.Alloc(memory.MatrixHeaderSize)
	mdata, _ := s.Alloc(2 * 3 * 2)
	require.NoError(t, s.WriteMatrix(mh, mdata, 2, 3))
	rows, ret := m.UpdatePointerAndSize(s, 0, mh, 0)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, uint32(2), rows.NumberOfElements)
	assert.Equal(t, uint64(6), rows.ElementSize)

	cols, ret := m.UpdatePointerAndSize(s, 1, rows.Ptr+memory.Address(rows.ElementSize), rows.ElementSize)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, uint32(3), cols.NumberOfElements)
	assert.Equal(t, uint64(2), cols.ElementSize)
	assert.Equal(t, "matrix of int16", m.String())
}

func TestZeroTerminated(t *testing.T) {
	s := memory.NewSpace()
	h := New("Z", typedesc.Uint16)
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint16(buf[0:], 7)
	binary.LittleEndian.PutUint16(buf[2:], 8)
	binary.LittleEndian.PutUint16(buf[4:], 9)
	data := s.Register(buf)
	cell, _ := s.Alloc(memory.PointerSize)
	require.NoError(t, s.WritePointer(cell, data))

	step, ret := h.UpdatePointerAndSize(s, 0, cell, 0)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, uint32(3), step.NumberOfElements)

	static := New("S4", typedesc.Uint16)
	assert.Equal(t, uint64(8), static.Footprint())
	step, ret = static.UpdatePointerAndSize(s, 0, data, 0)
	require.Equal(t, errflags.None, ret)
	assert.Equal(t, uint32(3), step.NumberOfElements)

	full := s.Register([]byte{1, 1, 1, 1})
	_, ret = New("S2", typedesc.Uint16).UpdatePointerAndSize(s, 0, full, 0)
	assert.True(t, ret.Has(errflags.FatalError), "no terminator inside capacity")
}

func TestHasSameDimensions(t *testing.T) {
	a := New("A3A4", typedesc.Int16)
	assert.Equal(t, errflags.None, a.HasSameDimensionsAs(New("P3A4", typedesc.Float32)))
	assert.Equal(t, errflags.None, a.HasSameDimensionsAs(New("M", typedesc.Int8)), "matrix counts are wildcards")
	assert.Equal(t, errflags.InvalidOperation, a.HasSameDimensionsAs(New("A3A5", typedesc.Int16)))
	assert.Equal(t, errflags.InvalidOperation, a.HasSameDimensionsAs(New("A12", typedesc.Int16)))
}

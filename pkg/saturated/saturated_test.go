package saturated

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedEncoding(t *testing.T) {
	assert.Equal(t, int8(124), MaxValid[int8]())
	assert.Equal(t, int8(125), Indeterminate[int8]().Raw())
	assert.Equal(t, int8(126), NegativeInf[int8]().Raw())
	assert.Equal(t, int8(127), PositiveInf[int8]().Raw())
	assert.Equal(t, uint16(math.MaxUint16), PositiveInf[uint16]().Raw())
	assert.Equal(t, int64(math.MinInt64), Min[int64]())

	assert.Equal(t, StatePositiveInf, New[int8](126).Code(), "reserved band saturates")
	st, v := New[int32](-7).State()
	assert.Equal(t, Valid, st)
	assert.Equal(t, int32(-7), v)
}

func TestStates(t *testing.T) {
	assert.Equal(t, StateIndeterminate, Indeterminate[uint32]().Code())
	assert.Equal(t, StateNegativeInf, NegativeInf[uint32]().Code())
	assert.Equal(t, StatePositiveInf, PositiveInf[uint32]().Code())
	assert.Equal(t, "indeterminate", StateIndeterminate.String())
	assert.Equal(t, "-inf", StateNegativeInf.String())
	assert.Equal(t, "+inf", StatePositiveInf.String())
	assert.True(t, NegativeInf[int64]().IsInfinite())
	assert.False(t, Indeterminate[int64]().IsInfinite())
}

func TestAdditionTable(t *testing.T) {
	v := New[int16](5)
	pinf, ninf, ind := PositiveInf[int16](), NegativeInf[int16](), Indeterminate[int16]()

	assert.Equal(t, pinf, pinf.Add(v))
	assert.Equal(t, pinf, v.Add(pinf))
	assert.Equal(t, pinf, pinf.Add(pinf))
	assert.Equal(t, ind, pinf.Add(ninf))
	assert.Equal(t, ind, ninf.Add(pinf))
	assert.Equal(t, ninf, ninf.Add(v))
	assert.Equal(t, ninf, ninf.Add(ninf))
	for _, x := range []Int[int16]{v, pinf, ninf, ind} {
		assert.Equal(t, ind, ind.Add(x))
		assert.Equal(t, ind, x.Add(ind))
	}
}

func TestSubtractionTable(t *testing.T) {
	v := New[int32](5)
	pinf, ninf, ind := PositiveInf[int32](), NegativeInf[int32](), Indeterminate[int32]()

	assert.Equal(t, ind, pinf.Sub(pinf))
	assert.Equal(t, ind, ninf.Sub(ninf))
	assert.Equal(t, pinf, pinf.Sub(ninf))
	assert.Equal(t, ninf, ninf.Sub(pinf))
	assert.Equal(t, ninf, v.Sub(pinf))
	assert.Equal(t, pinf, v.Sub(ninf))
	assert.Equal(t, pinf, pinf.Sub(v))
	assert.Equal(t, ind, v.Sub(ind))
}

func TestValidOverflowFlipsToSignedInfinity(t *testing.T) {
	top := New(MaxValid[int8]())
	assert.Equal(t, PositiveInf[int8](), top.Add(New[int8](1)))
	assert.Equal(t, top, top.Add(New[int8](0)))

	bottom := New(Min[int8]())
	assert.Equal(t, NegativeInf[int8](), bottom.Add(New[int8](-1)))
	assert.Equal(t, NegativeInf[int8](), bottom.Sub(New[int8](1)))
	assert.Equal(t, PositiveInf[int8](), top.Sub(New[int8](-1)))

	// 100 + 26 = 126 lands in the reserved band
	assert.Equal(t, PositiveInf[int8](), New[int8](100).Add(New[int8](26)))

	utop := New(MaxValid[uint8]())
	assert.Equal(t, PositiveInf[uint8](), utop.Add(New[uint8](1)))
	assert.Equal(t, PositiveInf[uint8](), utop.Add(New[uint8](200)))
	assert.Equal(t, NegativeInf[uint8](), New[uint8](3).Sub(New[uint8](4)))
}

func TestMultiplication(t *testing.T) {
	zero := New[int32](0)
	pinf, ninf := PositiveInf[int32](), NegativeInf[int32]()

	assert.Equal(t, Indeterminate[int32](), zero.Mul(pinf))
	assert.Equal(t, ninf, New[int32](-2).Mul(pinf))
	assert.Equal(t, pinf, ninf.Mul(ninf))
	assert.Equal(t, New[int32](-42), New[int32](-6).Mul(New[int32](7)))
	assert.Equal(t, pinf, New[int32](1<<20).Mul(New[int32](1<<20)))
	assert.Equal(t, ninf, New[int32](-(1 << 20)).Mul(New[int32](1<<20)))
	assert.Equal(t, pinf, New(Min[int32]()).Mul(New[int32](-1)))
	assert.Equal(t, PositiveInf[uint16](), New[uint16](300).Mul(New[uint16](300)))
}

func TestNegAndCompare(t *testing.T) {
	assert.Equal(t, PositiveInf[int8](), New(Min[int8]()).Neg())
	assert.Equal(t, NegativeInf[uint8](), New[uint8](1).Neg())
	assert.Equal(t, New[int8](-9), New[int8](9).Neg())

	c, ok := NegativeInf[int16]().Compare(New(Min[int16]()))
	require.True(t, ok)
	assert.Equal(t, -1, c)
	c, ok = New[int16](3).Compare(New[int16](3))
	require.True(t, ok)
	assert.Zero(t, c)
	_, ok = Indeterminate[int16]().Compare(New[int16](1))
	assert.False(t, ok)
}

func TestConvert(t *testing.T) {
	assert.Equal(t, PositiveInf[int8](), Convert[int8](New[int32](300)))
	assert.Equal(t, NegativeInf[int8](), Convert[int8](New[int32](-300)))
	assert.Equal(t, NegativeInf[uint8](), Convert[uint8](New[int64](-1)))
	assert.Equal(t, New[int8](-128), Convert[int8](New[int64](-128)))
	assert.Equal(t, Indeterminate[uint64](), Convert[uint64](Indeterminate[int8]()))
	assert.Equal(t, PositiveInf[int64](), Convert[int64](New[uint64](math.MaxUint64-10)))
	assert.Equal(t, "+Inf", PositiveInf[int8]().String())
	assert.Equal(t, "-12", New[int64](-12).String())
}

func TestAddMatchesWideArithmetic(t *testing.T) {
	condition := func(a, b int16) bool {
		got := New(a).Add(New(b))
		sum := int64(a) + int64(b)
		switch {
		case New(a).Code() != Valid || New(b).Code() != Valid:
			return true
		case sum > int64(MaxValid[int16]()):
			return got == PositiveInf[int16]()
		case sum < int64(Min[int16]()):
			return got == NegativeInf[int16]()
		}
		v, ok := got.Value()
		return ok && int64(v) == sum
	}
	require.NoError(t, quick.Check(condition, &quick.Config{MaxCount: 2000}))
}

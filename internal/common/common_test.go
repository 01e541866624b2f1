package common

import (
	"math"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarUintRoundTrip(t *testing.T) {
	condition := func(x uint64) bool {
		b := WriteVarUintTo(nil, x)
		got, n := ReadVarUint(b)
		return got == x && n == len(b)
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))

	_, n := ReadVarUint([]byte{0x80, 0x80})
	assert.Zero(t, n, "truncated varint")
}

func TestLoadStoreSignExtension(t *testing.T) {
	b := make([]byte, 8)
	StoreUint(b, 2, uint64(0xFFFE))
	assert.Equal(t, int64(-2), LoadInt(b, 2))
	assert.Equal(t, uint64(0xFFFE), LoadUint(b, 2))

	StoreUint(b, 3, 0x800001)
	assert.Equal(t, int64(-0x7FFFFF), LoadInt(b, 3))
}

func TestFloatLoadStore(t *testing.T) {
	b := make([]byte, 8)
	StoreFloat(b, 4, 1.5)
	assert.Equal(t, 1.5, LoadFloat(b, 4))
	StoreFloat(b, 8, math.Pi)
	assert.Equal(t, math.Pi, LoadFloat(b, 8))
}

func TestFixedReflect(t *testing.T) {
	var x int16 = -300
	b := make([]byte, 2)
	PutFixed(b, reflect.ValueOf(x))
	var y int16
	SetFixed(reflect.ValueOf(&y).Elem(), b, reflect.Int16)
	assert.Equal(t, x, y)
	assert.Equal(t, 8, FixedSize(reflect.Int))
	assert.False(t, IsFixedKind(reflect.String))
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(8), Align(5, 8))
	assert.Equal(t, uint64(5), Align(5, 1))
	assert.Equal(t, 4, Alignment(4))
	assert.Equal(t, 8, Alignment(24))
}

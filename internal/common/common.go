package common

import (
	"encoding/binary"
	"math"
	"reflect"
)

// IsFixedKind reports whether k is a fixed-size primitive kind.
func IsFixedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// FixedSize returns the byte width for fixed-size primitive kinds.
// int, uint and uintptr are always stored on 8 bytes.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64, reflect.Int, reflect.Uint, reflect.Uintptr:
		return 8
	default:
		return -1
	}
}

// Alignment is the natural alignment used when laying out records.
func Alignment(size int) int {
	switch {
	case size >= 8:
		return 8
	case size >= 4:
		return 4
	case size >= 2:
		return 2
	default:
		return 1
	}
}

// Align rounds n up to a multiple of a.
func Align(n, a uint64) uint64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// WriteVarUintTo appends varint-encoded x to dst using a small stack scratch.
func WriteVarUintTo(dst []byte, x uint64) []byte {
	var scratch [10]byte
	i := 0
	for x >= 0x80 {
		scratch[i] = byte(x) | 0x80
		x >>= 7
		i++
	}
	scratch[i] = byte(x)
	i++
	return append(dst, scratch[:i]...)
}

// ReadVarUint decodes a varint from b returning value and bytes consumed.
// Zero bytes consumed means b was truncated.
func ReadVarUint(b []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, c := range b {
		if i == 10 {
			return 0, 0
		}
		x |= uint64(c&0x7F) << s
		if c&0x80 == 0 {
			return x, i + 1
		}
		s += 7
	}
	return 0, 0
}

// LoadUint reads a size-byte little endian unsigned value.
func LoadUint(b []byte, size uint32) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	var x uint64
	for i := int(size) - 1; i >= 0; i-- {
		x = x<<8 | uint64(b[i])
	}
	return x
}

// LoadInt reads a size-byte little endian signed value and sign extends it.
func LoadInt(b []byte, size uint32) int64 {
	u := LoadUint(b, size)
	if size >= 8 {
		return int64(u)
	}
	shift := 64 - size*8
	return int64(u<<shift) >> shift
}

// StoreUint writes the low size bytes of v little endian.
func StoreUint(b []byte, size uint32, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		for i := uint32(0); i < size; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
}

// LoadFloat reads a float32 or float64.
func LoadFloat(b []byte, size uint32) float64 {
	if size == 4 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// StoreFloat writes a float32 or float64.
func StoreFloat(b []byte, size uint32, f float64) {
	if size == 4 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
}

// SetFixed decodes a fixed-width primitive from b and sets dst.
func SetFixed(dst reflect.Value, b []byte, k reflect.Kind) {
	switch k {
	case reflect.Bool:
		dst.SetBool(b[0] != 0)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		dst.SetInt(LoadInt(b, uint32(FixedSize(k))))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr:
		dst.SetUint(LoadUint(b, uint32(FixedSize(k))))
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(LoadFloat(b, uint32(FixedSize(k))))
	}
}

// PutFixed encodes the fixed-width primitive v into b.
func PutFixed(b []byte, v reflect.Value) {
	k := v.Kind()
	switch k {
	case reflect.Bool:
		if v.Bool() {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		StoreUint(b, uint32(FixedSize(k)), uint64(v.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr:
		StoreUint(b, uint32(FixedSize(k)), v.Uint())
	case reflect.Float32, reflect.Float64:
		StoreFloat(b, uint32(FixedSize(k)), v.Float())
	}
}

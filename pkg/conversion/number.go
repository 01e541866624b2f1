package conversion

import (
	"math"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

type numberKind uint8

const (
	kindSigned numberKind = iota
	kindUnsigned
	kindFloat
)

// number is the 64 bit scratch every numeric conversion goes through.
type number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
}

func signed(v int64) number { return number{kind: kindSigned, i: v} }
func unsigned(v uint64) number { return number{kind: kindUnsigned, u: v} }
func floating(v float64) number { return number{kind: kindFloat, f: v} }

func (n number) float() float64 {
	switch n.kind {
	case kindSigned:
		return float64(n.i)
	case kindUnsigned:
		return float64(n.u)
	}
	return n.f
}

func (n number) equal(o number) bool {
	if n.kind != o.kind {
		return false
	}
	switch n.kind {
	case kindSigned:
		return n.i == o.i
	case kindUnsigned:
		return n.u == o.u
	}
	return n.f == o.f
}

func mask(bits uint32) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}
	return 1<<bits - 1
}

// loadNumber reads one element of td. Bit ranges are shifted down, masked
// and sign extended.
func loadNumber(td typedesc.Descriptor, b []byte) number {
	if td.IsFloat() {
		return floating(common.LoadFloat(b, td.Size))
	}
	if td.IsBitType() {
		bits := td.NumberOfBits()
		raw := common.LoadUint(b, td.Size) >> td.BitOffset & mask(bits)
		if td.Type == typedesc.SignedInteger {
			shift := 64 - bits
			return signed(int64(raw<<shift) >> shift)
		}
		return unsigned(raw)
	}
	if td.Type == typedesc.SignedInteger {
		return signed(common.LoadInt(b, td.Size))
	}
	return unsigned(common.LoadUint(b, td.Size))
}

func (n number) toSigned(bits uint32) (int64, errflags.Flags) {
	hi := int64(mask(bits - 1))
	lo := -hi - 1
	switch n.kind {
	case kindSigned:
		switch {
		case n.i > hi:
			return hi, errflags.OutOfRange
		case n.i < lo:
			return lo, errflags.OutOfRange
		}
		return n.i, errflags.None
	case kindUnsigned:
		if n.u > uint64(hi) {
			return hi, errflags.OutOfRange
		}
		return int64(n.u), errflags.None
	}
	if math.IsNaN(n.f) {
		return 0, errflags.OutOfRange
	}
	r := math.Round(n.f)
	limit := math.Ldexp(1, int(bits-1))
	switch {
	case r >= limit:
		return hi, errflags.OutOfRange
	case r < -limit:
		return lo, errflags.OutOfRange
	}
	return int64(r), errflags.None
}

func (n number) toUnsigned(bits uint32) (uint64, errflags.Flags) {
	hi := mask(bits)
	switch n.kind {
	case kindSigned:
		switch {
		case n.i < 0:
			return 0, errflags.OutOfRange
		case uint64(n.i) > hi:
			return hi, errflags.OutOfRange
		}
		return uint64(n.i), errflags.None
	case kindUnsigned:
		if n.u > hi {
			return hi, errflags.OutOfRange
		}
		return n.u, errflags.None
	}
	if math.IsNaN(n.f) {
		return 0, errflags.OutOfRange
	}
	r := math.Round(n.f)
	switch {
	case r < 0:
		return 0, errflags.OutOfRange
	case r >= math.Ldexp(1, int(bits)):
		return hi, errflags.OutOfRange
	}
	return uint64(r), errflags.None
}

// storeNumber writes n into one element of td, clamping to the destination
// range. Clamping raises OutOfRange and still writes.
func storeNumber(td typedesc.Descriptor, b []byte, n number) errflags.Flags {
	if td.IsFloat() {
		f := n.float()
		ret := errflags.None
		if td.Size == 4 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			f = math.Copysign(math.MaxFloat32, f)
			ret = errflags.OutOfRange
		}
		common.StoreFloat(b, td.Size, f)
		return ret
	}
	bits := td.NumberOfBits()
	var raw uint64
	var ret errflags.Flags
	if td.Type == typedesc.SignedInteger {
		var v int64
		v, ret = n.toSigned(bits)
		raw = uint64(v)
	} else {
		raw, ret = n.toUnsigned(bits)
	}
	if td.IsBitType() {
		m := mask(bits) << td.BitOffset
		host := common.LoadUint(b, td.Size)
		raw = host&^m | raw<<td.BitOffset&m
	}
	common.StoreUint(b, td.Size, raw)
	return ret
}

// numberOp converts between any two numeric leaves, bit ranges included.
type numberOp struct {
	nopCloser
	dst, src typedesc.Descriptor
	compare  bool
	policy   ComparePolicy
}

func (o *numberOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	return each(dst, src, n, o.dst, o.src, o.policy, func(d, s []byte) errflags.Flags {
		v := loadNumber(o.src, s)
		if !o.compare {
			return storeNumber(o.dst, d, v)
		}
		return compareNumber(o.dst, d, v)
	})
}

// compareNumber converts v as a store into d would, without touching d.
func compareNumber(td typedesc.Descriptor, d []byte, v number) errflags.Flags {
	var scratch [8]byte
	tmp := scratch[:len(d)]
	copy(tmp, d)
	ret := storeNumber(td, tmp, v)
	if !loadNumber(td, d).equal(loadNumber(td, tmp)) {
		ret |= errflags.ComparisonFailure
	}
	return ret
}

// numericLeaf accepts the widths the 64 bit scratch can carry.
func numericLeaf(td typedesc.Descriptor) bool {
	if !td.IsValid() || !td.IsNumeric() || td.Size == 0 || td.Size > 8 {
		return false
	}
	return !td.IsFloat() || td.Size == 4 || td.Size == 8
}

// NumericFactory converts between integers and floats of any width with
// saturation. Bit ranges are left to BitSetFactory.
type NumericFactory struct {
	Policy ComparePolicy
}

func (f NumericFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if !numericLeaf(dst) || !numericLeaf(src) || dst.IsBitType() || src.IsBitType() {
		return nil
	}
	return &numberOp{dst: dst, src: src, compare: isCompare, policy: f.Policy}
}

// BitSetFactory handles pairs where at least one side is a bit range. Values
// travel through a 64 bit scratch so bitset to bitset loses nothing the
// destination could hold.
type BitSetFactory struct {
	Policy ComparePolicy
}

func (f BitSetFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if !numericLeaf(dst) || !numericLeaf(src) || !(dst.IsBitType() || src.IsBitType()) {
		return nil
	}
	return &numberOp{dst: dst, src: src, compare: isCompare, policy: f.Policy}
}

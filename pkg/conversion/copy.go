package conversion

import (
	"bytes"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

// copyOp moves same type elements as one block. CCString elements are
// immutable views, so the copy shares the text and the compare reads it.
type copyOp struct {
	nopCloser
	td      typedesc.Descriptor
	compare bool
	policy  ComparePolicy
}

func (o *copyOp) Convert(dst, src memory.Ref, n uint32) errflags.Flags {
	if n == 0 {
		return errflags.None
	}
	size := uint64(n) * uint64(o.td.StorageSize())
	if !o.compare {
		d, err := dst.Bytes(size)
		if err != nil {
			return fatal
		}
		s, err := src.Bytes(size)
		if err != nil {
			return fatal
		}
		copy(d, s)
		return errflags.None
	}
	return each(dst, src, n, o.td, o.td, o.policy, func(d, s []byte) errflags.Flags {
		switch {
		case o.td.Type == typedesc.CCString:
			a, ret := readText(dst.Space, o.td, d)
			if ret != errflags.None {
				return ret
			}
			b, ret := readText(src.Space, o.td, s)
			if ret != errflags.None {
				return ret
			}
			if a != b {
				return errflags.ComparisonFailure
			}
		case o.td.IsFloat():
			if !loadNumber(o.td, d).equal(loadNumber(o.td, s)) {
				return errflags.ComparisonFailure
			}
		case !bytes.Equal(d, s):
			return errflags.ComparisonFailure
		}
		return errflags.None
	})
}

// CopyFactory handles identical leaves whose bytes can be moved as they are.
// Owned strings, streams, bit ranges and records need a dedicated operator.
type CopyFactory struct {
	Policy ComparePolicy
}

func (f CopyFactory) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	if !dst.IsValid() || !dst.SameTypeAndSizeAs(src) || dst.StorageSize() == 0 {
		return nil
	}
	switch {
	case dst.IsBitType(), dst.IsStructuredData(), dst.IsStream(), dst.Type == typedesc.DynamicCString:
		return nil
	}
	return &copyOp{td: dst, compare: isCompare, policy: f.Policy}
}

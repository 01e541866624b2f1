// Package conversion finds and runs element converters between two typed
// memory regions. Factories are consulted in registration order by a Manager;
// the first one that returns an Operator for a (destination, source) pair
// wins. Copy and Compare walk whole variables through their dimension layers.
package conversion

import (
	"fmt"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

// Operator converts or compares n consecutive elements.
type Operator interface {
	// Convert writes the converted source into dst, or in compare mode checks
	// dst against what the conversion would have written.
	Convert(dst, src memory.Ref, n uint32) errflags.Flags
	Close() error
}

// Factory builds operators for leaf type pairs. It returns nil for pairs it
// does not handle and must have no other side effect.
type Factory interface {
	GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator
}

// VariableOperator converts whole variables.
type VariableOperator interface {
	Convert(dst, src vardesc.Variable) errflags.Flags
	Close() error
}

// VariableFactory matches on the full variable shape rather than the leaf.
type VariableFactory interface {
	Factory
	GetVariableOperator(dst, src vardesc.Descriptor, isCompare bool) VariableOperator
}

// ComparePolicy decides how far a compare scans once a mismatch is found.
type ComparePolicy uint8

const (
	// CompareAll scans every element and reports ComparisonFailure once.
	CompareAll ComparePolicy = iota
	// CompareFirst stops at the first mismatch.
	CompareFirst
)

func (p ComparePolicy) String() string {
	if p == CompareFirst {
		return "first"
	}
	return "all"
}

// ParseComparePolicy accepts "all" and "first".
func ParseComparePolicy(s string) (ComparePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return CompareAll, nil
	case "first":
		return CompareFirst, nil
	}
	return CompareAll, fmt.Errorf("unknown compare policy %q", s)
}

const fatal = errflags.FatalError | errflags.Exception

// hardFailure reports flags that must end a loop whatever the policy.
func hardFailure(r errflags.Flags) bool {
	return r.Fatal()&^errflags.ComparisonFailure != 0
}

func stop(r errflags.Flags, p ComparePolicy) bool {
	return hardFailure(r) || (p == CompareFirst && r.Has(errflags.ComparisonFailure))
}

// view is n elements at a reference. A zero stride repeats a single element,
// which is how a stream handle feeds many destination elements.
type view struct {
	buf    []byte
	stride uint64
	size   uint64
}

func newView(ref memory.Ref, n uint32, stride, size uint64) (view, errflags.Flags) {
	total := size
	if stride != 0 {
		total = uint64(n) * stride
	}
	buf, err := ref.Bytes(total)
	if err != nil {
		return view{}, fatal
	}
	return view{buf: buf, stride: stride, size: size}, errflags.None
}

func (v view) at(i uint64) []byte {
	off := i * v.stride
	return v.buf[off : off+v.size]
}

// strideOf is the distance between elements of td. Streams are consumed
// through one handle.
func strideOf(td typedesc.Descriptor) uint64 {
	if td.IsStream() {
		return 0
	}
	return uint64(td.StorageSize())
}

// each runs fn over n element pairs and merges the flags.
func each(dst, src memory.Ref, n uint32, dt, st typedesc.Descriptor, policy ComparePolicy, fn func(d, s []byte) errflags.Flags) errflags.Flags {
	if n == 0 {
		return errflags.None
	}
	dv, ret := newView(dst, n, strideOf(dt), uint64(dt.StorageSize()))
	if ret != errflags.None {
		return ret
	}
	sv, ret := newView(src, n, strideOf(st), uint64(st.StorageSize()))
	if ret != errflags.None {
		return ret
	}
	for i := uint64(0); i < uint64(n); i++ {
		r := fn(dv.at(i), sv.at(i))
		ret |= r
		if stop(r, policy) {
			break
		}
	}
	return ret
}

// nopCloser gives stateless operators their Close.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

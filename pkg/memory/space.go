// Package memory provides a checked logical address space. Pointers stored in
// variable buffers are Addresses into a Space; every dereference is validated
// against the owning segment so a stale or foreign address can never touch
// memory it does not own.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Address is a logical address inside a Space. Nil is never mapped.
type Address uint64

const Nil Address = 0

const (
	// PointerSize is the width of a stored Address.
	PointerSize = 8
	// VectorHeaderSize: data address, uint32 element count, 4 bytes padding.
	VectorHeaderSize = 16
	// MatrixHeaderSize: data address, uint32 rows, uint32 columns, 8 bytes padding.
	MatrixHeaderSize = 24

	firstAddress = 0x1000
	guardBytes   = 64
	alignment    = 16
)

var (
	ErrNilAddress   = errors.New("nil address")
	ErrUnmapped     = errors.New("address not mapped")
	ErrOutOfBounds  = errors.New("access beyond segment end")
	ErrNotBase      = errors.New("address is not a segment base")
	ErrReserved     = errors.New("size exceeds reserved capacity")
	ErrUnterminated = errors.New("zero terminated array has no terminator")
	ErrNotObject    = errors.New("address does not hold an object")
)

type segment struct {
	base     Address
	data     []byte
	reserved uint64
	external bool
	object   any
}

func (s *segment) end() Address {
	return s.base + Address(len(s.data))
}

// Space owns a set of segments. It is safe for concurrent use; the byte slices
// it hands out are not synchronised.
type Space struct {
	mu       sync.RWMutex
	segments []*segment
	next     Address
}

func NewSpace() *Space {
	return &Space{next: firstAddress}
}

func roundUp(n, to uint64) uint64 {
	return (n + to - 1) / to * to
}

func (s *Space) insert(seg *segment) Address {
	if s.next == 0 {
		s.next = firstAddress
	}
	seg.base = s.next
	span := roundUp(seg.reserved, alignment)
	if span == 0 {
		span = alignment
	}
	s.next += Address(span + guardBytes)
	// bases grow monotonically, so append keeps the slice sorted
	s.segments = append(s.segments, seg)
	return seg.base
}

// Alloc maps a zeroed segment of n bytes.
func (s *Space) Alloc(n uint64) (Address, []byte) {
	return s.AllocCap(n, n)
}

// AllocCap maps n bytes and reserves capacity bytes of address range so that
// Resize can later grow the segment without moving it.
func (s *Space) AllocCap(n, capacity uint64) (Address, []byte) {
	if capacity < n {
		capacity = n
	}
	seg := &segment{data: make([]byte, n, capacity), reserved: capacity}
	s.mu.Lock()
	addr := s.insert(seg)
	s.mu.Unlock()
	return addr, seg.data
}

// Register maps an externally owned buffer. The space never resizes it.
func (s *Space) Register(buf []byte) Address {
	seg := &segment{data: buf, reserved: uint64(len(buf)), external: true}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(seg)
}

// AllocString maps str followed by a zero terminator.
func (s *Space) AllocString(str string) Address {
	addr, buf := s.Alloc(uint64(len(str)) + 1)
	copy(buf, str)
	return addr
}

// RegisterObject maps an opaque object handle (for instance a stream).
func (s *Space) RegisterObject(obj any) Address {
	seg := &segment{object: obj}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(seg)
}

// Object returns the object registered at addr.
func (s *Space) Object(addr Address) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, err := s.find(addr)
	if err != nil {
		return nil, err
	}
	if seg.object == nil || seg.base != addr {
		return nil, ErrNotObject
	}
	return seg.object, nil
}

// find returns the segment whose range contains addr (end inclusive).
func (s *Space) find(addr Address) (*segment, error) {
	if addr == Nil {
		return nil, ErrNilAddress
	}
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].base > addr
	})
	if i == 0 {
		return nil, ErrUnmapped
	}
	seg := s.segments[i-1]
	if addr > seg.end() {
		return nil, ErrUnmapped
	}
	return seg, nil
}

// Free unmaps the segment based at addr.
func (s *Space) Free(addr Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, err := s.find(addr)
	if err != nil {
		return err
	}
	if seg.base != addr {
		return ErrNotBase
	}
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].base >= addr
	})
	s.segments = append(s.segments[:i], s.segments[i+1:]...)
	return nil
}

// Resize changes the logical size of the segment based at addr, keeping its
// address. Growth beyond the reserved capacity fails with ErrReserved.
func (s *Space) Resize(addr Address, n uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, err := s.find(addr)
	if err != nil {
		return nil, err
	}
	if seg.base != addr {
		return nil, ErrNotBase
	}
	if seg.external || seg.object != nil {
		return nil, fmt.Errorf("resize %#x: %w", addr, ErrReserved)
	}
	if n > seg.reserved {
		return nil, ErrReserved
	}
	old := uint64(len(seg.data))
	if n <= uint64(cap(seg.data)) {
		seg.data = seg.data[:n]
		if n > old {
			clear(seg.data[old:])
		}
		return seg.data, nil
	}
	grown := make([]byte, n, seg.reserved)
	copy(grown, seg.data)
	seg.data = grown
	return seg.data, nil
}

// Bytes returns n bytes starting at addr after checking that the whole range
// lives inside one mapped segment.
func (s *Space) Bytes(addr Address, n uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, err := s.find(addr)
	if err != nil {
		return nil, err
	}
	off := uint64(addr - seg.base)
	if off+n > uint64(len(seg.data)) || off+n < off {
		return nil, fmt.Errorf("%#x+%d: %w", addr, n, ErrOutOfBounds)
	}
	return seg.data[off : off+n : off+n], nil
}

// Check validates that n bytes at addr are mapped.
func (s *Space) Check(addr Address, n uint64) error {
	_, err := s.Bytes(addr, n)
	return err
}

// Remaining returns the bytes from addr up to the end of its segment.
func (s *Space) Remaining(addr Address) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, err := s.find(addr)
	if err != nil {
		return nil, err
	}
	return seg.data[addr-seg.base:], nil
}

// SegmentOf returns the base and logical size of the segment holding addr.
func (s *Space) SegmentOf(addr Address) (Address, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, err := s.find(addr)
	if err != nil {
		return Nil, 0, err
	}
	return seg.base, uint64(len(seg.data)), nil
}

// Len is the number of mapped segments.
func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// ReadPointer loads the Address stored at addr.
func (s *Space) ReadPointer(addr Address) (Address, error) {
	b, err := s.Bytes(addr, PointerSize)
	if err != nil {
		return Nil, err
	}
	return Address(binary.LittleEndian.Uint64(b)), nil
}

// WritePointer stores value at addr.
func (s *Space) WritePointer(addr, value Address) error {
	b, err := s.Bytes(addr, PointerSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, uint64(value))
	return nil
}

// ReadVector decodes the vector header at addr.
func (s *Space) ReadVector(addr Address) (Address, uint32, error) {
	b, err := s.Bytes(addr, VectorHeaderSize)
	if err != nil {
		return Nil, 0, err
	}
	return Address(binary.LittleEndian.Uint64(b)), binary.LittleEndian.Uint32(b[8:]), nil
}

// WriteVector encodes a vector header at addr.
func (s *Space) WriteVector(addr, data Address, n uint32) error {
	b, err := s.Bytes(addr, VectorHeaderSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, uint64(data))
	binary.LittleEndian.PutUint32(b[8:], n)
	return nil
}

// ReadMatrix decodes the matrix header at addr.
func (s *Space) ReadMatrix(addr Address) (Address, uint32, uint32, error) {
	b, err := s.Bytes(addr, MatrixHeaderSize)
	if err != nil {
		return Nil, 0, 0, err
	}
	return Address(binary.LittleEndian.Uint64(b)), binary.LittleEndian.Uint32(b[8:]),
		binary.LittleEndian.Uint32(b[12:]), nil
}

// WriteMatrix encodes a matrix header at addr.
func (s *Space) WriteMatrix(addr, data Address, rows, cols uint32) error {
	b, err := s.Bytes(addr, MatrixHeaderSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, uint64(data))
	binary.LittleEndian.PutUint32(b[8:], rows)
	binary.LittleEndian.PutUint32(b[12:], cols)
	return nil
}

// ScanTerminated counts elementSize-wide elements from addr until an all-zero
// element. The scan never leaves the segment.
func (s *Space) ScanTerminated(addr Address, elementSize uint64) (uint32, error) {
	if elementSize == 0 {
		return 0, ErrOutOfBounds
	}
	rest, err := s.Remaining(addr)
	if err != nil {
		return 0, err
	}
	return scan(rest, elementSize)
}

func scan(buf []byte, elementSize uint64) (uint32, error) {
	var n uint32
	for off := uint64(0); off+elementSize <= uint64(len(buf)); off += elementSize {
		zero := true
		for _, c := range buf[off : off+elementSize] {
			if c != 0 {
				zero = false
				break
			}
		}
		if zero {
			return n, nil
		}
		n++
	}
	return n, ErrUnterminated
}

// ScanTerminatedIn is ScanTerminated restricted to limit bytes.
func ScanTerminatedIn(buf []byte, elementSize uint64) (uint32, error) {
	return scan(buf, elementSize)
}

// CString reads the zero terminated string at addr.
func (s *Space) CString(addr Address) (string, error) {
	n, err := s.ScanTerminated(addr, 1)
	if err != nil {
		return "", err
	}
	b, err := s.Bytes(addr, uint64(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

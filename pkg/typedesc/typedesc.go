// Package typedesc describes scalar leaf types: integers (including bit packed
// ranges), floats, characters, pointers, strings, streams and structured records.
package typedesc

import (
	"fmt"
	"strconv"
	"strings"
)

// BasicType is the family of a leaf type.
type BasicType uint8

const (
	Invalid BasicType = iota
	SignedInteger
	UnsignedInteger
	Float
	Char
	Pointer
	Structured
	Stream
	CCString
	DynamicCString
	StaticCString
)

func (b BasicType) String() string {
	switch b {
	case SignedInteger:
		return "int"
	case UnsignedInteger:
		return "uint"
	case Float:
		return "float"
	case Char:
		return "char"
	case Pointer:
		return "pointer"
	case Structured:
		return "struct"
	case Stream:
		return "stream"
	case CCString:
		return "cstring"
	case DynamicCString:
		return "string"
	case StaticCString:
		return "char[]"
	default:
		return "invalid"
	}
}

// Format tags the grammar of text held by a string or stream when the
// destination is structured data.
type Format uint8

const (
	FormatNone Format = iota
	FormatJSON
	FormatXML
	FormatYAML
	FormatCDB
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	case FormatCDB:
		return "cdb"
	default:
		return "none"
	}
}

// ParseFormat maps a name such as "json" to its Format.
func ParseFormat(name string) (Format, bool) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, true
	case "xml":
		return FormatXML, true
	case "yaml", "yml":
		return FormatYAML, true
	case "cdb":
		return FormatCDB, true
	case "", "none":
		return FormatNone, true
	}
	return FormatNone, false
}

// PointerSize is the storage used by every pointer-like leaf.
const PointerSize = 8

// Descriptor fully describes a scalar type. It is a plain value.
type Descriptor struct {
	Type BasicType
	// Size is the storage size in bytes of the host value.
	Size uint32
	// BitSize is non zero for bit packed integers living inside a host of Size bytes.
	BitSize   uint16
	BitOffset uint16
	Const     bool
	ClassID   uint32
	Format    Format
}

// Builtin leaf types.
var (
	Int8               = Descriptor{Type: SignedInteger, Size: 1}
	Int16              = Descriptor{Type: SignedInteger, Size: 2}
	Int32              = Descriptor{Type: SignedInteger, Size: 4}
	Int64              = Descriptor{Type: SignedInteger, Size: 8}
	Uint8              = Descriptor{Type: UnsignedInteger, Size: 1}
	Uint16             = Descriptor{Type: UnsignedInteger, Size: 2}
	Uint32             = Descriptor{Type: UnsignedInteger, Size: 4}
	Uint64             = Descriptor{Type: UnsignedInteger, Size: 8}
	Float32            = Descriptor{Type: Float, Size: 4}
	Float64            = Descriptor{Type: Float, Size: 8}
	Char8              = Descriptor{Type: Char, Size: 1}
	VoidPointer        = Descriptor{Type: Pointer, Size: PointerSize}
	CCStringType       = Descriptor{Type: CCString, Size: PointerSize}
	DynamicCStringType = Descriptor{Type: DynamicCString, Size: PointerSize}
	StreamType         = Descriptor{Type: Stream, Size: PointerSize}
	InvalidType        = Descriptor{Type: Invalid}
)

// StaticCStringOf is an inline character buffer of capacity n including the terminator.
func StaticCStringOf(n uint32) Descriptor {
	if n == 0 {
		return InvalidType
	}
	return Descriptor{Type: StaticCString, Size: n}
}

// BitRange packs a bits-wide integer at offset inside host.
func BitRange(host Descriptor, bits, offset uint16) Descriptor {
	if !host.IsInteger() || host.IsBitType() || bits == 0 || uint32(bits)+uint32(offset) > host.Size*8 {
		return InvalidType
	}
	host.BitSize = bits
	host.BitOffset = offset
	return host
}

// StructuredType describes a registered record of size bytes.
func StructuredType(classID uint32, size uint32) Descriptor {
	return Descriptor{Type: Structured, Size: size, ClassID: classID}
}

// AsConst returns a copy flagged constant.
func (d Descriptor) AsConst() Descriptor {
	d.Const = true
	return d
}

// WithFormat returns a copy carrying the text grammar tag.
func (d Descriptor) WithFormat(f Format) Descriptor {
	d.Format = f
	return d
}

func (d Descriptor) IsValid() bool {
	if d.Type == Invalid {
		return false
	}
	return uint32(d.BitSize)+uint32(d.BitOffset) <= d.Size*8
}

// IsBasicType reports builtin (non structured, non invalid) types.
func (d Descriptor) IsBasicType() bool {
	return d.IsValid() && d.Type != Structured
}

func (d Descriptor) IsStructuredData() bool {
	return d.Type == Structured
}

func (d Descriptor) IsBitType() bool {
	return d.BitSize != 0
}

func (d Descriptor) IsSigned() bool {
	return d.Type == SignedInteger || d.Type == Float
}

func (d Descriptor) IsInteger() bool {
	return d.Type == SignedInteger || d.Type == UnsignedInteger
}

func (d Descriptor) IsFloat() bool {
	return d.Type == Float
}

// IsNumeric covers integers, bit ranges and floats.
func (d Descriptor) IsNumeric() bool {
	return d.IsInteger() || d.IsFloat()
}

// IsCharString covers every character string representation.
func (d Descriptor) IsCharString() bool {
	switch d.Type {
	case CCString, DynamicCString, StaticCString:
		return true
	}
	return false
}

// IsStream reports stream object leaves.
func (d Descriptor) IsStream() bool {
	return d.Type == Stream
}

// StorageSize is the stride in bytes used for address arithmetic.
func (d Descriptor) StorageSize() uint32 {
	return d.Size
}

// NumberOfBits is the number of value bits, bit ranges included.
func (d Descriptor) NumberOfBits() uint32 {
	if d.BitSize != 0 {
		return uint32(d.BitSize)
	}
	return d.Size * 8
}

// SameAs compares every field except constness.
func (d Descriptor) SameAs(o Descriptor) bool {
	d.Const = false
	o.Const = false
	return d == o
}

// SameTypeAndSizeAs ignores constness and the format tag.
func (d Descriptor) SameTypeAndSizeAs(o Descriptor) bool {
	return d.Type == o.Type && d.Size == o.Size && d.BitSize == o.BitSize &&
		d.BitOffset == o.BitOffset && d.ClassID == o.ClassID
}

func (d Descriptor) String() string {
	var s string
	switch d.Type {
	case SignedInteger, UnsignedInteger:
		if d.BitSize != 0 {
			s = fmt.Sprintf("%s%d@%d:%s%d", d.Type, d.BitSize, d.BitOffset, d.Type, d.Size*8)
		} else {
			s = fmt.Sprintf("%s%d", d.Type, d.Size*8)
		}
	case Float:
		s = fmt.Sprintf("float%d", d.Size*8)
	case Char:
		s = fmt.Sprintf("char%d", d.Size*8)
	case StaticCString:
		s = fmt.Sprintf("char[%d]", d.Size)
	case Structured:
		s = fmt.Sprintf("struct#%d", d.ClassID)
	default:
		s = d.Type.String()
	}
	if d.Format != FormatNone {
		s += "/" + d.Format.String()
	}
	if d.Const {
		s = "const " + s
	}
	return s
}

// Parse reads the names produced by String: int8..int64, uint8..uint64,
// float32, float64, char8, pointer, cstring, string, stream, char[N],
// uintB@O:uintH for bit ranges, optional "/json" style format suffix and
// "const " prefix.
func Parse(name string) (Descriptor, error) {
	s := strings.TrimSpace(name)
	var constant bool
	if rest, ok := strings.CutPrefix(s, "const "); ok {
		constant = true
		s = strings.TrimSpace(rest)
	}
	format := FormatNone
	if base, fmtName, ok := strings.Cut(s, "/"); ok {
		f, known := ParseFormat(fmtName)
		if !known {
			return InvalidType, fmt.Errorf("unknown format %q", fmtName)
		}
		format = f
		s = base
	}
	d, err := parseBase(s)
	if err != nil {
		return InvalidType, err
	}
	d.Const = constant
	d.Format = format
	return d, nil
}

func parseBase(s string) (Descriptor, error) {
	switch s {
	case "pointer":
		return VoidPointer, nil
	case "cstring":
		return CCStringType, nil
	case "string":
		return DynamicCStringType, nil
	case "stream":
		return StreamType, nil
	case "char8", "char":
		return Char8, nil
	}
	if inner, ok := strings.CutPrefix(s, "char["); ok {
		n, err := strconv.ParseUint(strings.TrimSuffix(inner, "]"), 10, 32)
		if err != nil || !strings.HasSuffix(inner, "]") {
			return InvalidType, fmt.Errorf("bad static string %q", s)
		}
		d := StaticCStringOf(uint32(n))
		if !d.IsValid() {
			return InvalidType, fmt.Errorf("bad static string %q", s)
		}
		return d, nil
	}
	if bits, host, ok := strings.Cut(s, ":"); ok {
		h, err := parseBase(host)
		if err != nil {
			return InvalidType, err
		}
		width, offset, ok := strings.Cut(bits, "@")
		if !ok {
			return InvalidType, fmt.Errorf("bad bit range %q", s)
		}
		var prefix string
		switch {
		case strings.HasPrefix(width, "uint"):
			prefix = "uint"
		case strings.HasPrefix(width, "int"):
			prefix = "int"
		default:
			return InvalidType, fmt.Errorf("bad bit range %q", s)
		}
		if (prefix == "int") != (h.Type == SignedInteger) {
			return InvalidType, fmt.Errorf("bit range sign differs from host in %q", s)
		}
		nb, err1 := strconv.ParseUint(strings.TrimPrefix(width, prefix), 10, 16)
		no, err2 := strconv.ParseUint(offset, 10, 16)
		if err1 != nil || err2 != nil {
			return InvalidType, fmt.Errorf("bad bit range %q", s)
		}
		d := BitRange(h, uint16(nb), uint16(no))
		if !d.IsValid() {
			return InvalidType, fmt.Errorf("bit range %q does not fit its host", s)
		}
		return d, nil
	}
	var family BasicType
	var digits string
	switch {
	case strings.HasPrefix(s, "uint"):
		family, digits = UnsignedInteger, s[4:]
	case strings.HasPrefix(s, "int"):
		family, digits = SignedInteger, s[3:]
	case strings.HasPrefix(s, "float"):
		family, digits = Float, s[5:]
	default:
		return InvalidType, fmt.Errorf("unknown type %q", s)
	}
	bits, err := strconv.ParseUint(digits, 10, 8)
	if err != nil {
		return InvalidType, fmt.Errorf("unknown type %q", s)
	}
	switch {
	case family == Float && (bits == 32 || bits == 64):
	case family != Float && (bits == 8 || bits == 16 || bits == 32 || bits == 64):
	default:
		return InvalidType, fmt.Errorf("unsupported width in %q", s)
	}
	return Descriptor{Type: family, Size: uint32(bits / 8)}, nil
}

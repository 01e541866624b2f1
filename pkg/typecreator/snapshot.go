package typecreator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/stream"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

const (
	snapshotMagic   = "TCOB"
	snapshotVersion = 1

	flagCompressed = 1 << 0
)

var (
	ErrBadSnapshot  = errors.New("not an object snapshot")
	ErrCRCMismatch  = errors.New("crc mismatch")
	ErrShortPayload = errors.New("payload truncated")
)

// EncodeObject serialises obj: header, leaf name, shape, row lengths, then
// the elements row by row, followed by a crc32 of the body. The body and crc
// are zstd compressed when compress is set.
func EncodeObject(obj *Object, compress bool) ([]byte, error) {
	var body bytes.Buffer
	var scratch []byte

	name := obj.leaf.String()
	scratch = common.WriteVarUintTo(scratch[:0], uint64(len(name)))
	body.Write(scratch)
	body.WriteString(name)
	body.WriteByte(byte(obj.shape))

	scratch = common.WriteVarUintTo(scratch[:0], uint64(len(obj.rows)))
	for _, r := range obj.rows {
		scratch = common.WriteVarUintTo(scratch, uint64(r.n))
	}
	body.Write(scratch)

	for i, r := range obj.rows {
		if obj.leaf.Type != typedesc.CCString {
			b, err := obj.Row(i)
			if err != nil {
				return nil, err
			}
			body.Write(b)
			continue
		}
		for j := 0; j < int(r.n); j++ {
			s, err := obj.Text(i, j)
			if err != nil {
				return nil, err
			}
			scratch = common.WriteVarUintTo(scratch[:0], uint64(len(s)))
			body.Write(scratch)
			body.WriteString(s)
		}
	}

	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(body.Bytes()))
	body.Write(crc[:])

	payload := body.Bytes()
	var flags byte
	if compress {
		z, err := stream.Compress(payload)
		if err != nil {
			return nil, err
		}
		payload = z
		flags |= flagCompressed
	}

	out := make([]byte, 0, len(snapshotMagic)+2+len(payload))
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion, flags)
	return append(out, payload...), nil
}

// DecodeObject rebuilds a snapshot into space by replaying it through a
// Creator.
func DecodeObject(space *memory.Space, data []byte, opts ...Option) (*Object, error) {
	if len(data) < len(snapshotMagic)+2 || string(data[:len(snapshotMagic)]) != snapshotMagic {
		return nil, ErrBadSnapshot
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d: %w", v, ErrBadSnapshot)
	}
	flags := data[len(snapshotMagic)+1]
	body := data[len(snapshotMagic)+2:]
	if flags&flagCompressed != 0 {
		raw, err := stream.Decompress(body)
		if err != nil {
			return nil, err
		}
		body = raw
	}
	if len(body) < 4 {
		return nil, ErrShortPayload
	}
	sum := binary.LittleEndian.Uint32(body[len(body)-4:])
	body = body[:len(body)-4]
	if crc32.ChecksumIEEE(body) != sum {
		return nil, ErrCRCMismatch
	}

	r := reader{b: body}
	name := r.next(r.varint())
	leaf, err := typedesc.Parse(string(name))
	if err != nil {
		return nil, err
	}
	shape := Shape(r.octet())
	count := r.varint()
	if count > uint64(len(r.b)) {
		return nil, ErrShortPayload
	}
	rows := make([]uint32, count)
	for i := range rows {
		rows[i] = uint32(r.varint())
	}
	if r.err != nil {
		return nil, r.err
	}

	c := New(space, opts...)
	if ret := c.Start(leaf); ret != errflags.None {
		return nil, ret.Err("DecodeObject")
	}
	es := uint64(leaf.StorageSize())
	for _, n := range rows {
		for j := uint32(0); j < n; j++ {
			var ret errflags.Flags
			if leaf.Type == typedesc.CCString {
				ret = c.AddElement(string(r.next(r.varint())))
			} else {
				ret = c.addRaw(r.next(es))
			}
			if r.err != nil {
				c.Clean()
				return nil, r.err
			}
			if !ret.ErrorsCleared() {
				c.Clean()
				return nil, ret.Err("DecodeObject")
			}
		}
		if shape == ShapeMatrix || shape == ShapeSparseMatrix {
			c.EndVector()
		}
	}
	if len(r.b) != 0 {
		c.Clean()
		return nil, fmt.Errorf("%d trailing bytes: %w", len(r.b), ErrBadSnapshot)
	}
	if ret := c.End(); ret != errflags.None {
		c.Clean()
		return nil, ret.Err("DecodeObject")
	}
	if c.Shape() != shape {
		c.Clean()
		return nil, fmt.Errorf("shape %s rebuilt as %s: %w", shape, c.Shape(), ErrBadSnapshot)
	}
	obj, ret := c.GetReference()
	if ret != errflags.None {
		c.Clean()
		return nil, ret.Err("DecodeObject")
	}
	return obj, nil
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) varint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := common.ReadVarUint(r.b)
	if n == 0 {
		r.err = ErrShortPayload
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *reader) octet() byte {
	b := r.next(1)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func (r *reader) next(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.b)) {
		r.err = ErrShortPayload
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

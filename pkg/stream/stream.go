// Package stream defines the byte stream contract used by string conversions
// and the structured data front end, with in-memory, read only and zstd
// compressed implementations.
package stream

import (
	"bufio"
	"errors"
	"io"
)

var (
	ErrNotReadable = errors.New("stream is not readable")
	ErrNotWritable = errors.New("stream is not writable")
	ErrNotSeekable = errors.New("stream is not seekable")
	ErrBadSeek     = errors.New("seek outside stream")
)

// Stream is a byte stream with optional capabilities.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	CanRead() bool
	CanWrite() bool
	CanSeek() bool
	// Size is the total number of bytes, or 0 when unknown.
	Size() uint64
	Position() uint64
	SetSize(n uint64) error
	RelativeSeek(delta int64) error
}

// Buffer is a growable read, write and seek stream.
type Buffer struct {
	data []byte
	pos  int
}

func NewBuffer(initial []byte) *Buffer {
	return &Buffer{data: initial}
}

func (b *Buffer) CanRead() bool { return true }
func (b *Buffer) CanWrite() bool { return true }
func (b *Buffer) CanSeek() bool { return true }

func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, end, max(2*cap(b.data), end))
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	return seek(&b.pos, len(b.data), offset, whence)
}

func seek(pos *int, size int, offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(*pos) + offset
	case io.SeekEnd:
		abs = int64(size) + offset
	default:
		return int64(*pos), ErrBadSeek
	}
	if abs < 0 || abs > int64(size) {
		return int64(*pos), ErrBadSeek
	}
	*pos = int(abs)
	return abs, nil
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }
func (b *Buffer) Position() uint64 { return uint64(b.pos) }

func (b *Buffer) SetSize(n uint64) error {
	if n > uint64(len(b.data)) {
		b.data = append(b.data, make([]byte, n-uint64(len(b.data)))...)
	} else {
		b.data = b.data[:n]
	}
	b.pos = min(b.pos, len(b.data))
	return nil
}

func (b *Buffer) RelativeSeek(delta int64) error {
	_, err := b.Seek(delta, io.SeekCurrent)
	return err
}

// Bytes returns the whole content.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) String() string {
	return string(b.data)
}

// ReadOnly presents a byte slice (a pointer and a length) as a stream.
type ReadOnly struct {
	data []byte
	pos  int
}

func NewReadOnly(data []byte) *ReadOnly {
	return &ReadOnly{data: data}
}

func (r *ReadOnly) CanRead() bool { return true }
func (r *ReadOnly) CanWrite() bool { return false }
func (r *ReadOnly) CanSeek() bool { return true }

func (r *ReadOnly) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *ReadOnly) Write([]byte) (int, error) {
	return 0, ErrNotWritable
}

func (r *ReadOnly) Seek(offset int64, whence int) (int64, error) {
	return seek(&r.pos, len(r.data), offset, whence)
}

func (r *ReadOnly) Size() uint64 { return uint64(len(r.data)) }
func (r *ReadOnly) Position() uint64 { return uint64(r.pos) }

func (r *ReadOnly) SetSize(uint64) error {
	return ErrNotWritable
}

func (r *ReadOnly) RelativeSeek(delta int64) error {
	_, err := r.Seek(delta, io.SeekCurrent)
	return err
}

// MaxTokenSize bounds a single token.
const MaxTokenSize = 1 << 20

// NextToken reads one white space delimited token without reading past its
// end, so the stream position stays meaningful. It returns io.EOF when only
// white space remains.
func NextToken(r io.Reader) (string, error) {
	var tok []byte
	var one [1]byte
	for {
		n, err := r.Read(one[:])
		if n == 1 {
			if isSpace(one[0]) {
				if len(tok) > 0 {
					return string(tok), nil
				}
				continue
			}
			if len(tok) == MaxTokenSize {
				return "", bufio.ErrTooLong
			}
			tok = append(tok, one[0])
		}
		if err == io.EOF {
			if len(tok) > 0 {
				return string(tok), nil
			}
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Tokens splits the remaining content of s on white space.
func Tokens(s io.Reader) ([]string, error) {
	var out []string
	err := EachToken(s, func(tok string) bool {
		out = append(out, tok)
		return true
	})
	return out, err
}

// EachToken calls fn for every white space delimited token until fn returns
// false or the stream ends.
func EachToken(s io.Reader, fn func(string) bool) error {
	sc := bufio.NewScanner(s)
	sc.Buffer(make([]byte, 0, 64), 1<<20)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		if !fn(sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

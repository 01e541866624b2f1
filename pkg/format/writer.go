package format

import (
	"errors"
	"io"
)

// BufferSize is the size of each of the two staging buffers.
const BufferSize = 32

var ErrTruncated = errors.New("text truncated to capacity")

// Writer stages text in two alternating BufferSize buffers and hands each full
// buffer to the destination in one Write.
type Writer struct {
	dst     io.Writer
	bufs    [2][BufferSize]byte
	cur     int
	n       int
	written int64
	err     error
}

func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

func (w *Writer) swap() error {
	if w.err != nil {
		return w.err
	}
	if w.n == 0 {
		return nil
	}
	m, err := w.dst.Write(w.bufs[w.cur][:w.n])
	w.written += int64(m)
	if err == nil && m < w.n {
		err = io.ErrShortWrite
	}
	w.cur ^= 1
	w.n = 0
	w.err = err
	return err
}

func (w *Writer) WriteByte(c byte) error {
	if w.n == BufferSize {
		if err := w.swap(); err != nil {
			return err
		}
	}
	w.bufs[w.cur][w.n] = c
	w.n++
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if w.n == BufferSize {
			if err := w.swap(); err != nil {
				return total, err
			}
		}
		c := copy(w.bufs[w.cur][w.n:], p)
		w.n += c
		total += c
		p = p[c:]
	}
	return total, nil
}

func (w *Writer) WriteString(s string) (int, error) {
	total := 0
	for len(s) > 0 {
		if w.n == BufferSize {
			if err := w.swap(); err != nil {
				return total, err
			}
		}
		c := copy(w.bufs[w.cur][w.n:], s)
		w.n += c
		total += c
		s = s[c:]
	}
	return total, nil
}

// Flush hands the pending bytes to the destination.
func (w *Writer) Flush() error {
	return w.swap()
}

// Written is the number of bytes the destination accepted so far.
func (w *Writer) Written() int64 {
	return w.written
}

func (w *Writer) WriteInteger(v int64, bits int, d Descriptor) error {
	_, err := w.WriteString(Integer(v, bits, d))
	return err
}

func (w *Writer) WriteUnsigned(u uint64, d Descriptor) error {
	_, err := w.WriteString(Unsigned(u, d))
	return err
}

func (w *Writer) WriteFloat(f float64, bits int, d Descriptor) error {
	_, err := w.WriteString(Float(f, bits, d))
	return err
}

// FixedSink is a fixed capacity string: it keeps room for the terminator and
// drops whatever does not fit.
type FixedSink struct {
	buf       []byte
	n         int
	Truncated bool
}

// NewFixedSink writes into buf, whose last byte is reserved for the terminator.
func NewFixedSink(buf []byte) *FixedSink {
	return &FixedSink{buf: buf}
}

func (s *FixedSink) Write(p []byte) (int, error) {
	room := len(s.buf) - 1 - s.n
	if room < 0 {
		room = 0
	}
	c := copy(s.buf[s.n:s.n+room], p)
	s.n += c
	if c < len(p) {
		s.Truncated = true
		return c, ErrTruncated
	}
	return c, nil
}

// Close writes the terminator.
func (s *FixedSink) Close() error {
	if len(s.buf) > 0 {
		s.buf[s.n] = 0
	}
	return nil
}

func (s *FixedSink) Len() int {
	return s.n
}

func (s *FixedSink) String() string {
	return string(s.buf[:s.n])
}

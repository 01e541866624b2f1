package stream

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compressed exposes a zstd encoded payload as a read only, forward only stream.
type Compressed struct {
	dec *zstd.Decoder
	pos uint64
}

// NewCompressed starts decoding r.
func NewCompressed(r io.Reader) (*Compressed, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Compressed{dec: dec}, nil
}

func (c *Compressed) CanRead() bool { return true }
func (c *Compressed) CanWrite() bool { return false }
func (c *Compressed) CanSeek() bool { return false }

func (c *Compressed) Read(p []byte) (int, error) {
	n, err := c.dec.Read(p)
	c.pos += uint64(n)
	return n, err
}

func (c *Compressed) Write([]byte) (int, error) {
	return 0, ErrNotWritable
}

func (c *Compressed) Seek(int64, int) (int64, error) {
	return int64(c.pos), ErrNotSeekable
}

func (c *Compressed) Size() uint64 { return 0 }
func (c *Compressed) Position() uint64 { return c.pos }

func (c *Compressed) SetSize(uint64) error {
	return ErrNotWritable
}

func (c *Compressed) RelativeSeek(int64) error {
	return ErrNotSeekable
}

// Close releases the decoder.
func (c *Compressed) Close() error {
	c.dec.Close()
	return nil
}

// Compress encodes raw in one shot.
func Compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// Decompress decodes a payload produced by Compress.
func Decompress(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(payload, nil)
}

// IsCompressed reports whether b starts with the zstd frame magic.
func IsCompressed(b []byte) bool {
	return len(b) >= 4 && b[0] == 0x28 && b[1] == 0xB5 && b[2] == 0x2F && b[3] == 0xFD
}

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

const (
	// LengthPrefixBits is the width of the bit-count header written before the payload.
	LengthPrefixBits = 32
	// ChannelsPerPixel counts the samples carrying one LSB each (R, G, B; alpha is skipped).
	ChannelsPerPixel = 3
)

var (
	ErrCapacityExceeded = errors.New("payload exceeds image capacity")
	ErrCorruptImage     = errors.New("image does not carry a readable payload")
)

// Capacity returns the number of payload bits img can hold after the length prefix.
func Capacity(img image.Image) int {
	b := img.Bounds()
	total := b.Dx() * b.Dy() * ChannelsPerPixel
	if total <= LengthPrefixBits {
		return 0
	}
	return total - LengthPrefixBits
}

// Embed returns a copy of img with data hidden in the least significant bit of
// every R, G and B sample, row-major. The first LengthPrefixBits samples hold the
// payload bit count (big-endian), followed by the payload bits MSB-first.
// img itself is never modified.
func Embed(img *image.NRGBA, data []byte) (*image.NRGBA, error) {
	bits := len(data) * 8
	if capacity := Capacity(img); bits > capacity {
		return nil, fmt.Errorf("%w: need %d bits, have %d", ErrCapacityExceeded, bits, capacity)
	}

	out := Clone(img)
	w := newBitWriter(out)

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(bits))
	w.writeBytes(prefix[:])
	w.writeBytes(data)

	return out, nil
}

// Extract reads the payload written by Embed.
func Extract(img *image.NRGBA) ([]byte, error) {
	capacity := Capacity(img)
	if capacity == 0 {
		return nil, fmt.Errorf("%w: image too small for a length prefix", ErrCorruptImage)
	}

	r := newBitReader(img)
	prefix := r.readBytes(4)
	bits := int(binary.BigEndian.Uint32(prefix))

	switch {
	case bits == 0:
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptImage)
	case bits%8 != 0:
		return nil, fmt.Errorf("%w: bit count %d is not byte aligned", ErrCorruptImage, bits)
	case bits > capacity:
		return nil, fmt.Errorf("%w: declared %d bits, capacity %d", ErrCorruptImage, bits, capacity)
	}

	return r.readBytes(bits / 8), nil
}

// Clone returns a deep copy of img with its origin moved to (0, 0).
func Clone(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(out.Pix[out.PixOffset(0, y):out.PixOffset(0, y)+b.Dx()*4], src[:b.Dx()*4])
	}
	return out
}

// sampleCursor walks the R, G, B samples of an image in scan order.
type sampleCursor struct {
	img     *image.NRGBA
	x, y    int
	channel int
}

func (c *sampleCursor) index() int {
	b := c.img.Bounds()
	return c.img.PixOffset(b.Min.X+c.x, b.Min.Y+c.y) + c.channel
}

func (c *sampleCursor) advance() {
	c.channel++
	if c.channel < ChannelsPerPixel {
		return
	}
	c.channel = 0
	c.x++
	if c.x == c.img.Bounds().Dx() {
		c.x = 0
		c.y++
	}
}

type bitWriter struct{ sampleCursor }

func newBitWriter(img *image.NRGBA) *bitWriter {
	return &bitWriter{sampleCursor{img: img}}
}

func (w *bitWriter) writeBytes(data []byte) {
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			idx := w.index()
			w.img.Pix[idx] = w.img.Pix[idx]&0xFE | (b>>i)&1
			w.advance()
		}
	}
}

type bitReader struct{ sampleCursor }

func newBitReader(img *image.NRGBA) *bitReader {
	return &bitReader{sampleCursor{img: img}}
}

func (r *bitReader) readBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		var b byte
		for j := 0; j < 8; j++ {
			b = b<<1 | r.img.Pix[r.index()]&1
			r.advance()
		}
		out[i] = b
	}
	return out
}

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrImageTooLarge    = errors.New("image dimensions exceed the allowed pixel count")
	ErrUnsupportedImage = errors.New("unsupported or unreadable image")
)

// Decode reads an image in any registered format (PNG, JPEG, GIF, BMP, WebP) and
// converts it to NRGBA. Dimensions are checked against maxPixels before the pixel
// data is decoded; maxPixels <= 0 disables the check.
func Decode(r io.Reader, maxPixels int) (*image.NRGBA, string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return ToNRGBA(img), format, nil
}

// ToNRGBA returns img as NRGBA anchored at (0, 0), copying when a conversion is needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return Clone(n)
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// EncodePNG writes img losslessly. PNG is the only output format since any lossy
// re-encoding would destroy the embedded bits.
func EncodePNG(w io.Writer, img *image.NRGBA) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	// Registered formats.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrBadImage is returned when data cannot be decoded as an image.
var ErrBadImage = errors.New("bad image")

// Decode decodes PNG, JPEG, GIF, BMP, TIFF or WebP data and returns the
// image with its format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty", ErrBadImage)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: zero size", ErrBadImage)
	}
	return img, format, nil
}

// EncodePNG encodes img as PNG for transport to engines.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

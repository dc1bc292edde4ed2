// Package codec decodes uploaded images and produces JPEG thumbnails.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

const DefaultQuality = 85

// MaxPixels bounds width*height of a decoded image (Pillow's MAX_IMAGE_PIXELS).
const MaxPixels = 89_478_485

var ErrTooManyPixels = errors.New("image dimensions exceed limit")

// Decode reads an image and applies its EXIF orientation. Images larger than
// MaxPixels are rejected from their header before any pixel buffer is allocated.
func Decode(r io.Reader) (image.Image, error) {
	return DecodeLimit(r, MaxPixels)
}

func DecodeLimit(r io.Reader, maxPixels int64) (image.Image, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels <= 0 || pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(io.MultiReader(&head, r), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ResizeToFit scales img to fit within width x height keeping its aspect ratio.
// Images already inside the box are returned unchanged.
func ResizeToFit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() <= width && b.Dy() <= height {
		return img
	}
	return imaging.Fit(img, width, height, imaging.Lanczos)
}

// Encode writes img as JPEG. Quality outside 1..100 falls back to DefaultQuality.
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

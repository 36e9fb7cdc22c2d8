// Package media validates, compresses and stores user images.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"matchpoint/internal/domain"
)

const (
	// MaxUploadBytes is the largest raw image accepted from a client.
	MaxUploadBytes = 5 << 20
	// InlineLimit is the largest compressed image that may fall back to a data URI.
	InlineLimit = 200 << 10

	// MaxPixels bounds width*height as declared by the image header.
	MaxPixels = 40_000_000
	// MaxSide bounds either declared dimension.
	MaxSide = 16000

	DefaultMaxDimension = 1200
	DefaultQuality      = 80
	minQuality          = 40
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Validate checks size and sniffed type. The declared content type is ignored
// when the bytes say otherwise.
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrUnsupportedImage
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrImageTooLarge, len(data), MaxUploadBytes)
	}
	ct := http.DetectContentType(data)
	if !allowedTypes[ct] {
		return "", domain.ErrUnsupportedImage
	}
	if err := checkDimensions(data); err != nil {
		return "", err
	}
	return ct, nil
}

// checkDimensions reads only the header so the pixel buffer is never allocated
// for images that claim absurd dimensions.
func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return domain.ErrUnsupportedImage
	}
	if cfg.Width > MaxSide || cfg.Height > MaxSide || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrImageTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	return nil
}

// Compress decodes r, bounds its longest side to maxDim and re-encodes it as JPEG.
func Compress(r io.Reader, maxDim, quality int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", domain.ErrImageTooLarge, MaxUploadBytes)
	}
	if err := checkDimensions(data); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedImage, err)
	}
	img := Resize(src, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales src so neither side exceeds maxDim, keeping the aspect ratio.
func Resize(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

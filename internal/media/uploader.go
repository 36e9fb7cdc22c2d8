package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"matchpoint/internal/domain"
)

// Options tune one uploader. Quiz images and profile photos use different ceilings.
type Options struct {
	MaxDimension int
	Quality      int
	// MaxBytes is the ceiling for the compressed image.
	MaxBytes    int
	InlineLimit int
}

// ProfilePhotoOptions keeps profile photos under 1MB.
var ProfilePhotoOptions = Options{MaxDimension: 800, Quality: DefaultQuality, MaxBytes: 1 << 20, InlineLimit: InlineLimit}

// QuizImageOptions bounds quiz cover images.
var QuizImageOptions = Options{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality, MaxBytes: 2 << 20, InlineLimit: InlineLimit}

// Uploader compresses images and stores them in a Blob, falling back to inline
// data URIs for small images when the blob store fails.
type Uploader struct {
	blob Blob
	opts Options
	log  *logrus.Entry
}

func NewUploader(blob Blob, opts Options, log *logrus.Logger) *Uploader {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = InlineLimit
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Uploader{blob: blob, opts: opts, log: log.WithField("component", "media")}
}

// Store validates, compresses and uploads data, returning a URL or data URI.
func (u *Uploader) Store(ctx context.Context, path string, data []byte, _ string) (string, error) {
	if _, err := Validate(data); err != nil {
		return "", err
	}
	out, err := u.compress(data)
	if err != nil {
		return "", err
	}

	ref, err := u.blob.Upload(ctx, jpegPath(path), out, "image/jpeg")
	if err == nil {
		return ref, nil
	}
	if len(out) > u.opts.InlineLimit {
		return "", fmt.Errorf("%w: upload failed and %d bytes exceeds inline limit: %v", domain.ErrImageTooLarge, len(out), err)
	}
	u.log.WithError(err).WithField("path", path).Warn("blob upload failed, storing image inline")
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out), nil
}

// compress steps quality down until the image fits MaxBytes.
func (u *Uploader) compress(data []byte) ([]byte, error) {
	quality := u.opts.Quality
	for {
		out, err := Compress(bytes.NewReader(data), u.opts.MaxDimension, quality)
		if err != nil {
			return nil, err
		}
		if u.opts.MaxBytes <= 0 || len(out) <= u.opts.MaxBytes {
			return out, nil
		}
		if quality <= minQuality {
			return nil, fmt.Errorf("%w: %d bytes after compression", domain.ErrImageTooLarge, len(out))
		}
		quality -= 15
		if quality < minQuality {
			quality = minQuality
		}
	}
}

// Delete removes a stored image. Inline images have nothing to delete.
func (u *Uploader) Delete(ctx context.Context, ref string) error {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return nil
	}
	return u.blob.Delete(ctx, ref)
}

func jpegPath(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		path = path[:i]
	}
	return path + ".jpg"
}

// Package capture produces the photos handed to the analysis upload step.
package capture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
)

// MaxPhotoSize mirrors the upload limit enforced by the analysis service.
const MaxPhotoSize = 10 << 20

var (
	// ErrEmptyPhoto is returned for a zero-length capture.
	ErrEmptyPhoto = errors.New("capture: empty photo")
	// ErrPhotoTooLarge is returned when the encoded photo exceeds MaxPhotoSize.
	ErrPhotoTooLarge = errors.New("capture: photo too large")
	// ErrUnsupportedImage is returned when the bytes are not a decodable image.
	ErrUnsupportedImage = errors.New("capture: unsupported image")
)

// Photo is an opaque handle to one captured image, already JPEG encoded.
type Photo struct {
	origin string
	roi    bool
	data   []byte
}

// NewPhoto normalises raw image bytes into a JPEG photo with metadata removed.
// roi marks an image that is already cropped to the region of interest.
func NewPhoto(origin string, raw []byte, roi bool) (*Photo, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPhoto
	}
	data, err := reencode(raw)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPhotoSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPhotoTooLarge, len(data))
	}
	return &Photo{origin: origin, roi: roi, data: data}, nil
}

// Origin describes where the photo came from, such as a file path.
func (p *Photo) Origin() string { return p.origin }

// ROI reports whether the photo is a cropped region of interest.
func (p *Photo) ROI() bool { return p.roi }

// Size is the encoded JPEG length.
func (p *Photo) Size() int { return len(p.data) }

// Reader returns a fresh reader over the JPEG bytes.
func (p *Photo) Reader() io.Reader { return bytes.NewReader(p.data) }

// SHA256 returns the hex digest of the JPEG bytes.
func (p *Photo) SHA256() string {
	sum := sha256.Sum256(p.data)
	return hex.EncodeToString(sum[:])
}

// Source exposes the subset of functionality used by the scan flow.
type Source interface {
	Capture(ctx context.Context) (*Photo, error)
}

// FileSource reads a photo from disk.
type FileSource struct {
	Path string
	ROI  bool
}

// Capture loads and normalises the file.
func (s FileSource) Capture(ctx context.Context) (*Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if info.Size() > 4*MaxPhotoSize {
		return nil, fmt.Errorf("%w: %s", ErrPhotoTooLarge, s.Path)
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return NewPhoto(s.Path, raw, s.ROI)
}

// reencode decodes any supported format and writes it back as JPEG, which
// drops EXIF and other embedded metadata.
func reencode(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("capture: encode: %w", err)
	}
	return buf.Bytes(), nil
}

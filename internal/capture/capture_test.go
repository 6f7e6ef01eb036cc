package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNewPhotoReencodesAsJPEG(t *testing.T) {
	photo, err := NewPhoto("mem", testPNG(t), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(photo.Reader())
	if len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 || data[2] != 0xFF {
		t.Fatalf("expected JPEG magic, got % x", data[:3])
	}
	if photo.Size() != len(data) {
		t.Fatalf("size mismatch: %d vs %d", photo.Size(), len(data))
	}
	if len(photo.SHA256()) != 64 {
		t.Fatalf("unexpected digest %q", photo.SHA256())
	}

	again, _ := io.ReadAll(photo.Reader())
	if !bytes.Equal(data, again) {
		t.Fatal("each reader must yield the full photo")
	}
}

func TestNewPhotoRejectsBadInput(t *testing.T) {
	if _, err := NewPhoto("mem", nil, false); !errors.Is(err, ErrEmptyPhoto) {
		t.Fatalf("expected ErrEmptyPhoto, got %v", err)
	}
	if _, err := NewPhoto("mem", []byte("plain text"), false); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestFileSourceCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	if err := os.WriteFile(path, testPNG(t), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	photo, err := FileSource{Path: path, ROI: true}.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !photo.ROI() || photo.Origin() != path {
		t.Fatalf("unexpected photo metadata: roi=%v origin=%s", photo.ROI(), photo.Origin())
	}

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing.jpg")}).Capture(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

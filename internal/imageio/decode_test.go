package imageio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.png")
	writePNG(t, path, 30, 20)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(30, 20) {
		t.Fatalf("size = %v, want 30x20", got)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	data := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, bytes.Repeat([]byte{0x42}, 32)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := Open(path)
	var decErr *DecodeError
	if !errors.As(err, &decErr) || decErr.Path != path {
		t.Fatalf("expected DecodeError for %s, got %v", path, err)
	}
}

func TestOpenRejectsNonRaster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.png")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n%fake document"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.jpg"))
	var decErr *DecodeError
	if !errors.As(err, &decErr) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected DecodeError wrapping ErrNotExist, got %v", err)
	}
}

func TestOpenAppliesExifOrientation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotated.jpg")
	if err := buildJPEGWithOrientation(path, 40, 20, 6); err != nil {
		t.Fatalf("build JPEG: %v", err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(20, 40) {
		t.Fatalf("size = %v, want 20x40 after rotation", got)
	}
}

func TestReadOrientationFromJPEG(t *testing.T) {
	dir := t.TempDir()
	tagged := filepath.Join(dir, "tagged.jpg")
	if err := buildJPEGWithOrientation(tagged, 8, 8, 3); err != nil {
		t.Fatalf("build JPEG: %v", err)
	}
	plain := filepath.Join(dir, "plain.jpg")
	var body bytes.Buffer
	if err := jpeg.Encode(&body, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(plain, body.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cases := []struct {
		path string
		want Orientation
	}{
		{tagged, OrientRotate180},
		{plain, OrientNormal},
	}
	for _, tc := range cases {
		f, err := os.Open(tc.path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		got, err := readOrientation(f)
		f.Close()
		if err != nil {
			t.Fatalf("%s: readOrientation: %v", filepath.Base(tc.path), err)
		}
		if got != tc.want {
			t.Fatalf("%s: orientation = %d, want %d", filepath.Base(tc.path), got, tc.want)
		}
	}
}

func TestOrientMapsPixels(t *testing.T) {
	red := color.NRGBA{R: 0xff, A: 0xff}
	blue := color.NRGBA{B: 0xff, A: 0xff}
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(1, 0, blue)

	cases := []struct {
		o           Orientation
		size        image.Point
		first, last color.NRGBA
	}{
		{OrientNormal, image.Pt(2, 1), red, blue},
		{OrientFlipH, image.Pt(2, 1), blue, red},
		{OrientRotate180, image.Pt(2, 1), blue, red},
		{OrientFlipV, image.Pt(2, 1), red, blue},
		{OrientTranspose, image.Pt(1, 2), red, blue},
		{OrientRotate90, image.Pt(1, 2), red, blue},
		{OrientTransverse, image.Pt(1, 2), blue, red},
		{OrientRotate270, image.Pt(1, 2), blue, red},
		{Orientation(42), image.Pt(2, 1), red, blue},
	}
	for _, tc := range cases {
		out := Orient(src, tc.o)
		if got := out.Bounds().Size(); got != tc.size {
			t.Fatalf("orientation %d: size %v, want %v", tc.o, got, tc.size)
		}
		last := image.Pt(tc.size.X-1, tc.size.Y-1)
		if got := color.NRGBAModel.Convert(out.At(0, 0)); got != tc.first {
			t.Fatalf("orientation %d: first pixel %v, want %v", tc.o, got, tc.first)
		}
		if got := color.NRGBAModel.Convert(out.At(last.X, last.Y)); got != tc.last {
			t.Fatalf("orientation %d: last pixel %v, want %v", tc.o, got, tc.last)
		}
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// buildJPEGWithOrientation writes a w x h JPEG whose APP1 segment carries the
// given EXIF orientation.
func buildJPEGWithOrientation(path string, w, h int, orientation uint16) error {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		return err
	}
	exif := append([]byte("Exif\x00\x00"), buildOrientationTIFF(orientation)...)

	var buf bytes.Buffer
	buf.Write(body.Bytes()[:2])
	buf.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(exif)+2))
	buf.Write(exif)
	buf.Write(body.Bytes()[2:])

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func buildOrientationTIFF(orientation uint16) []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, orientation)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))
	return tiff.Bytes()
}

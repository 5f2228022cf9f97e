// Package imageio turns input files into upright bitmaps.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pixfit/pkg/imgutil"
)

var ErrUnsupported = errors.New("unsupported image type")

// DecodeError reports an input that could not be turned into a bitmap.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Open decodes the raster image at path and applies its EXIF orientation.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// Decode reads a raster image from rs, sniffing the type from its header
// rather than trusting a file extension.
func Decode(rs io.ReadSeeker) (image.Image, error) {
	kind, err := imgutil.SniffReader(rs)
	if err != nil {
		return nil, err
	}
	if !kind.IsRaster() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(rs)
	if err != nil {
		return nil, err
	}
	if !kind.HasExif() {
		return img, nil
	}

	// A broken EXIF block never costs the user the picture itself.
	orientation, err := readOrientation(rs)
	if err != nil {
		return img, nil
	}
	return Orient(img, orientation), nil
}

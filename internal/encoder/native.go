package encoder

import (
	"fmt"
	"image"
	"image/gif"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"pixfit/pkg/imgutil"
)

// NativeJPEGQuality is used when a JPEG source is written back as JPEG.
const NativeJPEGQuality = 95

// NativeExtension is the extension EncodeNative output for kind should carry.
func NativeExtension(kind imgutil.Kind) string {
	switch kind {
	case imgutil.KindJPEG:
		return "jpg"
	case imgutil.KindTIFF:
		return "tiff"
	case imgutil.KindGIF:
		return "gif"
	case imgutil.KindBMP:
		return "bmp"
	case imgutil.KindWebP:
		return "webp"
	default:
		return "png"
	}
}

// EncodeNative writes img in the container of kind without any size search:
// JPEG at NativeJPEGQuality, WebP lossless, everything else with its lossless
// encoder. Kinds without an encoder, PDF included, fall back to PNG.
func (e *Encoder) EncodeNative(img image.Image, kind imgutil.Kind) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, &EncodeError{Format: Native, Err: ErrEmptyImage}
	}

	var write func(io.Writer) error
	lossless := true
	quality := 0.0
	switch kind {
	case imgutil.KindJPEG:
		lossless = false
		quality = NativeJPEGQuality
		write = func(w io.Writer) error { return e.codec.JPEG(w, img, NativeJPEGQuality) }
	case imgutil.KindWebP:
		write = func(w io.Writer) error { return e.codec.WebP(w, img, 100, true) }
	case imgutil.KindGIF:
		write = func(w io.Writer) error { return gif.Encode(w, img, nil) }
	case imgutil.KindBMP:
		write = func(w io.Writer) error { return bmp.Encode(w, img) }
	case imgutil.KindTIFF:
		write = func(w io.Writer) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}
	default:
		write = func(w io.Writer) error { return e.codec.PNG(w, img) }
	}

	res, err := e.once(Native, img, write)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", kind, err)
	}
	res.Quality = quality
	res.Lossless = lossless
	e.log.Debug("encoded native", "kind", kind, "bytes", len(res.Bytes))
	return res, nil
}

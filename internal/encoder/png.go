package encoder

import (
	"image"
	"io"
	"math"

	"golang.org/x/image/draw"
)

const (
	// Resizes below this linear scale are refused.
	minScale = 0.1
	// Headroom so the estimate's error rarely pushes output over target.
	scaleMargin  = 0.95
	minDimension = 32
)

func (e *Encoder) encodePNG(img image.Image, format Format) (Result, error) {
	return e.once(format, img, func(w io.Writer) error {
		return e.codec.PNG(w, img)
	})
}

// encodePNGToSize keeps PNG lossless and shrinks the pixel grid instead.
func (e *Encoder) encodePNGToSize(img image.Image, target int) (Result, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	estimated := Estimate(w, h)
	if estimated <= target {
		return e.encodePNG(img, PNGToSize)
	}

	scale := math.Min(1, math.Sqrt(float64(target)/float64(estimated))*scaleMargin)
	if scale < minScale {
		return Result{}, &TargetTooSmallError{Target: target, Estimated: estimated, Scale: scale}
	}

	nw, nh := scaledSize(w, h, scale)
	resized := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	resizeFilter(scale).Scale(resized, resized.Bounds(), img, b, draw.Src, nil)

	res, err := e.encodePNG(resized, PNGToSize)
	if err != nil {
		return Result{}, err
	}
	res.Resized = true
	return res, nil
}

func scaledSize(w, h int, scale float64) (int, int) {
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return max(nw, minDimension), max(nh, minDimension)
}

// resizeFilter trades sharpness for speed as the downscale gets harsher.
func resizeFilter(scale float64) draw.Interpolator {
	switch {
	case scale > 0.8:
		return draw.CatmullRom
	case scale > 0.5:
		return draw.BiLinear
	default:
		return draw.ApproxBiLinear
	}
}

package encoder

import (
	"bytes"
	"image"
	"io"
	"math"
)

const (
	qualityFloor = 10
	qualityDecay = 0.8

	smallTarget  = 50_000
	mediumTarget = 200_000

	// Images below this pixel count are also tried as lossless WebP.
	smartLosslessPixels = 500_000
	// Lossless WebP may overshoot the target by this factor and still win.
	losslessSlack = 1.2

	// libwebp reads quality as compression effort in lossless mode.
	losslessEffort = 75
)

func jpegInitialQuality(target int) int {
	switch {
	case target < smallTarget:
		return 40
	case target < mediumTarget:
		return 60
	default:
		return 80
	}
}

func webpInitialQuality(target int) float64 {
	switch {
	case target < smallTarget:
		return 50
	case target < mediumTarget:
		return 75
	default:
		return 85
	}
}

// jpegSchedule is the integer quality sequence q, floor(q*0.8), ... ending
// with the first value at or below the floor.
func jpegSchedule(q int) []float64 {
	var out []float64
	for {
		if q < 1 {
			q = 1
		}
		out = append(out, float64(q))
		if q <= qualityFloor {
			return out
		}
		q = int(math.Floor(float64(q) * qualityDecay))
	}
}

// webpSchedule is the real-valued counterpart of jpegSchedule.
func webpSchedule(q float64) []float64 {
	var out []float64
	for {
		out = append(out, q)
		if q <= qualityFloor {
			return out
		}
		q *= qualityDecay
	}
}

// search walks qualities until an attempt fits target; the last attempt is
// returned when none does.
func (e *Encoder) search(format Format, img image.Image, target int, qualities []float64,
	write func(w io.Writer, quality float64) error) (Result, error) {

	buf := e.pool.Get()
	defer e.pool.Put(buf)

	b := img.Bounds()
	res := Result{Format: format, Width: b.Dx(), Height: b.Dy()}
	for _, q := range qualities {
		buf.Reset()
		res.Attempts = append(res.Attempts, q)
		res.Quality = q
		if err := write(buf, q); err != nil {
			return Result{}, &EncodeError{Format: format, Err: err}
		}
		e.log.Debug("attempt", "format", format, "quality", q, "bytes", buf.Len(), "target", target)
		if buf.Len() <= target {
			break
		}
	}
	res.Bytes = bytes.Clone(buf.Bytes())
	return res, nil
}

func (e *Encoder) encodeJPEG(img image.Image, target int) (Result, error) {
	return e.search(JPEG, img, target, jpegSchedule(jpegInitialQuality(target)),
		func(w io.Writer, q float64) error {
			return e.codec.JPEG(w, img, int(q))
		})
}

func (e *Encoder) encodeWebPLossy(img image.Image, target int) (Result, error) {
	return e.search(WebPLossy, img, target, webpSchedule(webpInitialQuality(target)),
		func(w io.Writer, q float64) error {
			return e.codec.WebP(w, img, float32(q), false)
		})
}

func (e *Encoder) encodeWebPLossless(img image.Image, format Format) (Result, error) {
	res, err := e.once(format, img, func(w io.Writer) error {
		return e.codec.WebP(w, img, losslessEffort, true)
	})
	if err != nil {
		return Result{}, err
	}
	res.Lossless = true
	return res, nil
}

// encodeWebPSmart runs the lossy search and, for small images or when quality
// is preferred, swaps in lossless output that lands within the slack.
func (e *Encoder) encodeWebPSmart(img image.Image, target int) (Result, error) {
	lossy, err := e.encodeWebPLossy(img, target)
	if err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	if !e.preferQuality && b.Dx()*b.Dy() >= smartLosslessPixels {
		return lossy, nil
	}

	lossless, err := e.encodeWebPLossless(img, WebPLossy)
	if err != nil {
		e.log.Debug("lossless webp candidate failed", "err", err)
		return lossy, nil
	}
	if float64(len(lossless.Bytes)) <= float64(target)*losslessSlack {
		lossless.Attempts = lossy.Attempts
		return lossless, nil
	}
	return lossy, nil
}

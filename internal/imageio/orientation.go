package imageio

import (
	"errors"
	"image"
	"image/draw"
	"io"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// Orientation is the EXIF 0x0112 tag value, 1 through 8.
type Orientation int

const (
	OrientNormal Orientation = 1 + iota
	OrientFlipH
	OrientRotate180
	OrientFlipV
	OrientTranspose
	OrientRotate90
	OrientTransverse
	OrientRotate270
)

func readOrientation(rs io.ReadSeeker) (Orientation, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return OrientNormal, err
	}

	raw, err := exif.SearchAndExtractExifWithReader(rs)
	if err != nil {
		if isNoExif(err) {
			return OrientNormal, nil
		}
		return OrientNormal, err
	}

	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		if isNoExif(err) {
			return OrientNormal, nil
		}
		return OrientNormal, err
	}

	for _, tag := range tags {
		if tag.TagName != "Orientation" {
			continue
		}
		if v, ok := tag.Value.([]uint16); ok && len(v) > 0 {
			return Orientation(v[0]), nil
		}
	}
	return OrientNormal, nil
}

// Orient returns img transformed so that it displays upright. Unknown
// orientation values leave the image untouched.
func Orient(img image.Image, o Orientation) image.Image {
	if o <= OrientNormal || o > OrientRotate270 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if o >= OrientTranspose {
		dw, dh = h, w
	}

	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			sx, sy := sourcePoint(o, x, y, w, h)
			si := src.PixOffset(sx, sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// sourcePoint maps a destination pixel back to the pixel of the w x h source
// it is copied from.
func sourcePoint(o Orientation, x, y, w, h int) (int, int) {
	switch o {
	case OrientFlipH:
		return w - 1 - x, y
	case OrientRotate180:
		return w - 1 - x, h - 1 - y
	case OrientFlipV:
		return x, h - 1 - y
	case OrientTranspose:
		return y, x
	case OrientRotate90:
		return y, h - 1 - x
	case OrientTransverse:
		return w - 1 - y, h - 1 - x
	case OrientRotate270:
		return w - 1 - y, x
	default:
		return x, y
	}
}

// go-exif wraps its sentinels without Unwrap support, so match on the message.
func isNoExif(err error) bool {
	if errors.Is(err, exif.ErrNoExif) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no exif")
}

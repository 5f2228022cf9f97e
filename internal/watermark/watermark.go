// Package watermark stamps an image and/or text mark onto bitmaps.
package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"pixfit/internal/imageio"
)

const (
	DefaultOpacity = 0.8
	DefaultScale   = 0.2
	DefaultMargin  = 20
)

const (
	textPadding = 4
	// Text grows by one step per this many pixels of image height.
	textStepHeight = 200
)

var ErrNoMark = errors.New("watermark needs an image or text")

var (
	textColor    = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	textBoxColor = color.NRGBA{A: 0x80}
)

// Config describes a watermark. Zero Opacity, Scale and Margin take the
// defaults 0.8, 0.2 and 20 px.
type Config struct {
	ImagePath string
	Text      string
	Position  Position
	// Offset is used when Position is Custom.
	Offset image.Point
	// Opacity multiplies the mark's own alpha, in (0, 1].
	Opacity float64
	// Scale resizes the mark image relative to its own size.
	Scale  float64
	Margin int
}

// Overlay is a loaded watermark. It is read-only after New and safe for
// concurrent use.
type Overlay struct {
	cfg  Config
	mark image.Image
	mask image.Image
}

func New(cfg Config) (*Overlay, error) {
	if cfg.ImagePath == "" && cfg.Text == "" {
		return nil, ErrNoMark
	}
	if cfg.Opacity == 0 {
		cfg.Opacity = DefaultOpacity
	}
	if cfg.Opacity < 0 || cfg.Opacity > 1 {
		return nil, fmt.Errorf("watermark opacity %.2f out of range (0, 1]", cfg.Opacity)
	}
	if cfg.Scale == 0 {
		cfg.Scale = DefaultScale
	}
	if cfg.Scale < 0 {
		return nil, fmt.Errorf("watermark scale %.2f must be positive", cfg.Scale)
	}
	if cfg.Margin == 0 {
		cfg.Margin = DefaultMargin
	}

	o := &Overlay{
		cfg:  cfg,
		mask: image.NewUniform(color.Alpha{A: uint8(cfg.Opacity*0xff + 0.5)}),
	}
	if cfg.ImagePath != "" {
		src, err := imageio.Open(cfg.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("load watermark: %w", err)
		}
		o.mark = scaleImage(src, cfg.Scale)
	}
	return o, nil
}

// Apply returns a copy of img with the mark composited on top. img itself is
// never modified.
func (o *Overlay) Apply(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errors.New("watermark: nil image")
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	mark := o.compose(b)
	if mark == nil {
		return dst, nil
	}
	mb := mark.Bounds()
	at := place(o.cfg.Position, b, mb.Size(), o.cfg.Margin, o.cfg.Offset)
	r := image.Rectangle{Min: at, Max: at.Add(mb.Size())}.Intersect(b)
	draw.DrawMask(dst, r, mark, mb.Min, o.mask, image.Point{}, draw.Over)
	return dst, nil
}

// compose stacks the image mark above the text mark.
func (o *Overlay) compose(target image.Rectangle) image.Image {
	var text image.Image
	if o.cfg.Text != "" {
		text = renderText(o.cfg.Text, max(1, target.Dy()/textStepHeight))
	}
	switch {
	case o.mark == nil:
		return text
	case text == nil:
		return o.mark
	}

	mb, tb := o.mark.Bounds(), text.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, max(mb.Dx(), tb.Dx()), mb.Dy()+tb.Dy()))
	draw.Draw(out, image.Rect(0, 0, mb.Dx(), mb.Dy()), o.mark, mb.Min, draw.Src)
	draw.Draw(out, image.Rect(0, mb.Dy(), tb.Dx(), mb.Dy()+tb.Dy()), text, tb.Min, draw.Src)
	return out
}

// renderText draws s in the 7x13 bitmap face on a translucent box, scaled up
// by an integer factor.
func renderText(s string, factor int) image.Image {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	box := image.NewNRGBA(image.Rect(0, 0, width+2*textPadding, height+2*textPadding))
	draw.Draw(box, box.Bounds(), image.NewUniform(textBoxColor), image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  box,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(textPadding, textPadding+metrics.Ascent.Ceil()),
	}
	d.DrawString(s)

	if factor == 1 {
		return box
	}
	bb := box.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bb.Dx()*factor, bb.Dy()*factor))
	draw.NearestNeighbor.Scale(out, out.Bounds(), box, bb, draw.Src, nil)
	return out
}

func scaleImage(src image.Image, scale float64) image.Image {
	b := src.Bounds()
	w := max(int(float64(b.Dx())*scale+0.5), 1)
	h := max(int(float64(b.Dy())*scale+0.5), 1)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(out, out.Bounds(), src, b, draw.Over, nil)
	return out
}

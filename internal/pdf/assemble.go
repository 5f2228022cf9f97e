package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/phpdave11/gofpdf"
)

const (
	DefaultAssembleDPI = 300
	DefaultQuality     = 90
	mmPerInch          = 25.4
)

var ErrNoPages = errors.New("no images to place")

// Orientation decides which page side is the long one.
type Orientation int

const (
	// OrientAuto follows the image: wide images get landscape pages.
	OrientAuto Orientation = iota
	OrientPortrait
	OrientLandscape
)

func (o Orientation) String() string {
	switch o {
	case OrientPortrait:
		return "portrait"
	case OrientLandscape:
		return "landscape"
	default:
		return "auto"
	}
}

func ParseOrientation(name string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return OrientAuto, nil
	case "portrait", "p":
		return OrientPortrait, nil
	case "landscape", "l":
		return OrientLandscape, nil
	default:
		return OrientAuto, fmt.Errorf("unknown orientation %q (want auto|portrait|landscape)", name)
	}
}

// PageSize is either adaptive, sized from each image at the layout DPI, or a
// fixed paper size.
type PageSize int

const (
	PageAdaptive PageSize = iota
	PageA3
	PageA4
	PageA5
	PageLetter
	PageLegal
)

var pageNames = map[PageSize]string{
	PageAdaptive: "adaptive",
	PageA3:       "a3",
	PageA4:       "a4",
	PageA5:       "a5",
	PageLetter:   "letter",
	PageLegal:    "legal",
}

func (p PageSize) String() string {
	if name, ok := pageNames[p]; ok {
		return name
	}
	return fmt.Sprintf("page(%d)", int(p))
}

func ParsePageSize(name string) (PageSize, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return PageAdaptive, nil
	}
	for size, n := range pageNames {
		if n == name {
			return size, nil
		}
	}
	return PageAdaptive, fmt.Errorf("unknown page size %q (want adaptive|a3|a4|a5|letter|legal)", name)
}

// paper returns the portrait dimensions in millimetres.
func (p PageSize) paper() (float64, float64) {
	switch p {
	case PageA3:
		return 297, 420
	case PageA5:
		return 148, 210
	case PageLetter:
		return 215.9, 279.4
	case PageLegal:
		return 215.9, 355.6
	default:
		return 210, 297
	}
}

type LayoutOptions struct {
	Size        PageSize
	Orientation Orientation
	// Stretch fills the usable page area and ignores the aspect ratio.
	Stretch bool
	// Flow stacks several images on one fixed-size page, top to bottom.
	// Adaptive pages always hold exactly one image.
	Flow bool
	// DPI converts pixels to millimetres; zero means DefaultAssembleDPI.
	DPI float64
	// Margin is the blank border on every side, in millimetres.
	Margin float64
	// Quality is the JPEG quality of embedded images; 100 embeds lossless PNG.
	Quality int
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	if o.DPI <= 0 {
		o.DPI = DefaultAssembleDPI
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality > 100 {
		o.Quality = 100
	}
	if o.Margin < 0 {
		o.Margin = 0
	}
	return o
}

// pageSize is the page, in millimetres, that a w x h pixel image opens.
func pageSize(w, h int, o LayoutOptions) (float64, float64) {
	var pw, ph float64
	if o.Size == PageAdaptive {
		pw = float64(w)*mmPerInch/o.DPI + 2*o.Margin
		ph = float64(h)*mmPerInch/o.DPI + 2*o.Margin
		if o.Orientation == OrientAuto {
			return pw, ph
		}
	} else {
		pw, ph = o.Size.paper()
	}

	long, short := math.Max(pw, ph), math.Min(pw, ph)
	switch o.Orientation {
	case OrientLandscape:
		return long, short
	case OrientPortrait:
		return short, long
	default:
		if w > h {
			return long, short
		}
		return short, long
	}
}

// fit places a w x h pixel image inside the usable area of a page. Stretched
// images fill it; others keep their aspect ratio and are centred.
func fit(w, h int, pw, ph float64, o LayoutOptions) (x, y, dw, dh float64) {
	uw := pw - 2*o.Margin
	uh := ph - 2*o.Margin
	if o.Stretch {
		return o.Margin, o.Margin, uw, uh
	}
	iw := float64(w) * mmPerInch / o.DPI
	ih := float64(h) * mmPerInch / o.DPI
	s := math.Min(uw/iw, uh/ih)
	dw, dh = iw*s, ih*s
	return o.Margin + (uw-dw)/2, o.Margin + (uh-dh)/2, dw, dh
}

// Image is a bitmap already encoded for embedding.
type Image struct {
	Data   []byte
	Type   string
	Width  int
	Height int
}

// Prepare encodes img for embedding: JPEG at quality, or PNG at 100.
// Transparent areas are flattened onto white for JPEG.
func Prepare(img image.Image, quality int) (Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return Image{}, fmt.Errorf("empty image")
	}
	out := Image{Width: b.Dx(), Height: b.Dy()}

	var buf bytes.Buffer
	if quality >= 100 {
		if err := png.Encode(&buf, img); err != nil {
			return Image{}, err
		}
		out.Type = "PNG"
	} else {
		flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
			return Image{}, err
		}
		out.Type = "JPG"
	}
	out.Data = buf.Bytes()
	return out, nil
}

// Builder lays images out into one PDF document. It is not safe for
// concurrent use; callers add images in page order.
type Builder struct {
	doc    *gofpdf.Fpdf
	opts   LayoutOptions
	pages  int
	images int
	pageW  float64
	pageH  float64
	cursor float64
}

func NewBuilder(opts LayoutOptions) *Builder {
	doc := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "mm"})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("pixfit", true)
	return &Builder{doc: doc, opts: opts.withDefaults()}
}

// Options is the layout after defaults.
func (b *Builder) Options() LayoutOptions {
	return b.opts
}

func (b *Builder) Pages() int  { return b.pages }
func (b *Builder) Images() int { return b.images }

// Add places img on the current page or opens a new one.
func (b *Builder) Add(img Image) error {
	if img.Width <= 0 || img.Height <= 0 || len(img.Data) == 0 {
		return fmt.Errorf("image %d: empty", b.images+1)
	}
	name := fmt.Sprintf("img_%d", b.images)
	opt := gofpdf.ImageOptions{ImageType: img.Type, ReadDpi: false}
	b.doc.RegisterImageOptionsReader(name, opt, bytes.NewReader(img.Data))
	if err := b.doc.Error(); err != nil {
		return fmt.Errorf("image %d: %w", b.images+1, err)
	}

	if b.opts.Flow && b.opts.Size != PageAdaptive {
		b.flow(name, img, opt)
	} else {
		pw, ph := pageSize(img.Width, img.Height, b.opts)
		b.addPage(pw, ph)
		x, y, w, h := fit(img.Width, img.Height, pw, ph, b.opts)
		b.doc.ImageOptions(name, x, y, w, h, false, opt, 0, "")
	}
	if err := b.doc.Error(); err != nil {
		return fmt.Errorf("image %d: %w", b.images+1, err)
	}
	b.images++
	return nil
}

// flow places img below the previous one, scaled to the usable width, and
// breaks to a new page when it does not fit.
func (b *Builder) flow(name string, img Image, opt gofpdf.ImageOptions) {
	m := b.opts.Margin
	pw, ph := b.pageW, b.pageH
	if b.pages == 0 {
		pw, ph = pageSize(img.Width, img.Height, b.opts)
	}
	uw, uh := pw-2*m, ph-2*m

	iw := float64(img.Width)
	ih := float64(img.Height)
	s := math.Min(uw/iw, uh/ih)
	w, h := iw*s, ih*s

	if b.pages == 0 || b.cursor+h > ph-m {
		b.addPage(pw, ph)
	}
	b.doc.ImageOptions(name, m+(uw-w)/2, b.cursor, w, h, false, opt, 0, "")
	b.cursor += h
}

func (b *Builder) addPage(w, h float64) {
	b.doc.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
	b.pages++
	b.pageW, b.pageH = w, h
	b.cursor = b.opts.Margin
}

// Write renders the document to w. The builder cannot be used afterwards.
func (b *Builder) Write(w io.Writer) error {
	if b.images == 0 {
		return ErrNoPages
	}
	return b.doc.Output(w)
}

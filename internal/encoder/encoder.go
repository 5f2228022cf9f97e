package encoder

import (
	"bytes"
	"image"
	"io"

	"github.com/charmbracelet/log"

	"pixfit/internal/logging"
)

// Result is one finished encode. Bytes is owned by the caller.
type Result struct {
	Bytes  []byte
	Format Format
	// Quality is the last quality tried; zero for lossless output.
	Quality float64
	// Attempts lists every lossy quality tried, in order.
	Attempts []float64
	Width    int
	Height   int
	Resized  bool
	Lossless bool
}

type Options struct {
	Codec Codec
	Pool  *BufferPool
	// PreferQuality makes WebPLossy consider lossless output for any image
	// size, not only small ones.
	PreferQuality bool
	Logger        *log.Logger
}

// Encoder turns bitmaps into byte buffers sized against a target.
// It holds no per-call state and is safe for concurrent use.
type Encoder struct {
	codec         Codec
	pool          *BufferPool
	preferQuality bool
	log           *log.Logger
}

func New(opts Options) *Encoder {
	e := &Encoder{
		codec:         opts.Codec,
		pool:          opts.Pool,
		preferQuality: opts.PreferQuality,
		log:           logging.OrDiscard(opts.Logger),
	}
	if e.codec == nil {
		e.codec = NewStdCodec()
	}
	if e.pool == nil {
		e.pool = NewBufferPool()
	}
	return e
}

// Encode converts img to format, trying to stay within targetBytes.
// Lossy formats return the last attempt when the quality floor is reached
// without fitting; PNGToSize fails with a TargetTooSmallError instead.
func (e *Encoder) Encode(img image.Image, targetBytes int, format Format) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, &EncodeError{Format: format, Err: ErrEmptyImage}
	}

	var (
		res Result
		err error
	)
	switch format {
	case JPEG:
		res, err = e.encodeJPEG(img, targetBytes)
	case PNGToSize:
		res, err = e.encodePNGToSize(img, targetBytes)
	case PNGOriginal:
		res, err = e.encodePNG(img, PNGOriginal)
	case WebPLossy:
		res, err = e.encodeWebPSmart(img, targetBytes)
	case WebPLossless:
		res, err = e.encodeWebPLossless(img, WebPLossless)
	default:
		return Result{}, &EncodeError{Format: format, Err: ErrUnknownFormat}
	}
	if err != nil {
		return Result{}, err
	}

	e.log.Debug("encoded", "format", format, "target", targetBytes, "bytes", len(res.Bytes),
		"quality", res.Quality, "attempts", len(res.Attempts), "size", image.Pt(res.Width, res.Height))
	return res, nil
}

// once runs a single encode into a pooled buffer and copies the bytes out.
func (e *Encoder) once(format Format, img image.Image, write func(io.Writer) error) (Result, error) {
	buf := e.pool.Get()
	defer e.pool.Put(buf)

	if err := write(buf); err != nil {
		return Result{}, &EncodeError{Format: format, Err: err}
	}
	b := img.Bounds()
	return Result{
		Bytes:  bytes.Clone(buf.Bytes()),
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

package encoder

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"sync"

	"github.com/chai2010/webp"
)

// Codec is the set of fixed-parameter encode primitives the strategies drive.
// Implementations must be safe for concurrent use.
type Codec interface {
	JPEG(w io.Writer, img image.Image, quality int) error
	// PNG encodes with the fastest compression setting.
	PNG(w io.Writer, img image.Image) error
	WebP(w io.Writer, img image.Image, quality float32, lossless bool) error
}

// StdCodec encodes with image/jpeg, image/png and libwebp.
type StdCodec struct {
	png png.Encoder
}

func NewStdCodec() *StdCodec {
	return &StdCodec{
		png: png.Encoder{
			CompressionLevel: png.BestSpeed,
			BufferPool:       &pngBufferPool{},
		},
	}
}

func (c *StdCodec) JPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func (c *StdCodec) PNG(w io.Writer, img image.Image) error {
	return c.png.Encode(w, img)
}

func (c *StdCodec) WebP(w io.Writer, img image.Image, quality float32, lossless bool) error {
	return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: quality})
}

// pngBufferPool lets concurrent png.Encoder calls share zlib scratch space.
type pngBufferPool struct {
	pool sync.Pool
}

func (p *pngBufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *pngBufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

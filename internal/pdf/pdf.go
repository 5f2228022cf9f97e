// Package pdf counts PDF pages and recovers one bitmap per page.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pixfit/internal/imageio"
	"pixfit/internal/logging"
)

var configOnce sync.Once

func configuration() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Source reads PDFs with pdfcpu. It is stateless and safe for concurrent use.
type Source struct {
	log *log.Logger
}

func NewSource(logger *log.Logger) *Source {
	return &Source{log: logging.OrDiscard(logger)}
}

// PageCount returns the number of pages in the PDF at path.
func (s *Source) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := api.PageCount(f, configuration())
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", path, err)
	}
	return n, nil
}

// RenderPages returns one bitmap per page, in page order. Pages are taken
// from their largest embedded raster image at its native resolution; a page
// without one has a nil entry. dpi is only recorded.
func (s *Source) RenderPages(ctx context.Context, path string, dpi int) ([]image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := configuration()
	count, err := api.PageCount(f, conf)
	if err != nil {
		return nil, fmt.Errorf("count pages of %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	perPage, err := api.ExtractImagesRaw(f, nil, conf)
	if err != nil {
		return nil, fmt.Errorf("extract images from %s: %w", path, err)
	}

	largest := make(map[int]model.Image, count)
	for _, images := range perPage {
		for _, img := range images {
			if img.PageNr < 1 || img.PageNr > count || img.Reader == nil {
				continue
			}
			best, ok := largest[img.PageNr]
			if !ok || img.Width*img.Height > best.Width*best.Height {
				largest[img.PageNr] = img
			}
		}
	}

	s.log.Debug("extracting pdf pages", "path", path, "pages", count, "raster", len(largest), "dpi", dpi)

	pages := make([]image.Image, count)
	for nr := 1; nr <= count; nr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, ok := largest[nr]
		if !ok {
			s.log.Warn("pdf page has no raster image", "path", path, "page", nr)
			continue
		}
		data, err := io.ReadAll(raw)
		if err != nil {
			return nil, fmt.Errorf("read page %d image: %w", nr, err)
		}
		img, err := imageio.Decode(bytes.NewReader(data))
		if err != nil {
			s.log.Warn("pdf page image not decodable", "path", path, "page", nr, "type", raw.FileType, "err", err)
			continue
		}
		pages[nr-1] = img
	}
	return pages, nil
}

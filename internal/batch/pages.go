package batch

import (
	"context"
	"fmt"
	"image"
	"sync"

	"pixfit/internal/imageio"
)

// PageSource rasterises PDF pages.
type PageSource interface {
	PageCounter
	RenderPages(ctx context.Context, path string, dpi int) ([]image.Image, error)
}

type pageEntry struct {
	once      sync.Once
	pages     []image.Image
	err       error
	remaining int
}

// pageCache renders each PDF once no matter how many workers ask for its
// pages, and drops the bitmaps when the last page unit is released.
type pageCache struct {
	src PageSource
	dpi int

	mu      sync.Mutex
	entries map[string]*pageEntry
}

func newPageCache(src PageSource, dpi int, units []WorkUnit) *pageCache {
	c := &pageCache{src: src, dpi: dpi, entries: make(map[string]*pageEntry)}
	for _, u := range units {
		if !u.PDF {
			continue
		}
		e, ok := c.entries[u.Source]
		if !ok {
			e = &pageEntry{}
			c.entries[u.Source] = e
		}
		e.remaining++
	}
	return c
}

func (c *pageCache) page(ctx context.Context, u WorkUnit) (image.Image, error) {
	c.mu.Lock()
	e, ok := c.entries[u.Source]
	c.mu.Unlock()
	if !ok {
		return nil, &imageio.DecodeError{Path: u.Source, Err: fmt.Errorf("page %d not planned", u.Index+1)}
	}

	e.once.Do(func() {
		if c.src == nil {
			e.err = fmt.Errorf("no pdf reader configured")
			return
		}
		e.pages, e.err = c.src.RenderPages(ctx, u.Source, c.dpi)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if e.err != nil {
		return nil, &imageio.DecodeError{Path: u.Source, Err: e.err}
	}
	if u.Index >= len(e.pages) {
		return nil, &imageio.DecodeError{Path: u.Source, Err: fmt.Errorf("page %d out of range (%d pages)", u.Index+1, len(e.pages))}
	}
	img := e.pages[u.Index]
	if img == nil {
		return nil, &imageio.DecodeError{Path: u.Source, Err: fmt.Errorf("page %d has no raster content", u.Index+1)}
	}
	return img, nil
}

// release marks one page unit of u.Source as finished.
func (c *pageCache) release(u WorkUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[u.Source]
	if !ok {
		return
	}
	e.remaining--
	if e.remaining <= 0 {
		e.pages = nil
		delete(c.entries, u.Source)
	}
}

package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"pixfit/internal/imageio"
	"pixfit/internal/logging"
	"pixfit/internal/pdf"
	"pixfit/internal/progress"
)

var ErrNothingEmbedded = errors.New("no image could be added to the document")

// PDFOptions configures BuildPDF.
type PDFOptions struct {
	Layout    pdf.LayoutOptions
	Recursive bool
	// OutputDir defaults to DefaultOutputDir.
	OutputDir string
	// Name is the document file name; empty derives it from the input.
	Name string
	// Workers caps the decode pool; zero means GOMAXPROCS.
	Workers   int
	Watermark Watermarker
	Decode    DecodeFunc
	Logger    *log.Logger
}

// PDFSummary describes one assembled document.
type PDFSummary struct {
	RunID  string
	Output string
	Pages  int
	Images int
	Total  int
	Bytes  int64
	// Failures holds the images left out of the document, in plan order.
	Failures []UnitResult
	Elapsed  time.Duration
}

type preparedImage struct {
	idx int
	img pdf.Image
	err error
}

// BuildPDF places every image under path into one PDF, in plan order. PDF
// inputs are skipped. Images that fail to decode are left out and reported;
// the document is written as long as one image made it in.
func BuildPDF(ctx context.Context, path string, mode Mode, opts PDFOptions, sink progress.Sink) (PDFSummary, error) {
	if sink == nil {
		sink = progress.Discard
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.Decode == nil {
		opts.Decode = imageio.Open
	}
	logger := logging.OrDiscard(opts.Logger)
	started := time.Now()
	summary := PDFSummary{RunID: uuid.NewString()}
	processed, failed := 0, 0

	fail := func(err error) (PDFSummary, error) {
		summary.Elapsed = time.Since(started)
		sink.Send(progress.Snapshot{Processed: processed, Failed: failed, Total: summary.Total, Complete: true, Err: err.Error()})
		return summary, err
	}
	if opts.Workers < 0 {
		return fail(&InputError{Err: fmt.Errorf("workers must not be negative")})
	}

	plan, err := Enumerate(ctx, path, mode, EnumerateOptions{
		Recursive: opts.Recursive,
		Exclude:   opts.OutputDir,
		Logger:    logger,
	})
	if err != nil {
		return fail(err)
	}
	var units []WorkUnit
	for _, u := range plan.Units {
		if u.PDF {
			logger.Warn("skipping pdf input", "path", u.Source)
			continue
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		return fail(&InputError{Path: path, Err: ErrNoWorkUnits})
	}
	summary.Total = len(units)

	name := opts.Name
	if name == "" {
		name = documentName(plan)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	summary.Output = filepath.Join(opts.OutputDir, name)

	logger = logger.With("run", summary.RunID)
	builder := pdf.NewBuilder(opts.Layout)
	layout := builder.Options()
	logger.Info("pdf started", "images", len(units), "page", layout.Size, "orientation", layout.Orientation,
		"quality", layout.Quality, "output", summary.Output)
	sink.Send(progress.Snapshot{Total: summary.Total})

	results := prepareAll(ctx, units, opts, layout.Quality)

	// Results arrive out of order; hold them until their turn.
	pending := make(map[int]preparedImage)
	next := 0
	for r := range results {
		pending[r.idx] = r
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			unit := units[next]
			next++

			err := p.err
			if err == nil {
				err = builder.Add(p.img)
			}
			if err != nil {
				failed++
				summary.Failures = append(summary.Failures, UnitResult{Unit: unit, Err: err})
				logger.Warn("image skipped", "unit", unit.Label(), "kind", Kind(err), "err", err)
			} else {
				processed++
				logger.Debug("image placed", "unit", unit.Label(), "page", builder.Pages())
			}
			sink.Send(progress.Snapshot{Processed: processed, Failed: failed, Total: summary.Total, Current: unit.Label()})
		}
	}

	summary.Images = builder.Images()
	summary.Pages = builder.Pages()
	final := progress.Snapshot{Processed: processed, Failed: failed, Total: summary.Total, Complete: true}

	if err := ctx.Err(); err != nil {
		summary.Elapsed = time.Since(started)
		final.Err = "cancelled: " + err.Error()
		sink.Send(final)
		logger.Warn("pdf cancelled", "placed", processed, "failed", failed)
		return summary, err
	}
	if summary.Images == 0 {
		return fail(&InputError{Path: path, Err: ErrNothingEmbedded})
	}

	var buf bytes.Buffer
	if err := builder.Write(&buf); err != nil {
		return fail(&WriteError{Path: summary.Output, Err: err})
	}
	if err := writeAtomic(summary.Output, buf.Bytes()); err != nil {
		return fail(err)
	}
	summary.Bytes = int64(buf.Len())
	summary.Elapsed = time.Since(started)

	sink.Send(final)
	logger.Info("pdf finished", "pages", summary.Pages, "images", summary.Images, "failed", failed,
		"bytes", summary.Bytes, "elapsed", summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

// prepareAll decodes and encodes units on a worker pool. The channel is
// closed once every dispatched unit has reported.
func prepareAll(ctx context.Context, units []WorkUnit, opts PDFOptions, quality int) <-chan preparedImage {
	workers := runtime.GOMAXPROCS(0)
	if opts.Workers > 0 && opts.Workers < workers {
		workers = opts.Workers
	}
	workers = max(min(workers, len(units)), 1)

	jobs := make(chan int)
	results := make(chan preparedImage)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- prepareOne(idx, units[idx], opts, quality)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range units {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func prepareOne(idx int, unit WorkUnit, opts PDFOptions, quality int) preparedImage {
	img, err := opts.Decode(unit.Source)
	if err != nil {
		var decErr *imageio.DecodeError
		if !errors.As(err, &decErr) {
			err = &imageio.DecodeError{Path: unit.Source, Err: err}
		}
		return preparedImage{idx: idx, err: err}
	}
	if opts.Watermark != nil {
		marked, err := opts.Watermark.Apply(img)
		if err != nil {
			return preparedImage{idx: idx, err: fmt.Errorf("%w: %s: %w", errWatermark, unit.Label(), err)}
		}
		img = marked
	}
	prepared, err := pdf.Prepare(img, quality)
	if err != nil {
		return preparedImage{idx: idx, err: fmt.Errorf("%s: %w", unit.Label(), err)}
	}
	return preparedImage{idx: idx, img: prepared}
}

// documentName is the input folder's name, or the single file's stem.
func documentName(plan Plan) string {
	if plan.Mode == SingleFile && len(plan.Sources) == 1 {
		base := filepath.Base(plan.Sources[0])
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Base(plan.Root)
}

// Package batch plans and runs conversions of files, folders and PDF pages.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"pixfit/internal/encoder"
	"pixfit/internal/imageio"
	"pixfit/internal/logging"
	"pixfit/internal/pdf"
	"pixfit/internal/progress"
	"pixfit/pkg/imgutil"
)

const (
	DefaultDPI       = 150
	DefaultOutputDir = "converted"
)

var (
	errWatermark   = errors.New("watermark failed")
	errNoWatermark = errors.New("keeping the source format needs a watermark to apply")
)

// Watermarker stamps a mark onto a bitmap without modifying its input.
type Watermarker interface {
	Apply(img image.Image) (image.Image, error)
}

// DecodeFunc loads a raster image file.
type DecodeFunc func(path string) (image.Image, error)

type Options struct {
	Format encoder.Format
	// KeepFormat writes every unit back in its source container at full
	// quality, after the watermark. Format and TargetBytes are ignored.
	KeepFormat bool
	// TargetBytes is the size each output should fit in. The lossless formats
	// ignore it.
	TargetBytes int
	// OutputDir defaults to DefaultOutputDir.
	OutputDir string
	Recursive bool
	// Workers caps the pool for parallel formats; zero means GOMAXPROCS.
	Workers int
	// DPI for PDF page rendering; zero means DefaultDPI.
	DPI           int
	PreferQuality bool
	// Pages reads PDFs; nil means the pdfcpu-backed reader.
	Pages     PageSource
	Watermark Watermarker
	// Decode loads images; nil means imageio.Open.
	Decode DecodeFunc
	Codec  encoder.Codec
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Decode == nil {
		o.Decode = imageio.Open
	}
	o.Logger = logging.OrDiscard(o.Logger)
	if o.Pages == nil {
		o.Pages = pdf.NewSource(o.Logger)
	}
	return o
}

// format is the effective output format.
func (o Options) format() encoder.Format {
	if o.KeepFormat {
		return encoder.Native
	}
	return o.Format
}

func (o Options) validate() error {
	if o.Workers < 0 {
		return &InputError{Err: fmt.Errorf("workers must not be negative")}
	}
	if o.KeepFormat {
		if o.Watermark == nil {
			return &InputError{Err: errNoWatermark}
		}
		return nil
	}
	switch o.Format {
	case encoder.PNGOriginal, encoder.WebPLossless:
	case encoder.JPEG, encoder.PNGToSize, encoder.WebPLossy:
		if o.TargetBytes <= 0 {
			return &InputError{Err: fmt.Errorf("target size must be positive for %s", o.Format)}
		}
	default:
		return &InputError{Err: encoder.ErrUnknownFormat}
	}
	return nil
}

// UnitResult is the outcome of one work unit.
type UnitResult struct {
	Unit     WorkUnit
	Output   string
	Bytes    int
	Quality  float64
	Resized  bool
	Lossless bool
	Err      error
}

type Summary struct {
	RunID     string
	Processed int
	Failed    int
	Total     int
	Bytes     int64
	Elapsed   time.Duration
	// Results holds every finished unit in plan order.
	Results []UnitResult
}

// Failures returns the failed units in plan order.
func (s Summary) Failures() []UnitResult {
	var out []UnitResult
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Outcome is what Start delivers when its batch finishes.
type Outcome struct {
	Summary Summary
	Err     error
}

// Convert enumerates path and runs the resulting plan.
func Convert(ctx context.Context, path string, mode Mode, opts Options, sink progress.Sink) (Summary, error) {
	if sink == nil {
		sink = progress.Discard
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		sink.Send(progress.Snapshot{Complete: true, Err: err.Error()})
		return Summary{}, err
	}

	plan, err := Enumerate(ctx, path, mode, EnumerateOptions{
		Recursive: opts.Recursive,
		Pages:     opts.Pages,
		Exclude:   opts.OutputDir,
		Logger:    opts.Logger,
	})
	if err != nil {
		sink.Send(progress.Snapshot{Complete: true, Err: err.Error()})
		return Summary{}, err
	}
	return Run(ctx, plan, opts, sink)
}

// Start runs Convert on its own goroutine. The returned channel yields one
// Outcome and is then closed.
func Start(ctx context.Context, path string, mode Mode, opts Options, sink progress.Sink) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		summary, err := Convert(ctx, path, mode, opts, sink)
		out <- Outcome{Summary: summary, Err: err}
	}()
	return out
}

// Run converts every unit of plan. Per-unit failures are recorded in the
// summary and never stop the batch; the returned error is reserved for an
// empty plan, bad options and cancellation. The last snapshot sent to sink
// is always Complete.
func Run(ctx context.Context, plan Plan, opts Options, sink progress.Sink) (Summary, error) {
	if sink == nil {
		sink = progress.Discard
	}
	opts = opts.withDefaults()
	started := time.Now()
	summary := Summary{RunID: uuid.NewString(), Total: len(plan.Units)}

	fail := func(err error) (Summary, error) {
		sink.Send(progress.Snapshot{Total: summary.Total, Complete: true, Err: err.Error()})
		return summary, err
	}
	if err := opts.validate(); err != nil {
		return fail(err)
	}
	if len(plan.Units) == 0 {
		return fail(&InputError{Path: plan.Root, Err: ErrNoWorkUnits})
	}

	r := newRunner(plan, opts, sink)
	r.log = r.log.With("run", summary.RunID)
	r.log.Info("batch started", "units", summary.Total, "format", opts.format(),
		"target", opts.TargetBytes, "workers", r.workers, "output", opts.OutputDir)
	sink.Send(progress.Snapshot{Total: summary.Total})

	results := r.run(ctx)

	for _, res := range results {
		if res.Unit.Source == "" {
			continue
		}
		summary.Results = append(summary.Results, res)
		summary.Bytes += int64(res.Bytes)
	}
	summary.Processed = int(r.processed.Load())
	summary.Failed = int(r.failed.Load())
	summary.Elapsed = time.Since(started)

	final := progress.Snapshot{
		Processed: summary.Processed,
		Failed:    summary.Failed,
		Total:     summary.Total,
		Complete:  true,
	}
	if err := ctx.Err(); err != nil {
		final.Err = "cancelled: " + err.Error()
		sink.Send(final)
		r.log.Warn("batch cancelled", "processed", summary.Processed, "failed", summary.Failed)
		return summary, err
	}
	sink.Send(final)
	r.log.Info("batch finished", "processed", summary.Processed, "failed", summary.Failed,
		"bytes", summary.Bytes, "elapsed", summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

type runner struct {
	plan    Plan
	opts    Options
	sink    progress.Sink
	log     *log.Logger
	enc     *encoder.Encoder
	pages   *pageCache
	outputs []string
	workers int

	processed atomic.Int64
	failed    atomic.Int64
}

func newRunner(plan Plan, opts Options, sink progress.Sink) *runner {
	pool := encoder.NewBufferPool()
	return &runner{
		plan: plan,
		opts: opts,
		sink: sink,
		log:  opts.Logger,
		enc: encoder.New(encoder.Options{
			Codec:         opts.Codec,
			Pool:          pool,
			PreferQuality: opts.PreferQuality,
			Logger:        opts.Logger,
		}),
		pages:   newPageCache(opts.Pages, opts.DPI, plan.Units),
		outputs: assignOutputs(plan, opts.OutputDir, extensionFor(opts)),
		workers: workerCount(opts.format(), opts.Workers, len(plan.Units)),
	}
}

// extensionFor picks the output extension of each unit.
func extensionFor(opts Options) func(WorkUnit) string {
	if !opts.KeepFormat {
		ext := opts.Format.Extension()
		return func(WorkUnit) string { return ext }
	}
	// Images keep their own file name; PDF pages have none to keep.
	return func(u WorkUnit) string {
		if ext := strings.TrimPrefix(filepath.Ext(u.Source), "."); ext != "" && !u.PDF {
			return ext
		}
		return encoder.NativeExtension(sourceKind(u))
	}
}

func sourceKind(u WorkUnit) imgutil.Kind {
	if u.PDF {
		return imgutil.KindPDF
	}
	return imgutil.KindFromExtension(u.Source)
}

// workerCount applies the per-format policy: PNGToSize runs one unit at a
// time, everything else fans out.
func workerCount(format encoder.Format, limit, units int) int {
	if !format.Parallel() {
		return 1
	}
	n := runtime.GOMAXPROCS(0)
	if limit > 0 && limit < n {
		n = limit
	}
	return max(min(n, units), 1)
}

type unitOutcome struct {
	idx int
	res UnitResult
}

func (r *runner) run(ctx context.Context) []UnitResult {
	jobs := make(chan int)
	outcomes := make(chan unitOutcome)

	var wg sync.WaitGroup
	wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go func() {
			defer wg.Done()
			r.worker(ctx, jobs, outcomes)
		}()
	}

	results := make([]UnitResult, len(r.plan.Units))
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for o := range outcomes {
			results[o.idx] = o.res
		}
	}()

	go func() {
		defer close(jobs)
		for i := range r.plan.Units {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(outcomes)
	<-collectorDone
	return results
}

func (r *runner) worker(ctx context.Context, jobs <-chan int, outcomes chan<- unitOutcome) {
	for idx := range jobs {
		if ctx.Err() != nil {
			return
		}
		unit := r.plan.Units[idx]
		res := r.convert(ctx, unit, r.outputs[idx])
		if unit.PDF {
			r.pages.release(unit)
		}

		if res.Err != nil {
			r.failed.Add(1)
			r.log.Warn("unit failed", "unit", unit.Label(), "kind", Kind(res.Err), "err", res.Err)
		} else {
			r.processed.Add(1)
			r.log.Debug("unit converted", "unit", unit.Label(), "output", res.Output, "bytes", res.Bytes, "quality", res.Quality)
		}
		r.sink.Send(progress.Snapshot{
			Processed: int(r.processed.Load()),
			Failed:    int(r.failed.Load()),
			Total:     len(r.plan.Units),
			Current:   unit.Label(),
		})
		outcomes <- unitOutcome{idx: idx, res: res}
	}
}

// convert runs one unit through bitmap, watermark, encode and write.
func (r *runner) convert(ctx context.Context, unit WorkUnit, output string) UnitResult {
	res := UnitResult{Unit: unit, Output: output}

	img, err := r.bitmap(ctx, unit)
	if err != nil {
		res.Err = err
		return res
	}

	if r.opts.Watermark != nil {
		marked, err := r.opts.Watermark.Apply(img)
		if err != nil {
			res.Err = fmt.Errorf("%w: %s: %w", errWatermark, unit.Label(), err)
			return res
		}
		img = marked
	}

	var enc encoder.Result
	if r.opts.KeepFormat {
		enc, err = r.enc.EncodeNative(img, sourceKind(unit))
	} else {
		enc, err = r.enc.Encode(img, r.opts.TargetBytes, r.opts.Format)
	}
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", unit.Label(), err)
		return res
	}
	if err := writeAtomic(output, enc.Bytes); err != nil {
		res.Err = err
		return res
	}

	res.Bytes = len(enc.Bytes)
	res.Quality = enc.Quality
	res.Resized = enc.Resized
	res.Lossless = enc.Lossless
	return res
}

func (r *runner) bitmap(ctx context.Context, unit WorkUnit) (image.Image, error) {
	if unit.PDF {
		return r.pages.page(ctx, unit)
	}
	img, err := r.opts.Decode(unit.Source)
	if err != nil {
		var decErr *imageio.DecodeError
		if errors.As(err, &decErr) {
			return nil, err
		}
		return nil, &imageio.DecodeError{Path: unit.Source, Err: err}
	}
	return img, nil
}

package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"pixfit/internal/encoder"
	"pixfit/internal/progress"
	"pixfit/pkg/imgutil"
)

type recordingSink struct {
	mu        sync.Mutex
	snapshots []progress.Snapshot
}

func (s *recordingSink) Send(snap progress.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *recordingSink) last(t *testing.T) progress.Snapshot {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		t.Fatal("no snapshots recorded")
	}
	return s.snapshots[len(s.snapshots)-1]
}

// fakePages serves synthetic PDFs keyed by base name.
type fakePages struct {
	counts   map[string]int
	countErr error
	nilPages map[int]bool
	renders  atomic.Int32
}

func (f *fakePages) PageCount(path string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[filepath.Base(path)], nil
}

func (f *fakePages) RenderPages(_ context.Context, path string, _ int) ([]image.Image, error) {
	f.renders.Add(1)
	n := f.counts[filepath.Base(path)]
	if f.countErr != nil {
		n = 1
	}
	pages := make([]image.Image, n)
	for i := range pages {
		if !f.nilPages[i] {
			pages[i] = testImage(24, 24)
		}
	}
	return pages, nil
}

type countingMark struct {
	calls atomic.Int32
	err   error
}

func (m *countingMark) Apply(img image.Image) (image.Image, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return img, nil
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 0x80, A: 0xff})
		}
	}
	return img
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(24, 24)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	writeFile(t, path, buf.Bytes())
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func jpegOptions(out string) Options {
	return Options{Format: encoder.JPEG, TargetBytes: 400 * 1024, OutputDir: out}
}

func TestConvertFolderWithOneCorruptImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	for i := 1; i <= 4; i++ {
		writePNG(t, filepath.Join(in, fmt.Sprintf("img%d.png", i)))
	}
	writeFile(t, filepath.Join(in, "broken.png"), []byte("not really a png at all"))

	sink := &recordingSink{}
	summary, err := Convert(context.Background(), in, Folder, jpegOptions(out), sink)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Processed != 4 || summary.Failed != 1 || summary.Total != 5 {
		t.Fatalf("summary = %d/%d/%d, want 4/1/5", summary.Processed, summary.Failed, summary.Total)
	}
	final := sink.last(t)
	if !final.Complete || final.Processed != 4 || final.Failed != 1 || final.Err != "" {
		t.Fatalf("final snapshot = %+v", final)
	}
	if first := sink.snapshots[0]; first.Total != 5 || first.Done() != 0 {
		t.Fatalf("first snapshot should announce the total, got %+v", first)
	}

	failures := summary.Failures()
	if len(failures) != 1 || Kind(failures[0].Err) != "decode" {
		t.Fatalf("failures = %+v", failures)
	}
	for i := 1; i <= 4; i++ {
		data, err := os.ReadFile(filepath.Join(out, fmt.Sprintf("img%d.jpg", i)))
		if err != nil {
			t.Fatalf("output %d: %v", i, err)
		}
		if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
			t.Fatalf("output %d is not a JPEG", i)
		}
	}
	if summary.RunID == "" {
		t.Fatal("missing run id")
	}
}

func TestConvertPDFExpandsPages(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	writeFile(t, filepath.Join(in, "doc.pdf"), []byte("%PDF-1.4"))

	pages := &fakePages{counts: map[string]int{"doc.pdf": 3}}
	opts := jpegOptions(out)
	opts.Pages = pages

	summary, err := Convert(context.Background(), in, Folder, opts, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Total != 3 || summary.Processed != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	for n := 1; n <= 3; n++ {
		if _, err := os.Stat(filepath.Join(out, fmt.Sprintf("doc_page_%d.jpg", n))); err != nil {
			t.Fatalf("page %d output: %v", n, err)
		}
	}
	if got := pages.renders.Load(); got != 1 {
		t.Fatalf("pdf rendered %d times, want once", got)
	}
}

func TestConvertSeveralPDFsUseSubfolders(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	writeFile(t, filepath.Join(in, "a.pdf"), []byte("%PDF-1.4"))
	writeFile(t, filepath.Join(in, "b.pdf"), []byte("%PDF-1.4"))

	opts := jpegOptions(out)
	opts.Pages = &fakePages{counts: map[string]int{"a.pdf": 2, "b.pdf": 1}}
	if _, err := Convert(context.Background(), in, Folder, opts, nil); err != nil {
		t.Fatalf("convert: %v", err)
	}
	for _, rel := range []string{"a/a_page_1.jpg", "a/a_page_2.jpg", "b/b_page_1.jpg"} {
		if _, err := os.Stat(filepath.Join(out, rel)); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
}

func TestPDFPageWithoutBitmapFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.pdf")
	writeFile(t, in, []byte("%PDF-1.4"))

	opts := jpegOptions(filepath.Join(dir, "out"))
	opts.Pages = &fakePages{counts: map[string]int{"doc.pdf": 2}, nilPages: map[int]bool{1: true}}
	summary, err := Convert(context.Background(), in, SingleFile, opts, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %d/%d, want 1/1", summary.Processed, summary.Failed)
	}
	if got := Kind(summary.Failures()[0].Err); got != "decode" {
		t.Fatalf("kind = %q, want decode", got)
	}
}

func TestPageCountFailureYieldsOneUnit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "scan.pdf")
	writeFile(t, in, []byte("%PDF-1.4"))

	plan, err := Enumerate(context.Background(), in, SingleFile, EnumerateOptions{
		Pages: &fakePages{countErr: errors.New("encrypted")},
	})
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if plan.Total != 1 || !plan.Units[0].IsPage() {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestPNGToSizeRunsSeriallyInPlanOrder(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	for _, name := range []string{"c.png", "a.png", "e.png", "b.png", "d.png"} {
		writePNG(t, filepath.Join(in, name))
	}

	var (
		mu     sync.Mutex
		order  []string
		active atomic.Int32
		peak   atomic.Int32
	)
	opts := Options{
		Format:      encoder.PNGToSize,
		TargetBytes: 1 << 20,
		OutputDir:   filepath.Join(dir, "out"),
		Workers:     8,
		Decode: func(path string) (image.Image, error) {
			n := active.Add(1)
			defer active.Add(-1)
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Lock()
			order = append(order, filepath.Base(path))
			mu.Unlock()
			return testImage(24, 24), nil
		},
	}
	summary, err := Convert(context.Background(), in, Folder, opts, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Processed != 5 {
		t.Fatalf("processed = %d", summary.Processed)
	}
	if strings.Join(order, ",") != "a.png,b.png,c.png,d.png,e.png" {
		t.Fatalf("order = %v", order)
	}
	if peak.Load() != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak.Load())
	}
}

func TestWorkerCount(t *testing.T) {
	if got := workerCount(encoder.PNGToSize, 16, 100); got != 1 {
		t.Fatalf("PNGToSize workers = %d", got)
	}
	if got := workerCount(encoder.JPEG, 0, 1); got != 1 {
		t.Fatalf("single unit workers = %d", got)
	}
	if got := workerCount(encoder.WebPLossy, 2, 100); got > 2 || got < 1 {
		t.Fatalf("capped workers = %d", got)
	}
}

func TestCancellationStopsBetweenUnits(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	for i := 0; i < 5; i++ {
		writePNG(t, filepath.Join(in, fmt.Sprintf("%d.png", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := Options{
		Format:      encoder.PNGToSize,
		TargetBytes: 1 << 20,
		OutputDir:   filepath.Join(dir, "out"),
		Decode: func(string) (image.Image, error) {
			cancel()
			return testImage(24, 24), nil
		},
	}

	sink := &recordingSink{}
	summary, err := Convert(ctx, in, Folder, opts, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Processed != 1 || len(summary.Results) != 1 {
		t.Fatalf("in-flight unit should finish alone, got %+v", summary)
	}
	final := sink.last(t)
	if !final.Complete || !strings.HasPrefix(final.Err, "cancelled") {
		t.Fatalf("final snapshot = %+v", final)
	}
}

func TestZeroUnits(t *testing.T) {
	sink := &recordingSink{}
	_, err := Run(context.Background(), Plan{}, jpegOptions(t.TempDir()), sink)
	if !errors.Is(err, ErrNoWorkUnits) {
		t.Fatalf("expected ErrNoWorkUnits, got %v", err)
	}
	final := sink.last(t)
	if !final.Complete || final.Err == "" {
		t.Fatalf("final snapshot = %+v", final)
	}

	empty := t.TempDir()
	writeFile(t, filepath.Join(empty, "notes.txt"), []byte("hello"))
	_, err = Convert(context.Background(), empty, Folder, jpegOptions(filepath.Join(empty, "out")), nil)
	var inputErr *InputError
	if !errors.As(err, &inputErr) || !errors.Is(err, ErrNoWorkUnits) {
		t.Fatalf("expected InputError(ErrNoWorkUnits), got %v", err)
	}
}

func TestMissingInputIsInputError(t *testing.T) {
	_, err := Convert(context.Background(), filepath.Join(t.TempDir(), "nope"), Folder, jpegOptions(t.TempDir()), nil)
	if Kind(err) != "input" {
		t.Fatalf("kind = %q for %v", Kind(err), err)
	}
}

func TestBadOptions(t *testing.T) {
	in := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, in)
	_, err := Convert(context.Background(), in, SingleFile, Options{Format: encoder.JPEG}, nil)
	if Kind(err) != "input" {
		t.Fatalf("missing target should be an input error, got %v", err)
	}
	if _, err := Convert(context.Background(), in, SingleFile, Options{Format: encoder.PNGOriginal, OutputDir: t.TempDir()}, nil); err != nil {
		t.Fatalf("lossless formats need no target: %v", err)
	}
}

func TestWriteFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.png")
	writePNG(t, in)
	blocker := filepath.Join(dir, "out")
	writeFile(t, blocker, []byte("a file where the output folder should be"))

	summary, err := Convert(context.Background(), in, SingleFile, jpegOptions(blocker), nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("failed = %d, want 1", summary.Failed)
	}
	var writeErr *WriteError
	if !errors.As(summary.Results[0].Err, &writeErr) || Kind(summary.Results[0].Err) != "write" {
		t.Fatalf("expected WriteError, got %v", summary.Results[0].Err)
	}
}

func TestTargetTooSmallIsPerUnit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.png")
	writePNG(t, in)

	opts := Options{Format: encoder.PNGToSize, TargetBytes: 10, OutputDir: filepath.Join(dir, "out")}
	summary, err := Convert(context.Background(), in, SingleFile, opts, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Failed != 1 || Kind(summary.Results[0].Err) != "target-too-small" {
		t.Fatalf("results = %+v", summary.Results)
	}
}

func TestWatermarkIsApplied(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writePNG(t, filepath.Join(in, "a.png"))
	writePNG(t, filepath.Join(in, "b.png"))

	mark := &countingMark{}
	opts := jpegOptions(filepath.Join(dir, "out"))
	opts.Watermark = mark
	if _, err := Convert(context.Background(), in, Folder, opts, nil); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if mark.calls.Load() != 2 {
		t.Fatalf("watermark applied %d times, want 2", mark.calls.Load())
	}

	opts.Watermark = &countingMark{err: errors.New("bad mark")}
	summary, err := Convert(context.Background(), in, Folder, opts, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Failed != 2 || Kind(summary.Results[0].Err) != "watermark" {
		t.Fatalf("results = %+v", summary.Results)
	}
}

func TestKeepFormatWritesSourceContainers(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writePNG(t, filepath.Join(in, "a.png"))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(24, 24), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	writeFile(t, filepath.Join(in, "b.jpeg"), buf.Bytes())
	writeFile(t, filepath.Join(in, "doc.pdf"), []byte("%PDF-1.4"))

	out := filepath.Join(dir, "out")
	mark := &countingMark{}
	opts := Options{
		KeepFormat: true,
		OutputDir:  out,
		Watermark:  mark,
		Pages:      &fakePages{counts: map[string]int{"doc.pdf": 1}},
	}
	summary, err := Convert(context.Background(), in, Folder, opts, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if summary.Processed != 3 || mark.calls.Load() != 3 {
		t.Fatalf("processed=%d marks=%d, want 3 and 3", summary.Processed, mark.calls.Load())
	}

	want := map[string]imgutil.Kind{
		"a.png":          imgutil.KindPNG,
		"b.jpeg":         imgutil.KindJPEG,
		"doc_page_1.png": imgutil.KindPNG,
	}
	for name, kind := range want {
		got, err := imgutil.SniffFile(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != kind {
			t.Fatalf("%s sniffs as %s, want %s", name, got, kind)
		}
	}
}

func TestKeepFormatNeedsWatermark(t *testing.T) {
	in := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, in)
	_, err := Convert(context.Background(), in, SingleFile, Options{KeepFormat: true, OutputDir: t.TempDir()}, nil)
	if !errors.Is(err, errNoWatermark) || Kind(err) != "input" {
		t.Fatalf("expected input error for missing watermark, got %v", err)
	}
}

func TestStartDeliversOutcome(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.png")
	writePNG(t, in)

	ch := progress.NewChannel()
	done := Start(context.Background(), in, SingleFile, jpegOptions(filepath.Join(dir, "out")), ch)
	outcome := <-done
	ch.Close()
	if outcome.Err != nil || outcome.Summary.Processed != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	var last progress.Snapshot
	for s := range ch.Updates() {
		last = s
	}
	if !last.Complete {
		t.Fatalf("last snapshot = %+v", last)
	}
	if _, open := <-done; open {
		t.Fatal("outcome channel should be closed")
	}
}

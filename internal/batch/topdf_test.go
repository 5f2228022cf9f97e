package batch

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pixfit/internal/imageio"
	"pixfit/internal/pdf"
)

func TestBuildPDFKeepsPlanOrderAndSkipsBadImages(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "album")
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writePNG(t, filepath.Join(in, name))
	}
	writeFile(t, filepath.Join(in, "scan.pdf"), []byte("%PDF-1.4"))

	// Earlier files take longer so workers finish out of order.
	widths := map[string]int{"a.png": 10, "b.png": 20, "d.png": 40}
	decode := func(path string) (image.Image, error) {
		base := filepath.Base(path)
		w, ok := widths[base]
		if !ok {
			return nil, errors.New("corrupt")
		}
		time.Sleep(time.Duration(50-w) * time.Millisecond)
		return testImage(w, 16), nil
	}

	out := filepath.Join(dir, "out")
	sink := &recordingSink{}
	summary, err := BuildPDF(context.Background(), in, Folder, PDFOptions{
		OutputDir: out,
		Workers:   4,
		Decode:    decode,
	}, sink)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if summary.Output != filepath.Join(out, "album.pdf") {
		t.Fatalf("output = %s", summary.Output)
	}
	if summary.Total != 4 || summary.Images != 3 || summary.Pages != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Failures) != 1 || filepath.Base(summary.Failures[0].Unit.Source) != "c.png" {
		t.Fatalf("failures = %+v", summary.Failures)
	}
	var decErr *imageio.DecodeError
	if !errors.As(summary.Failures[0].Err, &decErr) {
		t.Fatalf("failure should be a decode error, got %v", summary.Failures[0].Err)
	}

	pages, err := pdf.NewSource(nil).RenderPages(context.Background(), summary.Output, 150)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	for i, w := range []int{10, 20, 40} {
		if pages[i] == nil || pages[i].Bounds().Dx() != w {
			t.Fatalf("page %d = %v, want width %d", i+1, pages[i], w)
		}
	}

	last := sink.last(t)
	if !last.Complete || last.Processed != 3 || last.Failed != 1 {
		t.Fatalf("last snapshot = %+v", last)
	}
}

func TestBuildPDFSingleFileName(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cover.png")
	writePNG(t, in)

	summary, err := BuildPDF(context.Background(), in, SingleFile, PDFOptions{OutputDir: filepath.Join(dir, "out")}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if filepath.Base(summary.Output) != "cover.pdf" || summary.Pages != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	summary, err = BuildPDF(context.Background(), in, SingleFile, PDFOptions{OutputDir: filepath.Join(dir, "out"), Name: "book"}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if filepath.Base(summary.Output) != "book.pdf" {
		t.Fatalf("named output = %s", summary.Output)
	}
}

func TestBuildPDFNothingEmbedded(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.png")
	writeFile(t, in, []byte("not an image"))

	sink := &recordingSink{}
	_, err := BuildPDF(context.Background(), in, SingleFile, PDFOptions{OutputDir: filepath.Join(dir, "out")}, sink)
	if !errors.Is(err, ErrNothingEmbedded) || Kind(err) != "input" {
		t.Fatalf("expected ErrNothingEmbedded, got %v", err)
	}
	if last := sink.last(t); !last.Complete || last.Failed != 1 || !strings.Contains(last.Err, "no image") {
		t.Fatalf("last snapshot = %+v", last)
	}
}

func TestBuildPDFOnlyPDFInputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.pdf")
	writeFile(t, in, []byte("%PDF-1.4"))

	_, err := BuildPDF(context.Background(), in, SingleFile, PDFOptions{OutputDir: filepath.Join(dir, "out")}, nil)
	if !errors.Is(err, ErrNoWorkUnits) {
		t.Fatalf("expected ErrNoWorkUnits, got %v", err)
	}
}

func TestBuildPDFCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writePNG(t, filepath.Join(in, "a.png"))
	writePNG(t, filepath.Join(in, "b.png"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := BuildPDF(ctx, in, Folder, PDFOptions{OutputDir: filepath.Join(dir, "out")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if summary.Bytes != 0 {
		t.Fatal("a cancelled run must not write the document")
	}
}

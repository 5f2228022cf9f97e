package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pixfit/internal/batch"
	"pixfit/internal/pdf"
	"pixfit/internal/progress"
	"pixfit/internal/tui"
)

var (
	pdfOutputDir   string
	pdfName        string
	pdfRecursive   bool
	pdfWorkers     int
	pdfPageSize    string
	pdfOrientation string
	pdfStretch     bool
	pdfFlow        bool
	pdfDPI         float64
	pdfMargin      float64
	pdfQuality     int

	pdfMark markFlags
	pdfRun  runFlags
)

var pdfCmd = &cobra.Command{
	Use:   "pdf [flags] <path>",
	Short: "Assemble an image or a folder of images into one PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		size, err := pdf.ParsePageSize(pdfPageSize)
		if err != nil {
			return err
		}
		orientation, err := pdf.ParseOrientation(pdfOrientation)
		if err != nil {
			return err
		}
		if pdfQuality < 1 || pdfQuality > 100 {
			return fmt.Errorf("--quality must be between 1 and 100")
		}
		if pdfDPI < 72 || pdfDPI > 600 {
			return fmt.Errorf("--dpi must be between 72 and 600")
		}
		if pdfMargin < 0 {
			return fmt.Errorf("--margin must not be negative")
		}
		mode, err := batch.DetectMode(path)
		if err != nil {
			return err
		}

		logger, closer, err := pdfRun.logger()
		if err != nil {
			return err
		}
		defer closer.Close()

		mark, err := pdfMark.build()
		if err != nil {
			return err
		}

		opts := batch.PDFOptions{
			Layout: pdf.LayoutOptions{
				Size:        size,
				Orientation: orientation,
				Stretch:     pdfStretch,
				Flow:        pdfFlow,
				DPI:         pdfDPI,
				Margin:      pdfMargin,
				Quality:     pdfQuality,
			},
			Recursive: pdfRecursive,
			OutputDir: pdfOutputDir,
			Name:      pdfName,
			Workers:   pdfWorkers,
			Logger:    logger,
		}
		if mark != nil {
			opts.Watermark = mark
		}

		var (
			summary  batch.PDFSummary
			buildErr error
		)
		pdfRun.withProgress(logger, func(ctx context.Context, sink progress.Sink) {
			summary, buildErr = batch.BuildPDF(ctx, path, mode, opts, sink)
		})
		if errors.Is(buildErr, context.Canceled) {
			return fmt.Errorf("cancelled after %d of %d images", len(summary.Failures)+summary.Images, summary.Total)
		}
		if buildErr != nil {
			return buildErr
		}

		printPDFSummary(summary, opts)
		return nil
	},
}

func printPDFSummary(summary batch.PDFSummary, opts batch.PDFOptions) {
	out := summary.Output
	if abs, err := filepath.Abs(out); err == nil {
		out = abs
	}
	rows := []tui.SummaryRow{
		{Label: "Images placed", Value: fmt.Sprintf("%d", summary.Images)},
		{Label: "Images skipped", Value: fmt.Sprintf("%d", len(summary.Failures))},
		{Label: "Pages", Value: fmt.Sprintf("%d", summary.Pages)},
		{Label: "Page size", Value: opts.Layout.Size.String()},
		{Label: "Document size", Value: humanBytes(summary.Bytes)},
		{Label: "Elapsed", Value: summary.Elapsed.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
	printFailures(summary.Failures)
	fmt.Fprintf(os.Stdout, "PDF written to: %s\n", out)
}

func init() {
	f := pdfCmd.Flags()
	f.StringVarP(&pdfOutputDir, "output", "o", batch.DefaultOutputDir, "destination folder")
	f.StringVarP(&pdfName, "name", "n", "", "document file name (default: input folder or file name)")
	f.BoolVarP(&pdfRecursive, "recursive", "r", false, "descend into subfolders")
	f.IntVarP(&pdfWorkers, "workers", "w", 0, "maximum parallel decoders (0 = all cores)")
	f.StringVar(&pdfPageSize, "page-size", "adaptive", "page size: adaptive|a3|a4|a5|letter|legal")
	f.StringVar(&pdfOrientation, "orientation", "auto", "page orientation: auto|portrait|landscape")
	f.BoolVar(&pdfStretch, "stretch", false, "fill the page instead of keeping the aspect ratio")
	f.BoolVar(&pdfFlow, "flow", false, "stack several images per fixed-size page")
	f.Float64Var(&pdfDPI, "dpi", pdf.DefaultAssembleDPI, "pixels per inch used to size adaptive pages")
	f.Float64Var(&pdfMargin, "margin", 0, "page margin in millimetres")
	f.IntVarP(&pdfQuality, "quality", "q", pdf.DefaultQuality, "JPEG quality of embedded images (100 = lossless PNG)")
	pdfMark.register(pdfCmd)
	pdfRun.register(pdfCmd)

	rootCmd.AddCommand(pdfCmd)
}

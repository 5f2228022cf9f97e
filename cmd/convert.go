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
	"pixfit/internal/encoder"
	"pixfit/internal/pdf"
	"pixfit/internal/progress"
	"pixfit/internal/tui"
)

var (
	convertFormat        string
	convertTarget        string
	convertOutputDir     string
	convertRecursive     bool
	convertWorkers       int
	convertDPI           int
	convertPreferQuality bool

	convertMark markFlags
	convertRun  runFlags
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <path>",
	Short: "Convert an image, a PDF or a folder to the chosen format and size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		format, err := encoder.ParseFormat(convertFormat)
		if err != nil {
			return err
		}
		target, err := parseSize(convertTarget)
		if err != nil {
			return fmt.Errorf("--target: %w", err)
		}
		if convertWorkers < 0 {
			return fmt.Errorf("--workers must not be negative")
		}
		mode, err := batch.DetectMode(path)
		if err != nil {
			return err
		}

		logger, closer, err := convertRun.logger()
		if err != nil {
			return err
		}
		defer closer.Close()

		mark, err := convertMark.build()
		if err != nil {
			return err
		}

		opts := batch.Options{
			Format:        format,
			TargetBytes:   target,
			OutputDir:     convertOutputDir,
			Recursive:     convertRecursive,
			Workers:       convertWorkers,
			DPI:           convertDPI,
			PreferQuality: convertPreferQuality,
			Pages:         pdf.NewSource(logger),
			Logger:        logger,
		}
		if mark != nil {
			opts.Watermark = mark
		}

		var outcome batch.Outcome
		convertRun.withProgress(logger, func(ctx context.Context, sink progress.Sink) {
			outcome = <-batch.Start(ctx, path, mode, opts, sink)
		})

		cancelled := errors.Is(outcome.Err, context.Canceled)
		if outcome.Err != nil && !cancelled {
			return outcome.Err
		}

		printConvertSummary(outcome.Summary, opts)
		if cancelled {
			return fmt.Errorf("cancelled after %d of %d units", outcome.Summary.Processed+outcome.Summary.Failed, outcome.Summary.Total)
		}
		return nil
	},
}

func printConvertSummary(summary batch.Summary, opts batch.Options) {
	outPath := opts.OutputDir
	if abs, err := filepath.Abs(opts.OutputDir); err == nil {
		outPath = abs
	}

	rows := []tui.SummaryRow{
		{Label: "Units converted", Value: fmt.Sprintf("%d", summary.Processed)},
		{Label: "Units failed", Value: fmt.Sprintf("%d", summary.Failed)},
		{Label: "Units total", Value: fmt.Sprintf("%d", summary.Total)},
		{Label: "Format", Value: formatLabel(opts)},
		{Label: "Output size", Value: humanBytes(summary.Bytes)},
		{Label: "Elapsed", Value: summary.Elapsed.Round(time.Millisecond).String()},
	}
	if !opts.KeepFormat && opts.Format != encoder.PNGOriginal && opts.Format != encoder.WebPLossless {
		rows = append(rows, tui.SummaryRow{Label: "Target per file", Value: humanBytes(int64(opts.TargetBytes))})
	}
	fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
	printFailures(summary.Failures())
	fmt.Fprintf(os.Stdout, "Converted files written to: %s\n", outPath)
}

func formatLabel(opts batch.Options) string {
	if opts.KeepFormat {
		return "same as source"
	}
	return opts.Format.String()
}

func printFailures(results []batch.UnitResult) {
	var failures []tui.FailureRow
	for _, res := range results {
		failures = append(failures, tui.FailureRow{
			Unit:  res.Unit.Label(),
			Kind:  batch.Kind(res.Err),
			Error: res.Err.Error(),
		})
	}
	if len(failures) > 0 {
		fmt.Fprintln(os.Stdout, tui.RenderFailures(failures))
	}
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertFormat, "format", "f", "jpeg", "output format: jpeg|png|png-original|webp|webp-lossless")
	f.StringVarP(&convertTarget, "target", "t", "400KB", "target size per output, e.g. 200KB, 1.5MB or plain bytes")
	f.StringVarP(&convertOutputDir, "output", "o", batch.DefaultOutputDir, "destination folder")
	f.BoolVarP(&convertRecursive, "recursive", "r", false, "descend into subfolders")
	f.IntVarP(&convertWorkers, "workers", "w", 0, "maximum parallel workers (0 = all cores)")
	f.IntVar(&convertDPI, "dpi", batch.DefaultDPI, "PDF page resolution")
	f.BoolVar(&convertPreferQuality, "prefer-quality", false, "let lossless WebP win for large images too")
	convertMark.register(convertCmd)
	convertRun.register(convertCmd)

	rootCmd.AddCommand(convertCmd)
}

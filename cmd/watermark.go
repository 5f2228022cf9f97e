package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pixfit/internal/batch"
	"pixfit/internal/pdf"
	"pixfit/internal/progress"
)

var (
	markOutputDir string
	markRecursive bool
	markWorkers   int
	markDPI       int

	markMark markFlags
	markRun  runFlags
)

var watermarkCmd = &cobra.Command{
	Use:   "watermark [flags] <path>",
	Short: "Stamp a watermark on images without changing their format or size",
	Long: "watermark applies an image and/or text mark to every image under path and\n" +
		"writes each one back in its own format at full quality. PDF pages come out as PNG.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !markMark.set() {
			return fmt.Errorf("need --watermark-image or --watermark-text")
		}
		if markWorkers < 0 {
			return fmt.Errorf("--workers must not be negative")
		}
		mode, err := batch.DetectMode(path)
		if err != nil {
			return err
		}

		logger, closer, err := markRun.logger()
		if err != nil {
			return err
		}
		defer closer.Close()

		mark, err := markMark.build()
		if err != nil {
			return err
		}

		opts := batch.Options{
			KeepFormat: true,
			OutputDir:  markOutputDir,
			Recursive:  markRecursive,
			Workers:    markWorkers,
			DPI:        markDPI,
			Pages:      pdf.NewSource(logger),
			Watermark:  mark,
			Logger:     logger,
		}

		var outcome batch.Outcome
		markRun.withProgress(logger, func(ctx context.Context, sink progress.Sink) {
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

func init() {
	f := watermarkCmd.Flags()
	f.StringVarP(&markOutputDir, "output", "o", batch.DefaultOutputDir, "destination folder")
	f.BoolVarP(&markRecursive, "recursive", "r", false, "descend into subfolders")
	f.IntVarP(&markWorkers, "workers", "w", 0, "maximum parallel workers (0 = all cores)")
	f.IntVar(&markDPI, "dpi", batch.DefaultDPI, "PDF page resolution")
	markMark.register(watermarkCmd)
	markRun.register(watermarkCmd)

	rootCmd.AddCommand(watermarkCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pixfit/internal/batch"
	"pixfit/internal/logging"
	"pixfit/internal/pdf"
	"pixfit/internal/tui"
	"pixfit/pkg/imgutil"
)

var (
	planRecursive bool
	planVerbose   bool
)

var planCmd = &cobra.Command{
	Use:   "plan <path>",
	Short: "List the work units a conversion would process, without converting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		mode, err := batch.DetectMode(path)
		if err != nil {
			return err
		}

		logger, closer, err := logging.New(logging.Options{Output: os.Stderr, Verbose: planVerbose})
		if err != nil {
			return err
		}
		defer closer.Close()

		plan, err := batch.Enumerate(context.Background(), path, mode, batch.EnumerateOptions{
			Recursive: planRecursive,
			Pages:     pdf.NewSource(logger),
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		units := map[string]int{}
		for _, u := range plan.Units {
			units[u.Source]++
		}
		for _, src := range plan.Sources {
			rel, relErr := filepath.Rel(plan.Root, src)
			if relErr != nil {
				rel = src
			}
			n := units[src]
			label := "image"
			if imgutil.KindFromExtension(src) == imgutil.KindPDF {
				label = fmt.Sprintf("%d pages", n)
			}
			bullet := planBulletStyle.Render("-")
			if n == 0 {
				fmt.Fprintf(os.Stdout, "  %s %s %s\n", bullet, planFileStyle.Render(rel), planDimStyle.Render("(skipped, no pages)"))
				continue
			}
			fmt.Fprintf(os.Stdout, "  %s %s %s\n", bullet, planFileStyle.Render(rel), planValueStyle.Render(label))
		}

		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, tui.RenderSummary([]tui.SummaryRow{
			{Label: "Mode", Value: plan.Mode.String()},
			{Label: "Sources", Value: fmt.Sprintf("%d", len(plan.Sources))},
			{Label: "PDF documents", Value: fmt.Sprintf("%d", plan.PDFSources())},
			{Label: "Work units", Value: fmt.Sprintf("%d", plan.Total)},
		}))
		return nil
	},
}

var (
	planFileStyle   = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	planValueStyle  = lipgloss.NewStyle().Foreground(tui.ColorAccentAlt)
	planDimStyle    = lipgloss.NewStyle().Foreground(tui.ColorDim)
	planBulletStyle = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	planCmd.Flags().BoolVarP(&planRecursive, "recursive", "r", false, "descend into subfolders")
	planCmd.Flags().BoolVarP(&planVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(planCmd)
}

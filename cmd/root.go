package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pixfit",
	Short: "pixfit - convert images and PDF pages to fit a byte budget",
	Long: "pixfit converts images, folders and PDF pages to JPEG, PNG or WebP,\n" +
		"searching quality or resolution so each output fits a target size.\n" +
		"It can also assemble images into one PDF and stamp watermarks in place.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

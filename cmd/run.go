package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"pixfit/internal/logging"
	"pixfit/internal/progress"
	"pixfit/internal/tui"
	"pixfit/internal/watermark"
)

// runFlags are shared by every command that runs a batch.
type runFlags struct {
	noTUI    bool
	verbose  bool
	logFile  string
	drainMax int
}

func (r *runFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&r.drainMax, "drain", progress.DefaultDrainMax, "progress snapshots folded per UI tick")
	f.BoolVar(&r.noTUI, "no-tui", false, "print log lines instead of the progress UI")
	f.BoolVarP(&r.verbose, "verbose", "v", false, "log every unit in detail")
	f.StringVar(&r.logFile, "log-file", "", "append logs to this file")
}

// logger writes to stderr only when the TUI is off; the file, if any, always.
func (r *runFlags) logger() (*log.Logger, io.Closer, error) {
	var out io.Writer
	if r.noTUI {
		out = os.Stderr
	}
	logger, closer, err := logging.New(logging.Options{Output: out, File: r.logFile, Verbose: r.verbose})
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return logger, closer, nil
}

// withProgress runs fn with a cancellable context and a progress channel
// rendered by the TUI or logged, and returns once the consumer has exited.
func (r *runFlags) withProgress(logger *log.Logger, fn func(ctx context.Context, sink progress.Sink)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := progress.NewChannel()
	uiDone := make(chan struct{})
	if r.noTUI {
		go func() {
			logProgress(logger, updates.Updates(), r.drainMax)
			close(uiDone)
		}()
	} else {
		program := tea.NewProgram(tui.NewModel(updates.Updates(), r.drainMax, cancel))
		go func() {
			if _, err := program.Run(); err != nil {
				updates.Detach()
			}
			close(uiDone)
		}()
	}

	fn(ctx, updates)
	updates.Close()
	<-uiDone
}

// logProgress is the plain consumer used when the TUI is off.
func logProgress(logger *log.Logger, updates <-chan progress.Snapshot, drainMax int) {
	for {
		s, _, ok := progress.Drain(updates, drainMax)
		if !ok {
			return
		}
		if s.Complete {
			logger.Info("complete", "processed", s.Processed, "failed", s.Failed, "total", s.Total, "err", s.Err)
			continue
		}
		logger.Info("progress", "done", s.Done(), "total", s.Total, "failed", s.Failed, "current", s.Current)
	}
}

// markFlags describe an optional image and/or text watermark.
type markFlags struct {
	image    string
	text     string
	position string
	opacity  float64
	scale    float64
	margin   int
}

func (m *markFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&m.image, "watermark-image", "", "image to stamp on every output")
	f.StringVar(&m.text, "watermark-text", "", "text to stamp on every output")
	f.StringVar(&m.position, "watermark-position", "bottom-right", "watermark anchor, e.g. top-left, center, bottom-right")
	f.Float64Var(&m.opacity, "watermark-opacity", watermark.DefaultOpacity, "watermark opacity in (0, 1]")
	f.Float64Var(&m.scale, "watermark-scale", watermark.DefaultScale, "watermark image scale relative to its own size")
	f.IntVar(&m.margin, "watermark-margin", watermark.DefaultMargin, "distance in pixels from the anchored edges")
}

func (m *markFlags) set() bool {
	return m.image != "" || m.text != ""
}

// build returns nil when no watermark was asked for.
func (m *markFlags) build() (*watermark.Overlay, error) {
	if !m.set() {
		return nil, nil
	}
	pos, err := watermark.ParsePosition(m.position)
	if err != nil {
		return nil, err
	}
	return watermark.New(watermark.Config{
		ImagePath: m.image,
		Text:      m.text,
		Position:  pos,
		Opacity:   m.opacity,
		Scale:     m.scale,
		Margin:    m.margin,
	})
}

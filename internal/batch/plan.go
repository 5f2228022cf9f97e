package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"pixfit/internal/logging"
	"pixfit/pkg/imgutil"
)

type Mode int

const (
	SingleFile Mode = iota
	Folder
)

func (m Mode) String() string {
	if m == Folder {
		return "folder"
	}
	return "file"
}

// DetectMode picks Folder for directories and SingleFile for anything else.
func DetectMode(path string) (Mode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SingleFile, &InputError{Path: path, Err: err}
	}
	if info.IsDir() {
		return Folder, nil
	}
	return SingleFile, nil
}

// WorkUnit is one bitmap to convert: a whole image, or one page of a PDF.
type WorkUnit struct {
	Source string
	// RelDir is Source's directory relative to the enumerated root.
	RelDir string
	// Index is the zero-based page number; always 0 for images.
	Index int
	// Count is the number of pages of the PDF Source.
	Count int
	PDF   bool
}

func (u WorkUnit) IsPage() bool {
	return u.PDF
}

// Label is a short human name for progress displays.
func (u WorkUnit) Label() string {
	name := filepath.Base(u.Source)
	if !u.PDF {
		return name
	}
	return fmt.Sprintf("%s (page %d/%d)", name, u.Index+1, u.Count)
}

// Plan is the pre-scanned batch: every unit in processing order.
type Plan struct {
	Root    string
	Mode    Mode
	Units   []WorkUnit
	Sources []string
	Total   int
}

// PDFSources counts the distinct PDFs in the plan.
func (p Plan) PDFSources() int {
	seen := map[string]bool{}
	for _, u := range p.Units {
		if u.PDF {
			seen[u.Source] = true
		}
	}
	return len(seen)
}

// PageCounter reports how many pages a PDF has.
type PageCounter interface {
	PageCount(path string) (int, error)
}

type EnumerateOptions struct {
	Recursive bool
	// Pages counts PDF pages. Without one every PDF is a single unit.
	Pages PageCounter
	// Exclude skips this path and everything below it, typically the output
	// folder when it sits inside the input folder.
	Exclude string
	Logger  *log.Logger
}

// Enumerate lists the work units under path. A folder is scanned for
// supported files in name order; a PDF expands to one unit per page.
func Enumerate(ctx context.Context, path string, mode Mode, opts EnumerateOptions) (Plan, error) {
	logger := logging.OrDiscard(opts.Logger)

	abs, err := filepath.Abs(path)
	if err != nil {
		return Plan{}, &InputError{Path: path, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Plan{}, &InputError{Path: path, Err: err}
	}

	var exclude string
	if opts.Exclude != "" {
		if ex, err := filepath.Abs(opts.Exclude); err == nil {
			exclude = filepath.Clean(ex)
		}
	}

	plan := Plan{Root: abs, Mode: mode}
	var files []string
	switch mode {
	case SingleFile:
		if !info.Mode().IsRegular() {
			return Plan{}, &InputError{Path: path, Err: ErrNotFile}
		}
		if !imgutil.SupportedExtension(abs) {
			return Plan{}, &InputError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(abs))}
		}
		plan.Root = filepath.Dir(abs)
		files = []string{abs}
	case Folder:
		if !info.IsDir() {
			return Plan{}, &InputError{Path: path, Err: ErrNotFolder}
		}
		files, err = listFolder(ctx, abs, opts.Recursive, exclude)
		if err != nil {
			return Plan{}, &InputError{Path: path, Err: err}
		}
	default:
		return Plan{}, &InputError{Path: path, Err: fmt.Errorf("unknown mode %d", mode)}
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}
		relDir, err := filepath.Rel(plan.Root, filepath.Dir(file))
		if err != nil || relDir == "." {
			relDir = ""
		}
		plan.Sources = append(plan.Sources, file)

		if imgutil.KindFromExtension(file) != imgutil.KindPDF {
			plan.Units = append(plan.Units, WorkUnit{Source: file, RelDir: relDir})
			continue
		}

		pages := countPages(opts.Pages, file, logger)
		for i := 0; i < pages; i++ {
			plan.Units = append(plan.Units, WorkUnit{Source: file, RelDir: relDir, Index: i, Count: pages, PDF: true})
		}
	}

	plan.Total = len(plan.Units)
	if plan.Total == 0 {
		return plan, &InputError{Path: path, Err: ErrNoWorkUnits}
	}
	logger.Info("enumerated", "path", abs, "mode", mode, "sources", len(plan.Sources), "units", plan.Total)
	return plan, nil
}

// countPages falls back to a single unit when the count is unavailable, so
// the failure surfaces later as one failed unit instead of aborting the scan.
func countPages(counter PageCounter, path string, logger *log.Logger) int {
	if counter == nil {
		logger.Warn("no pdf reader configured, treating as one page", "path", path)
		return 1
	}
	n, err := counter.PageCount(path)
	if err != nil {
		logger.Warn("pdf page count failed, treating as one page", "path", path, "err", err)
		return 1
	}
	if n == 0 {
		logger.Warn("pdf has no pages", "path", path)
	}
	return n
}

func listFolder(ctx context.Context, root string, recursive bool, exclude string) ([]string, error) {
	var files []string
	keep := func(d fs.DirEntry) bool {
		name := d.Name()
		return d.Type().IsRegular() && !strings.HasPrefix(name, "._") && imgutil.SupportedExtension(name)
	}

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, d := range entries {
			if keep(d) {
				files = append(files, filepath.Join(root, d.Name()))
			}
		}
		return files, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if exclude != "" && path != root && isWithin(path, exclude) {
				return fs.SkipDir
			}
			return nil
		}
		if keep(d) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

package batch

import (
	"fmt"
	"path/filepath"
	"strings"
)

// outputPath is the requested destination of u before collision handling.
// Pages of a PDF get a _page_N suffix and, when the batch holds more than one
// PDF, a folder named after their document.
func outputPath(outDir string, u WorkUnit, ext string, pdfSubfolders bool) string {
	stem := strings.TrimSuffix(filepath.Base(u.Source), filepath.Ext(u.Source))
	dir := filepath.Join(outDir, u.RelDir)

	if !u.PDF {
		return filepath.Join(dir, stem+"."+ext)
	}
	name := fmt.Sprintf("%s_page_%d.%s", stem, u.Index+1, ext)
	if pdfSubfolders {
		return filepath.Join(dir, stem, name)
	}
	return filepath.Join(dir, name)
}

// collisionResolver hands out destination paths so that two different
// sources never write the same file. Losers get _dupN suffixes.
type collisionResolver struct {
	owners   map[string]string
	counters map[string]int
}

func newCollisionResolver() *collisionResolver {
	return &collisionResolver{
		owners:   make(map[string]string),
		counters: make(map[string]int),
	}
}

func (cr *collisionResolver) resolve(source, requested string) string {
	key := strings.ToLower(requested)
	owner, exists := cr.owners[key]
	if !exists || owner == source {
		cr.owners[key] = source
		return requested
	}

	dir := filepath.Dir(requested)
	base := filepath.Base(requested)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	counter := max(cr.counters[key], 1)
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_dup%d%s", stem, counter, ext))
		ckey := strings.ToLower(candidate)
		if cOwner, taken := cr.owners[ckey]; !taken || cOwner == source {
			cr.counters[key] = counter + 1
			cr.owners[ckey] = source
			return candidate
		}
		counter++
	}
}

// assignOutputs resolves every unit's destination up front, in plan order,
// so names do not depend on which worker finishes first.
func assignOutputs(plan Plan, outDir string, ext func(WorkUnit) string) []string {
	subfolders := plan.PDFSources() > 1
	cr := newCollisionResolver()
	out := make([]string, len(plan.Units))
	for i, u := range plan.Units {
		out[i] = cr.resolve(u.Source, outputPath(outDir, u, ext(u), subfolders))
	}
	return out
}

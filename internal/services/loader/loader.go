// Package loader turns local files and web pages into documents ready
// for embedding: it reads, extracts, chunks, and stamps each chunk with
// the metadata and stable id the store keys vectors by.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/ragserver/internal/common"
)

// Supported source extensions, grouped by how each kind is read.
var (
	textExts     = extSet(".txt")
	markdownExts = extSet(".md")
	imageExts    = extSet(".jpg", ".jpeg", ".png", ".gif")
	pdfExts      = extSet(".pdf")

	supportedExts = merge(textExts, markdownExts, imageExts, pdfExts)
)

func extSet(exts ...string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[e] = true
	}
	return set
}

func merge(sets ...map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range sets {
		for e := range s {
			out[e] = true
		}
	}
	return out
}

// hasExt reports whether the uri's extension is in exts. Query strings
// and fragments are ignored so direct links like a.pdf?v=2 match.
func hasExt(uri string, exts map[string]bool) bool {
	return exts[extOf(uri)]
}

func extOf(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return strings.ToLower(filepath.Ext(uri))
}

func extList(exts map[string]bool) string {
	out := make([]string, 0, len(exts))
	for e := range exts {
		out = append(out, e)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// readSourcesFromFile reads one source per line, skipping blank lines
// and #-comments.
func readSourcesFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read source list %s: %v", common.ErrIngest, path, err)
	}

	var sources []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sources = append(sources, line)
	}
	return sources, nil
}

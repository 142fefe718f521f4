// Package crawler collects client documents to upload from files and
// directories.
package crawler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the document types the search index ingests.
var DefaultExtensions = []string{".pdf", ".docx", ".doc", ".pptx", ".ppt", ".xlsx", ".csv", ".txt", ".md", ".html", ".htm", ".json", ".rtf"}

// Crawler scans paths for uploadable documents.
type Crawler struct {
	extensions map[string]bool
	ignored    []string
}

// NewCrawler accepts the given extensions (DefaultExtensions when empty).
func NewCrawler(extensions ...string) *Crawler {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	c := &Crawler{
		extensions: make(map[string]bool, len(extensions)),
		ignored:    []string{".git", "node_modules", "__MACOSX"},
	}
	for _, ext := range extensions {
		c.extensions[strings.ToLower(ext)] = true
	}
	return c
}

// Collect expands paths into a sorted list of document files. Files named
// explicitly are kept regardless of extension; directories are walked and
// filtered. Two documents with the same base name are rejected since they
// would land on the same object key.
func (c *Crawler) Collect(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		if err := c.walk(p, func(path string) { out = append(out, path) }); err != nil {
			return nil, err
		}
	}
	sort.Strings(out)

	seen := make(map[string]string, len(out))
	for _, p := range out {
		base := filepath.Base(p)
		if prev, ok := seen[base]; ok {
			return nil, fmt.Errorf("duplicate document name %q: %s and %s", base, prev, p)
		}
		seen[base] = p
	}
	return out, nil
}

func (c *Crawler) walk(root string, onFile func(string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && c.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") || name == "_complete.txt" {
			return nil
		}
		if !c.extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		onFile(path)
		return nil
	})
}

func (c *Crawler) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ign := range c.ignored {
		if name == ign {
			return true
		}
	}
	return false
}

package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// DefaultPatterns returns the globs WatchDir uses when none are given.
func DefaultPatterns() []string {
	return []string{"*.yaml", "*.yml"}
}

// Matcher selects files by glob. Patterns without a separator match the
// base name; others match the slash-separated path relative to the root.
type Matcher struct {
	base []glob.Glob
	rel  []glob.Glob
}

// NewMatcher compiles patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if strings.Contains(p, "/") {
			m.rel = append(m.rel, g)
		} else {
			m.base = append(m.base, g)
		}
	}
	return m, nil
}

// Match reports whether rel, a path relative to the walk root, is selected.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	for _, g := range m.base {
		if g.Match(base) {
			return true
		}
	}
	for _, g := range m.rel {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// WatchDir walks root and watches every regular file matching patterns, or
// the engine's default patterns when none are given. Symlinks are not
// followed. Files that fail to install are reported through the event
// channel like any other watch; the returned error joins those failures.
func (e *Engine) WatchDir(root string, patterns ...string) ([]cache.Identity, error) {
	if len(patterns) == 0 {
		patterns = e.patterns
	}
	m, err := NewMatcher(patterns)
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absRoot {
				return walkErr
			}
			return nil //nolint:nilerr // Skip unreadable entries and keep walking
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || !m.Match(rel) {
			return nil //nolint:nilerr // Paths outside the root are never selected
		}

		mu.Lock()
		files = append(files, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	sort.Strings(files)

	ids := make([]cache.Identity, 0, len(files))
	var errs []error
	for _, f := range files {
		id, err := e.Watch(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}

	logging.Get("engine").Info("watching directory", "root", absRoot, "files", len(ids), "failed", len(errs))
	return ids, errors.Join(errs...)
}

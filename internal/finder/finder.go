// Package finder enumerates the files a localizer should consider under a
// root directory. Every Finder returns regular files only, as slash-separated
// paths relative to the root.
package finder

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Finder lists candidate files under root.
type Finder interface {
	Find(root string) ([]string, error)
}

// Matcher is implemented by finders that can decide for a single relative path
// without walking the tree.
type Matcher interface {
	Match(rel string) bool
}

// DirSkipper is implemented by finders that prune whole directories. Callers
// walking a tree on their own, such as a file watcher, use it to stay out of
// directories Find would never descend into.
type DirSkipper interface {
	SkipDir(rel string) bool
}

// All finds every regular file under root, in lexical walk order.
type All struct{}

func (All) Find(root string) ([]string, error) {
	return walk(root, nil, func(string) bool { return true })
}

// Match accepts every path.
func (All) Match(string) bool { return true }

// Glob finds regular files whose relative path or base name matches one of
// Include (all files when Include is empty) and none of Exclude.
// Patterns use doublestar syntax, so "**" spans any number of directories,
// e.g. "docs/**/*.md". A pattern without "/" is also tried against the base
// name. An Exclude pattern that matches a directory,
// or that ends in "/", prunes the whole directory.
type Glob struct {
	Include []string
	Exclude []string
}

// Validate reports the first malformed pattern.
func (g Glob) Validate() error {
	for _, p := range append(append([]string{}, g.Include...), g.Exclude...) {
		if !doublestar.ValidatePattern(strings.TrimSuffix(p, "/")) {
			return fmt.Errorf("bad pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	return nil
}

func (g Glob) Find(root string) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return walk(root, g.SkipDir, g.Match)
}

// Match reports whether a file at rel would be returned by Find.
func (g Glob) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range g.Exclude {
		if strings.HasSuffix(p, "/") {
			if underDir(rel, strings.TrimSuffix(p, "/")) {
				return false
			}
			continue
		}
		if matches(p, rel) || underDir(rel, p) {
			return false
		}
	}
	if len(g.Include) == 0 {
		return true
	}
	for _, p := range g.Include {
		if matches(p, rel) {
			return true
		}
	}
	return false
}

// SkipDir reports whether the directory at rel, or one of its parents, is
// pruned by an Exclude pattern.
func (g Glob) SkipDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range g.Exclude {
		p = strings.TrimSuffix(p, "/")
		if matches(p, rel) || underDir(rel, p) {
			return true
		}
	}
	return false
}

// List is a fixed set of relative paths, returned as is for any root.
type List []string

func (l List) Find(string) ([]string, error) {
	out := make([]string, len(l))
	copy(out, l)
	return out, nil
}

func (l List) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range l {
		if filepath.ToSlash(p) == rel {
			return true
		}
	}
	return false
}

// matches tries the pattern against the full relative path, then the base name.
func matches(pattern, rel string) bool {
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if strings.Contains(pattern, "/") {
		return false
	}
	ok, _ := doublestar.Match(pattern, path.Base(rel))
	return ok
}

// underDir reports whether any parent directory of rel matches pattern.
func underDir(rel, pattern string) bool {
	dir := path.Dir(rel)
	for dir != "." && dir != "/" {
		if matches(pattern, dir) {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}

func walk(root string, skipDir func(rel string) bool, keep func(rel string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && skipDir != nil && skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if keep(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

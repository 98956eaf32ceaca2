// Package watch keeps directories localized by rewriting files as they are
// created or modified.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/tjun/eol/internal/finder"
)

// Localizer is the part of localizer.Localizer the watcher needs.
type Localizer interface {
	Localize(path string) (int, error)
	Finder() finder.Finder
}

// Watcher localizes files under a set of root directories whenever they change.
type Watcher struct {
	loc   Localizer
	log   logrus.FieldLogger
	roots []string
	w     *fsnotify.Watcher

	// OnLocalize, when set, is called after every file that was rewritten.
	OnLocalize func(path string)
}

// New creates a Watcher for roots. Every directory below each root is watched,
// including directories created later, except those the finder prunes.
func New(loc Localizer, log logrus.FieldLogger, roots ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	watcher := &Watcher{loc: loc, log: log, w: w}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			w.Close()
			return nil, err
		}
		watcher.roots = append(watcher.roots, abs)
		if err := watcher.addTree(abs); err != nil {
			w.Close()
			return nil, err
		}
	}
	return watcher, nil
}

// Run processes events until ctx is cancelled or the watcher fails.
// The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Removed or renamed before we got to it.
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			w.log.WithField("path", event.Name).Debug("watching new directory")
			if err := w.addTree(event.Name); err != nil {
				w.log.WithError(err).WithField("path", event.Name).Warn("could not watch directory")
			}
		}
		return
	}
	if !info.Mode().IsRegular() || !w.selected(event.Name) {
		return
	}

	n, err := w.loc.Localize(event.Name)
	if err != nil {
		w.log.WithError(err).WithField("path", event.Name).Error("localize failed")
		return
	}
	if n > 0 {
		w.log.WithField("path", event.Name).Info("Localized")
		if w.OnLocalize != nil {
			w.OnLocalize(event.Name)
		}
	}
}

// selected reports whether the localizer's finder would pick path.
func (w *Watcher) selected(path string) bool {
	m, ok := w.loc.Finder().(finder.Matcher)
	if !ok {
		return true
	}
	for _, rel := range w.rels(path) {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

// skipped reports whether the finder prunes dir below one of the roots.
func (w *Watcher) skipped(dir string) bool {
	s, ok := w.loc.Finder().(finder.DirSkipper)
	if !ok {
		return false
	}
	for _, rel := range w.rels(dir) {
		if rel != "." && s.SkipDir(rel) {
			return true
		}
	}
	return false
}

// rels returns path relative to every root that contains it, slash-separated.
func (w *Watcher) rels(path string) []string {
	var out []string
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

// addTree recursively adds the directories under root to the watcher.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) {
			w.log.WithField("path", path).Debug("skipping excluded directory")
			return filepath.SkipDir
		}
		return w.w.Add(path)
	})
}

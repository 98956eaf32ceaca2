// Package localizer converts the line endings of text files to a single
// target newline.
//
// A file is localized when every newline occurrence in it (LF, CR, CRLF or the
// doubled CRCRLF) already is the target newline. Localizer can test single
// files, list the files under a directory that are not localized, and rewrite
// them in place. Every operation reads the file afresh; nothing is cached.
//
// Rewrites are not atomic and not locked: a file changed by another process
// between the read and the write ends up with whichever write lands last, and
// a failure in the middle of a directory leaves earlier files rewritten.
package localizer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/tjun/eol/internal/finder"
	"github.com/tjun/eol/internal/newline"
)

// ErrInvalidInput is returned when a path does not exist or is not the kind of
// entry the operation needs.
var ErrInvalidInput = errors.New("invalid input")

// Options configures a Localizer. The zero value is valid.
type Options struct {
	// Filter selects the files considered inside a directory.
	// Nil means every regular file.
	Filter finder.Finder
	// Newline is the target newline. Empty, or anything newline.Valid rejects,
	// means the host's native newline.
	Newline string
	// FS defaults to OSFileSystem.
	FS FileSystem
	// Logger defaults to a logger that discards everything.
	Logger logrus.FieldLogger
}

// Localizer rewrites newlines to a fixed target. It is immutable after New.
type Localizer struct {
	filter  finder.Finder
	newline string
	fs      FileSystem
	log     logrus.FieldLogger
}

// Handle is an open file that can be read, rewritten and truncated.
// *os.File satisfies it.
type Handle interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

// New creates a Localizer from opts, falling back to defaults for any unset field.
func New(opts Options) *Localizer {
	l := &Localizer{
		filter:  opts.Filter,
		newline: opts.Newline,
		fs:      opts.FS,
		log:     opts.Logger,
	}
	if !newline.Valid(l.newline) {
		l.newline = ""
	}
	if l.fs == nil {
		l.fs = OSFileSystem{}
	}
	if l.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		l.log = discard
	}
	return l
}

// Newline returns the target newline.
func (l *Localizer) Newline() string {
	if l.newline == "" {
		return newline.Native()
	}
	return l.newline
}

// Finder returns the configured finder, or finder.All when none was given.
func (l *Localizer) Finder() finder.Finder {
	if l.filter == nil {
		return finder.All{}
	}
	return l.filter
}

// IsLocalized reports whether the regular file at path uses only the target newline.
func (l *Localizer) IsLocalized(path string) (bool, error) {
	if err := l.requireFile(path); err != nil {
		return false, err
	}
	content, err := l.fs.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return l.localized(content), nil
}

// IsLocalizedHandle is IsLocalized for an open file. It reads from offset 0
// and leaves the offset at the end of the file.
func (l *Localizer) IsLocalizedHandle(h Handle) (bool, error) {
	content, err := readHandle(h)
	if err != nil {
		return false, err
	}
	return l.localized(content), nil
}

// Find returns the files under root, relative to root and in finder order,
// that are not localized. Files that cannot be read are included.
// A root that is not an existing directory yields an empty result.
func (l *Localizer) Find(root string) ([]string, error) {
	if !l.isDir(root) {
		l.log.WithField("path", root).Debug("not a directory, nothing to find")
		return nil, nil
	}
	candidates, err := l.Finder().Find(root)
	if err != nil {
		return nil, err
	}

	var found []string
	for _, rel := range candidates {
		ok, err := l.IsLocalized(filepath.Join(root, rel))
		if err != nil {
			l.log.WithError(err).WithField("path", rel).Debug("could not test file")
		}
		if !ok {
			found = append(found, rel)
		}
	}
	return found, nil
}

// Localize rewrites the file at path, or every file the finder selects when
// path is a directory, and returns how many files were rewritten.
//
// For a directory the first read or write failure stops the walk; the count
// of files rewritten before it is returned together with the error.
func (l *Localizer) Localize(path string) (int, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
	}
	switch mode := info.Mode(); {
	case mode.IsRegular():
		return l.localizeFile(path)
	case mode.IsDir():
		return l.localizeDir(path)
	default:
		return 0, fmt.Errorf("%w: %s is neither a regular file nor a directory", ErrInvalidInput, path)
	}
}

// LocalizeHandle rewrites an open file in place and returns 1 when it changed.
func (l *Localizer) LocalizeHandle(h Handle) (int, error) {
	content, err := readHandle(h)
	if err != nil {
		return 0, err
	}
	localized := newline.Normalize(content, l.Newline())
	if bytes.Equal(content, localized) {
		return 0, nil
	}

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	if _, err := h.Write(localized); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	if err := h.Truncate(int64(len(localized))); err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}
	return 1, nil
}

func (l *Localizer) localizeFile(path string) (int, error) {
	changed, err := l.rewrite(path)
	if err != nil {
		return 0, err
	}
	if changed {
		return 1, nil
	}
	return 0, nil
}

func (l *Localizer) localizeDir(root string) (int, error) {
	candidates, err := l.Finder().Find(root)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rel := range candidates {
		changed, err := l.rewrite(filepath.Join(root, rel))
		if err != nil {
			return count, err
		}
		if changed {
			count++
		}
	}
	return count, nil
}

// rewrite normalizes one file and writes it back only when the content changes.
func (l *Localizer) rewrite(path string) (bool, error) {
	content, err := l.fs.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	log := l.log.WithField("path", path)
	localized := newline.Normalize(content, l.Newline())
	if bytes.Equal(content, localized) {
		log.Debug("already localized")
		return false, nil
	}

	if err := l.fs.WriteFile(path, localized); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	log.WithFields(logrus.Fields{
		"newline": newline.Name(l.Newline()),
		"found":   newline.Count(content).String(),
	}).Debug("rewrote file")
	return true, nil
}

func (l *Localizer) localized(content []byte) bool {
	return newline.IsNormalized(content, l.Newline())
}

func (l *Localizer) requireFile(path string) error {
	info, err := l.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, path)
	}
	return nil
}

func (l *Localizer) isDir(path string) bool {
	info, err := l.fs.Stat(path)
	return err == nil && info.IsDir()
}

func readHandle(h Handle) ([]byte, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handle", ErrInvalidInput)
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	content, err := io.ReadAll(h)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return content, nil
}

package localizer

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tjun/eol/internal/finder"
	"github.com/tjun/eol/internal/newline"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// failingFS wraps OSFileSystem and fails writes for the named base names.
type failingFS struct {
	OSFileSystem
	failWrite map[string]bool
	writes    []string
}

func (f *failingFS) WriteFile(name string, data []byte) error {
	if f.failWrite[filepath.Base(name)] {
		return fs.ErrPermission
	}
	f.writes = append(f.writes, filepath.Base(name))
	return f.OSFileSystem.WriteFile(name, data)
}

func TestNewDefaults(t *testing.T) {
	l := New(Options{})
	assert.Equal(t, newline.Native(), l.Newline())
	assert.Equal(t, finder.All{}, l.Finder())

	custom := finder.List{"a"}
	l = New(Options{Filter: custom, Newline: "\r\n"})
	assert.Equal(t, "\r\n", l.Newline())
	assert.Equal(t, custom, l.Finder())
}

func TestNewIgnoresUnstableNewline(t *testing.T) {
	for _, nl := range []string{"\n\n", "\n\r", "\r\r", "x"} {
		assert.Equal(t, newline.Native(), New(Options{Newline: nl}).Newline(), "newline %q", nl)
	}
}

func TestLocalizeTwiceIsNoOp(t *testing.T) {
	content := "a\r\nb\rc\nd\r\r\ne\n"
	for _, nl := range []string{"\n", "\r\n", "\r", "\r\r\n", "\n\n"} {
		t.Run(newline.Name(nl), func(t *testing.T) {
			root := writeFiles(t, map[string]string{"f": content})
			path := filepath.Join(root, "f")
			l := New(Options{Newline: nl})

			n, err := l.Localize(path)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			after := readFile(t, path)

			n, err = l.Localize(path)
			require.NoError(t, err)
			assert.Equal(t, 0, n, "second pass must not rewrite")
			assert.Equal(t, after, readFile(t, path))

			ok, err := l.IsLocalized(path)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestIsLocalized(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"lf.txt":    "a\nb\n",
		"crlf.txt":  "a\r\nb\r\n",
		"mixed.txt": "a\r\nb\n",
		"none.txt":  "no newline",
		"empty.txt": "",
	})

	testCases := []struct {
		file    string
		newline string
		want    bool
	}{
		{file: "lf.txt", newline: "\n", want: true},
		{file: "lf.txt", newline: "\r\n", want: false},
		{file: "crlf.txt", newline: "\r\n", want: true},
		{file: "crlf.txt", newline: "\n", want: false},
		{file: "mixed.txt", newline: "\n", want: false},
		{file: "mixed.txt", newline: "\r\n", want: false},
		{file: "none.txt", newline: "\r", want: true},
		{file: "empty.txt", newline: "\r\n", want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.file+"/"+newline.Name(tc.newline), func(t *testing.T) {
			l := New(Options{Newline: tc.newline})
			got, err := l.IsLocalized(filepath.Join(root, tc.file))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsLocalizedMatchesNormalize(t *testing.T) {
	contents := []string{"a\r\nb\rc\nd\r\r\ne", "x\n", "x\r\n", "x\r", "\r\r\r\n", "plain"}
	for _, target := range []string{"\n", "\r\n", "\r"} {
		l := New(Options{Newline: target})
		for i, c := range contents {
			path := filepath.Join(t.TempDir(), "f")
			require.NoError(t, os.WriteFile(path, []byte(c), 0644))
			got, err := l.IsLocalized(path)
			require.NoError(t, err)
			want := bytes.Equal(newline.Normalize([]byte(c), target), []byte(c))
			assert.Equal(t, want, got, "content #%d target %q", i, target)
		}
	}
}

func TestIsLocalizedInvalidInput(t *testing.T) {
	l := New(Options{})
	dir := t.TempDir()

	_, err := l.IsLocalized(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.IsLocalized(dir)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.IsLocalizedHandle(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFind(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"f1":        "one\ntwo\n",
		"f2":        "one\r\ntwo\r\n",
		"sub/f3":    "one\rtwo",
		"sub/plain": "no newline",
	})

	l := New(Options{Newline: "\n"})
	got, err := l.Find(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2", "sub/f3"}, got)

	l = New(Options{Newline: "\n", Filter: finder.Glob{Include: []string{"f*"}, Exclude: []string{"sub/"}}})
	got, err = l.Find(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, got)
}

func TestFindIncludesUnreadableCandidates(t *testing.T) {
	root := writeFiles(t, map[string]string{"ok": "a\n"})
	l := New(Options{Newline: "\n", Filter: finder.List{"ok", "gone"}})

	got, err := l.Find(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, got)
}

func TestFindNotADirectory(t *testing.T) {
	root := writeFiles(t, map[string]string{"file": "a\r\n"})
	l := New(Options{Newline: "\n"})

	got, err := l.Find(filepath.Join(root, "does", "not", "exist"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = l.Find(filepath.Join(root, "file"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindFinderError(t *testing.T) {
	l := New(Options{Filter: finder.Glob{Include: []string{"[bad"}}})
	_, err := l.Find(t.TempDir())
	assert.Error(t, err)
}

func TestLocalizeFile(t *testing.T) {
	testCases := []struct {
		name      string
		content   string
		newline   string
		want      string
		wantCount int
	}{
		{name: "mixed to lf", content: "a\r\nb\rc\nd\r\r\ne", newline: "\n", want: "a\nb\nc\nd\ne", wantCount: 1},
		{name: "lf to crlf", content: "a\nb\n", newline: "\r\n", want: "a\r\nb\r\n", wantCount: 1},
		{name: "already lf", content: "a\nb\n", newline: "\n", want: "a\nb\n", wantCount: 0},
		{name: "no newline", content: "abc", newline: "\r\n", want: "abc", wantCount: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := writeFiles(t, map[string]string{"f": tc.content})
			path := filepath.Join(root, "f")
			fsys := &failingFS{}
			l := New(Options{Newline: tc.newline, FS: fsys})

			n, err := l.Localize(path)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCount, n)
			assert.Equal(t, tc.want, readFile(t, path))
			if tc.wantCount == 0 {
				assert.Empty(t, fsys.writes, "a localized file must not be written")
			}

			ok, err := l.IsLocalized(path)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLocalizeKeepsPermissions(t *testing.T) {
	root := writeFiles(t, map[string]string{"script.sh": "#!/bin/sh\r\necho hi\r\n"})
	path := filepath.Join(root, "script.sh")
	require.NoError(t, os.Chmod(path, 0755))

	n, err := New(Options{Newline: "\n"}).Localize(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0755), info.Mode().Perm())
}

func TestLocalizeDirectory(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"f1": "one\ntwo\n",
		"f2": "one\r\ntwo\r\n",
	})
	l := New(Options{Newline: "\n"})

	found, err := l.Find(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, found)

	n, err := l.Localize(root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "one\ntwo\n", readFile(t, filepath.Join(root, "f1")))
	assert.Equal(t, "one\ntwo\n", readFile(t, filepath.Join(root, "f2")))

	n, err = l.Localize(root)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLocalizeDirectoryAbortsOnWriteFailure(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a": "1\r\n",
		"b": "2\r\n",
		"c": "3\r\n",
	})
	fsys := &failingFS{failWrite: map[string]bool{"b": true}}
	l := New(Options{Newline: "\n", FS: fsys, Filter: finder.List{"a", "b", "c"}})

	n, err := l.Localize(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.Equal(t, 1, n)

	assert.Equal(t, "1\n", readFile(t, filepath.Join(root, "a")), "earlier files stay rewritten")
	assert.Equal(t, "2\r\n", readFile(t, filepath.Join(root, "b")))
	assert.Equal(t, "3\r\n", readFile(t, filepath.Join(root, "c")), "later files are untouched")
}

func TestLocalizeDirectoryAbortsOnReadFailure(t *testing.T) {
	root := writeFiles(t, map[string]string{"a": "1\r\n"})
	l := New(Options{Newline: "\n", Filter: finder.List{"missing", "a"}})

	n, err := l.Localize(root)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "1\r\n", readFile(t, filepath.Join(root, "a")))
}

func TestLocalizeFileWriteFailure(t *testing.T) {
	root := writeFiles(t, map[string]string{"f": "1\r\n"})
	l := New(Options{Newline: "\n", FS: &failingFS{failWrite: map[string]bool{"f": true}}})

	n, err := l.Localize(filepath.Join(root, "f"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, n)
}

func TestLocalizeInvalidInput(t *testing.T) {
	l := New(Options{})
	n, err := l.Localize("/path/does/not/exist")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, n)
}

func TestLocalizeCustomNewline(t *testing.T) {
	root := writeFiles(t, map[string]string{"f": "a\nb\n"})
	path := filepath.Join(root, "f")

	n, err := New(Options{Newline: "\r\n"}).Localize(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "a\r\nb\r\n", readFile(t, path))
}

func TestLocalizeHandle(t *testing.T) {
	root := writeFiles(t, map[string]string{"f": "line one\r\nline two\r\n"})
	path := filepath.Join(root, "f")
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	l := New(Options{Newline: "\n"})
	ok, err := l.IsLocalizedHandle(f)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := l.LocalizeHandle(f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "line one\nline two\n", readFile(t, path), "shorter content must be truncated")

	n, err = l.LocalizeHandle(f)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ok, err = l.IsLocalizedHandle(f)
	require.NoError(t, err)
	assert.True(t, ok)
}

// memHandle is an in-memory Handle whose seek, write and truncate can be made
// to fail. Seeks fail only after the first one so the content can be read.
type memHandle struct {
	*bytes.Reader
	seeks         int
	failSeek      bool
	failWrite     bool
	failTruncate  bool
	written       []byte
	truncatedSize int64
}

func newMemHandle(content string) *memHandle {
	return &memHandle{Reader: bytes.NewReader([]byte(content)), truncatedSize: -1}
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	h.seeks++
	if h.failSeek && h.seeks > 1 {
		return 0, errors.New("seek failed")
	}
	return h.Reader.Seek(offset, whence)
}

func (h *memHandle) Write(p []byte) (int, error) {
	if h.failWrite {
		return 0, errors.New("disk full")
	}
	h.written = append(h.written, p...)
	return len(p), nil
}

func (h *memHandle) Truncate(size int64) error {
	if h.failTruncate {
		return errors.New("truncate failed")
	}
	h.truncatedSize = size
	return nil
}

func TestLocalizeHandleFailures(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(h *memHandle)
		wantErr string
	}{
		{name: "seek", setup: func(h *memHandle) { h.failSeek = true }, wantErr: "seek: seek failed"},
		{name: "write", setup: func(h *memHandle) { h.failWrite = true }, wantErr: "write: disk full"},
		{name: "truncate", setup: func(h *memHandle) { h.failTruncate = true }, wantErr: "truncate: truncate failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newMemHandle("a\r\nb\r\n")
			tc.setup(h)

			n, err := New(Options{Newline: "\n"}).LocalizeHandle(h)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrInvalidInput)
			assert.EqualError(t, err, tc.wantErr)
			assert.Equal(t, 0, n)
		})
	}
}

func TestLocalizeHandleWritesAndTruncates(t *testing.T) {
	h := newMemHandle("a\r\nb\r\n")

	n, err := New(Options{Newline: "\n"}).LocalizeHandle(h)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "a\nb\n", string(h.written))
	assert.Equal(t, int64(4), h.truncatedSize)
	assert.Equal(t, 2, h.seeks)

	h = newMemHandle("a\nb\n")
	n, err = New(Options{Newline: "\n"}).LocalizeHandle(h)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, h.written, "a localized handle must not be written")
	assert.Equal(t, int64(-1), h.truncatedSize)
}

func TestLocalizeLogs(t *testing.T) {
	root := writeFiles(t, map[string]string{"f": "a\r\n"})
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	_, err := New(Options{Newline: "\n", Logger: logger}).Localize(filepath.Join(root, "f"))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "rewrote file", entry.Message)
	assert.Equal(t, "lf", entry.Data["newline"])
	assert.Equal(t, "lf=0 crlf=1 cr=0 crcrlf=0", entry.Data["found"])
}

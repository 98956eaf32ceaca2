package localizer

import (
	"io/fs"
	"os"
)

// FileSystem is the whole-file I/O the Localizer depends on.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	// WriteFile replaces the content of an existing file.
	WriteFile(name string, data []byte) error
	Stat(name string) (fs.FileInfo, error)
}

// OSFileSystem implements FileSystem using the local OS filesystem.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile keeps the permission bits of the file being replaced.
func (OSFileSystem) WriteFile(name string, data []byte) error {
	perm := fs.FileMode(0644)
	if info, err := os.Stat(name); err == nil {
		perm = info.Mode().Perm()
	}
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

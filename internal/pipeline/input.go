package pipeline

import (
	"os"
	"path/filepath"
)

// FileInput is the on-disk InputSource the CLI uses: it defers the actual
// read until Bytes() is called, matching the pipeline's single blocking
// read point (spec.md §5). The core never inspects path, mtime, or
// permissions beyond the name and size this collaborator exposes.
type FileInput struct {
	path string
	name string
	size int64
}

// NewFileInput stats path without reading it; Size is available before any
// bytes are loaded.
func NewFileInput(path string) (*FileInput, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileInput{path: path, name: filepath.Base(path), size: fi.Size()}, nil
}

func (f *FileInput) Bytes() ([]byte, error) { return os.ReadFile(f.path) }
func (f *FileInput) Name() string           { return f.name }
func (f *FileInput) Size() int64            { return f.size }

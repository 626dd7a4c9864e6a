package fstree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rstms/hybridiso/pkg/isoerr"
)

// Source is the opaque origin of a file's bytes. The tree only needs the size while composing; Open is called once
// when the data is copied into the image and the reader is closed right after.
type Source interface {
	Size() int64
	Open() (io.ReadCloser, error)
}

// PathSource reads a file from the host filesystem.
type PathSource struct {
	Path string
	size int64
}

// NewPathSource stats path and returns a Source for it. A missing file is ErrNotFound and a directory is
// ErrInvalidInput.
func NewPathSource(path string) (*PathSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, isoerr.NotFound("source file %s", path)
		}
		return nil, fmt.Errorf("failed to stat source file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, isoerr.InvalidInput("source %s is a directory", path)
	}
	return &PathSource{Path: path, size: info.Size()}, nil
}

func (p *PathSource) Size() int64 {
	return p.size
}

func (p *PathSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, isoerr.NotFound("source file %s", p.Path)
		}
		return nil, fmt.Errorf("failed to open source file %s: %w", p.Path, err)
	}
	return f, nil
}

// BytesSource serves file contents held in memory.
type BytesSource []byte

func (b BytesSource) Size() int64 {
	return int64(len(b))
}

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

package reader

import (
	"bytes"
	"context"
	"io"
	"os"
)

// DefaultPath is where debugfs exposes the binder transaction log.
const DefaultPath = "/sys/kernel/debug/binder/transactions"

// Source yields a fresh stream over a transaction snapshot on every Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// FileSource reads a snapshot from the filesystem, either a live kernel
// interface or a captured copy.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	if path == "" {
		path = DefaultPath
	}
	return &FileSource{Path: path}
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.Path)
}

func (s *FileSource) Name() string { return s.Path }

// BytesSource serves a snapshot already held in memory.
type BytesSource struct {
	Label string
	Data  []byte
}

func (s *BytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

func (s *BytesSource) Name() string {
	if s.Label == "" {
		return "memory"
	}
	return s.Label
}

package sink

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// OpenFile creates path (and its parent directories) for writing. A path
// ending in ".lz4" is written through an lz4 frame compressor; closing the
// returned writer flushes the frame and closes the file.
func OpenFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".lz4") {
		return f, nil
	}
	return &lz4File{Writer: lz4.NewWriter(f), file: f}, nil
}

type lz4File struct {
	*lz4.Writer
	file *os.File
}

func (f *lz4File) Close() error {
	return errors.Join(f.Writer.Close(), f.file.Close())
}

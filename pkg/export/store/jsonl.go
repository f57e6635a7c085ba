package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"

	"mercator-hq/exporter/pkg/export"
)

// LineError reports a malformed line in a raw record JSONL stream.
type LineError struct {
	Line  int
	Cause error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *LineError) Unwrap() error {
	return e.Cause
}

// DecodeJSONL reads one raw record per line from r and calls fn for each.
// Numbers in attributes decode as json.Number so large integers survive.
// Blank lines are skipped; records without an ID are assigned one.
func DecodeJSONL(ctx context.Context, r io.Reader, fn func(export.RawRecord) error) error {
	br := bufio.NewReader(r)

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}

		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
			rec, err := decodeLine(trimmed)
			if err != nil {
				return &LineError{Line: line, Cause: err}
			}
			if err := fn(rec); err != nil {
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
	}
}

func decodeLine(data []byte) (export.RawRecord, error) {
	var rec export.RawRecord

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return rec, err
	}
	if rec.Kind == "" {
		return rec, errors.New("missing kind")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return rec, nil
}

// ReadJSONL decodes a whole raw record JSONL stream.
func ReadJSONL(r io.Reader) ([]export.RawRecord, error) {
	var records []export.RawRecord
	err := DecodeJSONL(context.Background(), r, func(rec export.RawRecord) error {
		records = append(records, rec)
		return nil
	})
	return records, err
}

// WriteJSONL writes records one per line.
func WriteJSONL(w io.Writer, records ...*export.RawRecord) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// OpenJSONL opens a raw record file for reading. Files ending in ".lz4" are
// decompressed.
func OpenJSONL(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".lz4") {
		return f, nil
	}
	return &lz4ReadCloser{Reader: lz4.NewReader(f), file: f}, nil
}

type lz4ReadCloser struct {
	*lz4.Reader
	file *os.File
}

func (r *lz4ReadCloser) Close() error {
	return r.file.Close()
}

// FileSource is an export.Source over a raw record JSONL file.
type FileSource struct {
	Path string
}

// Records streams the file's records. A malformed line ends the stream with
// a LineError.
func (fs FileSource) Records(ctx context.Context) (<-chan export.RawRecord, <-chan error) {
	out := make(chan export.RawRecord, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		rc, err := OpenJSONL(fs.Path)
		if err != nil {
			errCh <- err
			return
		}
		defer rc.Close()

		err = DecodeJSONL(ctx, rc, func(rec export.RawRecord) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- rec:
				return nil
			}
		})
		if err != nil {
			errCh <- fmt.Errorf("%s: %w", fs.Path, err)
		}
	}()

	return out, errCh
}

package sink

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/schema"
)

type csvFile struct {
	out    io.WriteCloser
	writer *csv.Writer
}

// CSVSink writes one CSV file per shape into a directory. Each file starts
// with a header of the shape's flattened columns.
type CSVSink struct {
	mu       sync.Mutex
	dir      string
	registry *schema.Registry
	files    map[string]*csvFile
	closed   bool
}

// NewCSVSink creates a CSV sink writing "<dir>/<Shape>.csv" files.
func NewCSVSink(dir string, registry *schema.Registry) *CSVSink {
	return &CSVSink{
		dir:      dir,
		registry: registry,
		files:    make(map[string]*csvFile),
	}
}

// Write appends a row to the shape's file, creating it on first use.
func (s *CSVSink) Write(ctx context.Context, shape string, record export.Record) error {
	sh, ok := s.registry.ShapeByName(shape)
	if !ok {
		return export.NewSinkError("csv", shape, fmt.Errorf("unknown shape"))
	}
	values, err := sh.Flatten(record)
	if err != nil {
		return export.NewSinkError("csv", shape, err)
	}

	row := make([]string, len(values))
	for i, v := range values {
		row[i] = formatValue(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return export.NewSinkError("csv", shape, errClosed)
	}

	f, err := s.file(sh)
	if err != nil {
		return export.NewSinkError("csv", shape, err)
	}
	if err := f.writer.Write(row); err != nil {
		return export.NewSinkError("csv", shape, err)
	}
	return nil
}

func (s *CSVSink) file(sh *schema.Shape) (*csvFile, error) {
	if f, ok := s.files[sh.Name]; ok {
		return f, nil
	}

	out, err := OpenFile(filepath.Join(s.dir, sh.Name+".csv"))
	if err != nil {
		return nil, err
	}
	f := &csvFile{out: out, writer: csv.NewWriter(out)}
	if err := f.writer.Write(sh.Columns()); err != nil {
		out.Close()
		return nil, err
	}
	s.files[sh.Name] = f
	return f, nil
}

// Close flushes and closes every shape file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for name, f := range s.files {
		f.writer.Flush()
		if err := f.writer.Error(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if err := f.out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return export.NewSinkError("csv", "", err)
	}
	return nil
}

// formatValue renders a flattened value as a CSV cell. Absent values are
// empty and bytes are base64.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return fmt.Sprint(v)
}

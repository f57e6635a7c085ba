package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"mercator-hq/exporter/pkg/export"
)

// Envelope is the JSON representation of an exported record. The shape name
// lets readers pick the decoder.
type Envelope struct {
	Shape  string        `json:"shape"`
	Record export.Record `json:"record"`
}

// JSONSink writes exported records as a single JSON array.
type JSONSink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	pretty bool
	count  int
	closed bool
}

// NewJSONSink creates a JSON array sink over w. The sink owns w.
func NewJSONSink(w io.WriteCloser, pretty bool) *JSONSink {
	return &JSONSink{w: w, pretty: pretty}
}

// Write appends one record to the array.
func (s *JSONSink) Write(ctx context.Context, shape string, record export.Record) error {
	var (
		data []byte
		err  error
	)
	if s.pretty {
		data, err = json.MarshalIndent(Envelope{Shape: shape, Record: record}, "  ", "  ")
	} else {
		data, err = json.Marshal(Envelope{Shape: shape, Record: record})
	}
	if err != nil {
		return export.NewSinkError("json", shape, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return export.NewSinkError("json", shape, errClosed)
	}

	sep := ","
	if s.count == 0 {
		sep = "["
	}
	if s.pretty {
		sep += "\n  "
	}
	if _, err := io.WriteString(s.w, sep); err != nil {
		return export.NewSinkError("json", shape, err)
	}
	if _, err := s.w.Write(data); err != nil {
		return export.NewSinkError("json", shape, err)
	}
	s.count++
	return nil
}

// Close terminates the array and closes the underlying writer. An empty
// sink writes "[]".
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	tail := "]\n"
	switch {
	case s.count == 0:
		tail = "[]\n"
	case s.pretty:
		tail = "\n]\n"
	}
	if _, err := io.WriteString(s.w, tail); err != nil {
		s.w.Close()
		return export.NewSinkError("json", "", err)
	}
	return s.w.Close()
}

// JSONLSink writes one exported record per line.
type JSONLSink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	enc    *json.Encoder
	closed bool
}

// NewJSONLSink creates a JSON lines sink over w. The sink owns w.
func NewJSONLSink(w io.WriteCloser) *JSONLSink {
	return &JSONLSink{w: w, enc: json.NewEncoder(w)}
}

// Write appends one record line.
func (s *JSONLSink) Write(ctx context.Context, shape string, record export.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return export.NewSinkError("jsonl", shape, errClosed)
	}
	if err := s.enc.Encode(Envelope{Shape: shape, Record: record}); err != nil {
		return export.NewSinkError("jsonl", shape, err)
	}
	return nil
}

// Close closes the underlying writer.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}

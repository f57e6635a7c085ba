package export

import (
	"errors"
	"fmt"
)

// Error kinds as they appear in batch reports.
const (
	ErrorKindSchemaMismatch      = "schema_mismatch"
	ErrorKindFieldCoercion       = "field_coercion"
	ErrorKindReferenceResolution = "reference_resolution"
	ErrorKindSink                = "sink"
	ErrorKindStorage             = "storage"
	ErrorKindInternal            = "internal"
)

// SchemaMismatchError is returned when a raw record's kind has no registered
// shape.
type SchemaMismatchError struct {
	Kind Kind
}

// Error implements the error interface.
func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: no shape registered for kind %q", e.Kind)
}

// NewSchemaMismatchError creates a new SchemaMismatchError.
func NewSchemaMismatchError(kind Kind) *SchemaMismatchError {
	return &SchemaMismatchError{Kind: kind}
}

// FieldCoercionError is returned when a source value cannot be converted to
// the declared type of a field.
type FieldCoercionError struct {
	Shape string // Shape being built
	Field string // Dotted field path
	Value any    // Offending source value
	Cause error  // Why the value was rejected
}

// Error implements the error interface.
func (e *FieldCoercionError) Error() string {
	return fmt.Sprintf("field coercion error [shape=%s, field=%s, value=%v]: %v", e.Shape, e.Field, e.Value, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *FieldCoercionError) Unwrap() error {
	return e.Cause
}

// NewFieldCoercionError creates a new FieldCoercionError.
func NewFieldCoercionError(shape, field string, value any, cause error) *FieldCoercionError {
	return &FieldCoercionError{
		Shape: shape,
		Field: field,
		Value: value,
		Cause: cause,
	}
}

// ReferenceResolutionError is reported when a referenced object cannot be
// resolved while following references. It is a warning, the referencing
// record is not failed.
type ReferenceResolutionError struct {
	URN   string
	Cause error
}

// Error implements the error interface.
func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("reference resolution error [urn=%s]: %v", e.URN, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ReferenceResolutionError) Unwrap() error {
	return e.Cause
}

// NewReferenceResolutionError creates a new ReferenceResolutionError.
func NewReferenceResolutionError(urn string, cause error) *ReferenceResolutionError {
	return &ReferenceResolutionError{URN: urn, Cause: cause}
}

// StorageError represents an error from a record store backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory", etc.)
	Operation string // Operation that failed ("put", "query", "delete", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// SinkError represents a failure to deliver an exported record.
type SinkError struct {
	Sink  string // Sink type ("json", "csv", "sqlite", "amqp")
	Shape string // Shape of the record being written
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error [sink=%s, shape=%s]: %v", e.Sink, e.Shape, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SinkError) Unwrap() error {
	return e.Cause
}

// NewSinkError creates a new SinkError.
func NewSinkError(sink, shape string, cause error) *SinkError {
	return &SinkError{
		Sink:  sink,
		Shape: shape,
		Cause: cause,
	}
}

// QueryError represents an invalid record store query.
type QueryError struct {
	Field string // Query field that failed validation
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("query error [field=%s]: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(field string, cause error) *QueryError {
	return &QueryError{Field: field, Cause: cause}
}

// ErrNotFound is returned by resolvers and stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrorKind classifies err into the vocabulary used by batch reports.
func ErrorKind(err error) string {
	var (
		schemaErr   *SchemaMismatchError
		coercionErr *FieldCoercionError
		refErr      *ReferenceResolutionError
		sinkErr     *SinkError
		storageErr  *StorageError
	)
	var classified interface{ ErrorKind() string }
	switch {
	case errors.As(err, &classified):
		return classified.ErrorKind()
	case errors.As(err, &schemaErr):
		return ErrorKindSchemaMismatch
	case errors.As(err, &coercionErr):
		return ErrorKindFieldCoercion
	case errors.As(err, &refErr):
		return ErrorKindReferenceResolution
	case errors.As(err, &sinkErr):
		return ErrorKindSink
	case errors.As(err, &storageErr):
		return ErrorKindStorage
	default:
		return ErrorKindInternal
	}
}

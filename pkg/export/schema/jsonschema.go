package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"mercator-hq/exporter/pkg/export"

	"github.com/xeipuuv/gojsonschema"
)

const jsonSchemaDraft = "http://json-schema.org/draft-07/schema#"

// ValidationError lists the violations found when validating a record
// against its shape.
type ValidationError struct {
	Shape  string
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("record does not match shape %s: %s", e.Shape, strings.Join(e.Errors, "; "))
}

// ErrorKind reports a record outside its declared shape as a schema
// mismatch in batch reports.
func (e *ValidationError) ErrorKind() string {
	return export.ErrorKindSchemaMismatch
}

// JSONSchema returns a JSON Schema document describing the shape's JSON
// encoding. Objects do not allow additional properties, so a record that
// carries a field outside its shape fails validation.
func (s *Shape) JSONSchema() map[string]any {
	doc := objectSchema(s.Type)
	doc["$schema"] = jsonSchemaDraft
	doc["title"] = s.Name
	if s.Version > 0 {
		doc["description"] = fmt.Sprintf("%s (kind %s, version %d)", s.Name, s.Kind, s.Version)
	}
	if s.HasMetadata {
		doc["required"] = []string{"metadata"}
	}
	return doc
}

// Validate checks rec against the shape's JSON Schema.
func (s *Shape) Validate(rec export.Record) error {
	s.schemaOnce.Do(func() {
		s.schema, s.schemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.JSONSchema()))
	})
	if s.schemaErr != nil {
		return fmt.Errorf("compile schema for %s: %w", s.Name, s.schemaErr)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.Name, err)
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate %s: %w", s.Name, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Shape: s.Name}
	for _, re := range result.Errors() {
		verr.Errors = append(verr.Errors, re.String())
	}
	return verr
}

func objectSchema(t reflect.Type) map[string]any {
	props := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := jsonName(sf.Tag.Get("json"))
		if name == "" {
			continue
		}

		switch {
		case sf.Type.Implements(optionalType):
			opts, _ := parseTag(sf.Tag.Get(TagName))
			props[name] = leafSchema(sf.Type.Field(0).Type, opts.enum)
		case sf.Type.Kind() == reflect.Struct:
			props[name] = objectSchema(sf.Type)
		default:
			props[name] = leafSchema(sf.Type, nil)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if t == metadataType {
		doc["minProperties"] = 1
	}
	return doc
}

func leafSchema(t reflect.Type, enum []string) map[string]any {
	if t == timestampType {
		return map[string]any{"type": "integer"}
	}
	if t == bytesType {
		return map[string]any{"type": "string", "contentEncoding": "base64"}
	}

	switch t.Kind() {
	case reflect.String:
		s := map[string]any{"type": "string"}
		if len(enum) > 0 {
			s["enum"] = enum
		}
		return s
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"type": "integer"}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer", "minimum": 0}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{}
	}
}

package schema

import (
	"fmt"
	"reflect"
	"sync"

	"mercator-hq/exporter/pkg/export"

	"github.com/xeipuuv/gojsonschema"
)

// FieldType is the semantic type of a field.
type FieldType int

// Field types.
const (
	TypeString FieldType = iota
	TypeInt
	TypeUint
	TypeFloat
	TypeBool
	TypeBytes
	TypeTimestamp
	TypeNested
)

// String returns the type name.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeTimestamp:
		return "timestamp"
	case TypeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Field describes one variant field of a shape.
type Field struct {
	Name       string    // Column name (from the json tag)
	Source     string    // Dotted attribute path
	Index      int       // Struct field index
	Type       FieldType // Semantic type
	Unit       string    // Source unit for timestamps
	Join       bool      // List joined with the list delimiter
	Content    bool      // Gated by ExportFilesContents
	Hash       bool      // Gated by ExportFilesHashes
	Deprecated bool      // Never written
	Enum       []string  // Allowed values
	Conv       string    // Post-coercion transform
	Nested     *Shape    // Shape of a nested field
}

// Omission documents a source field a shape deliberately drops, usually
// because it is recursive and cannot be flattened.
type Omission struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Shape is the compiled description of an Exported* struct.
type Shape struct {
	Name        string
	Kind        export.Kind
	Version     int
	Type        reflect.Type
	HasMetadata bool
	Fields      []Field
	Omitted     []Omission

	columnsOnce sync.Once
	columns     []string

	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
}

var (
	metadataType  = reflect.TypeFor[export.ExportedMetadata]()
	timestampType = reflect.TypeFor[export.Timestamp]()
	optionalType  = reflect.TypeFor[export.Optional]()
	bytesType     = reflect.TypeFor[[]byte]()
)

// Compile builds a Shape from a struct type. Record shapes start with a
// Metadata field of type export.ExportedMetadata; nested groups such as
// network endpoints have no metadata.
func Compile(t reflect.Type) (*Shape, error) {
	return compile(t, map[reflect.Type]bool{})
}

func compile(t reflect.Type, stack map[reflect.Type]bool) (*Shape, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("shape must be a struct, got %s", t.Kind())
	}
	if stack[t] {
		return nil, fmt.Errorf("shape %s is recursive; declare the recursive field as an omission", t.Name())
	}
	stack[t] = true
	defer delete(stack, t)

	shape := &Shape{Name: t.Name(), Type: t}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		if sf.Type == metadataType {
			if i != 0 || sf.Name != "Metadata" {
				return nil, fmt.Errorf("%s: metadata must be the first field and named Metadata", t.Name())
			}
			shape.HasMetadata = true
			continue
		}

		name := jsonName(sf.Tag.Get("json"))
		if name == "" {
			return nil, fmt.Errorf("%s.%s: missing json name", t.Name(), sf.Name)
		}

		opts, err := parseTag(sf.Tag.Get(TagName))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}

		field := Field{
			Name:       name,
			Source:     opts.source,
			Index:      i,
			Unit:       opts.unit,
			Join:       opts.join,
			Content:    opts.content,
			Hash:       opts.hash,
			Deprecated: opts.deprecated,
			Enum:       opts.enum,
			Conv:       opts.conv,
		}
		if field.Source == "" {
			field.Source = name
		}

		if sf.Type.Implements(optionalType) {
			valType := sf.Type.Field(0).Type
			field.Type, err = leafType(valType)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
			}
		} else if sf.Type.Kind() == reflect.Struct {
			nested, err := compile(sf.Type, stack)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
			}
			field.Type = TypeNested
			field.Nested = nested
		} else {
			return nil, fmt.Errorf("%s.%s: field must be export.Opt or a nested struct, got %s", t.Name(), sf.Name, sf.Type)
		}

		if err := checkField(field); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}
		shape.Fields = append(shape.Fields, field)
	}

	return shape, nil
}

func leafType(t reflect.Type) (FieldType, error) {
	if t == timestampType {
		return TypeTimestamp, nil
	}
	if t == bytesType {
		return TypeBytes, nil
	}
	switch t.Kind() {
	case reflect.String:
		return TypeString, nil
	case reflect.Int64:
		return TypeInt, nil
	case reflect.Uint64:
		return TypeUint, nil
	case reflect.Float64:
		return TypeFloat, nil
	case reflect.Bool:
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("unsupported value type %s", t)
	}
}

func checkField(f Field) error {
	if f.Type == TypeTimestamp && f.Unit == "" {
		return fmt.Errorf("timestamp field %q must declare a unit", f.Name)
	}
	if f.Type != TypeTimestamp && f.Unit != "" {
		return fmt.Errorf("unit is only valid on timestamp fields")
	}
	if f.Join && f.Type != TypeString {
		return fmt.Errorf("join is only valid on string fields")
	}
	if len(f.Enum) > 0 && f.Type != TypeString {
		return fmt.Errorf("enum is only valid on string fields")
	}
	if f.Conv != "" && f.Type != TypeString {
		return fmt.Errorf("conv is only valid on string fields")
	}
	if f.Content && f.Type != TypeBytes && f.Type != TypeString {
		return fmt.Errorf("content is only valid on bytes or string fields")
	}
	if f.Type == TypeNested && (f.Join || f.Content || f.Hash || f.Deprecated || len(f.Enum) > 0 || f.Conv != "") {
		return fmt.Errorf("nested fields only accept src")
	}
	return nil
}

// Field returns the field with the given column name.
func (s *Shape) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the flattened column names of the shape: metadata columns
// first (prefixed "metadata."), then variant fields in declaration order.
// Nested fields are prefixed with their column name.
func (s *Shape) Columns() []string {
	s.columnsOnce.Do(func() {
		s.columns = columnsOf(s.Type, "")
	})
	return s.columns
}

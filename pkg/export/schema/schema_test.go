package schema

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"mercator-hq/exporter/pkg/export"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEndpoint struct {
	IP   export.Opt[string] `json:"ip,omitzero"`
	Port export.Opt[int64]  `json:"port,omitzero"`
}

type testWidget struct {
	Metadata export.ExportedMetadata       `json:"metadata"`
	Name     export.Opt[string]            `json:"name,omitzero" export:"src=meta.name,conv=basename"`
	Size     export.Opt[uint64]            `json:"size,omitzero"`
	Seen     export.Opt[export.Timestamp] `json:"seen,omitzero" export:"unit=s"`
	Tags     export.Opt[string]            `json:"tags,omitzero" export:"join"`
	State    export.Opt[string]            `json:"state,omitzero" export:"enum=ON|OFF"`
	Body     export.Opt[[]byte]            `json:"body,omitzero" export:"content"`
	SHA256   export.Opt[string]            `json:"sha256,omitzero" export:"src=hash.sha256,hash"`
	Legacy   export.Opt[string]            `json:"legacy,omitzero" export:"deprecated"`
	Remote   testEndpoint                  `json:"remote,omitzero"`
}

func (w testWidget) ExportMetadata() export.ExportedMetadata { return w.Metadata }

type testNoUnit struct {
	Metadata export.ExportedMetadata       `json:"metadata"`
	Seen     export.Opt[export.Timestamp] `json:"seen,omitzero"`
}

func (w testNoUnit) ExportMetadata() export.ExportedMetadata { return w.Metadata }

type testNoMetadata struct {
	Name export.Opt[string] `json:"name,omitzero"`
}

func (w testNoMetadata) ExportMetadata() export.ExportedMetadata { return export.ExportedMetadata{} }

type testBadJoin struct {
	Metadata export.ExportedMetadata `json:"metadata"`
	Count    export.Opt[int64]       `json:"count,omitzero" export:"join"`
}

func (w testBadJoin) ExportMetadata() export.ExportedMetadata { return w.Metadata }

type testPlainField struct {
	Metadata export.ExportedMetadata `json:"metadata"`
	Name     string                  `json:"name"`
}

func (w testPlainField) ExportMetadata() export.ExportedMetadata { return w.Metadata }

func TestCompile_Fields(t *testing.T) {
	shape, err := Compile(reflect.TypeFor[testWidget]())
	require.NoError(t, err)

	assert.Equal(t, "testWidget", shape.Name)
	assert.True(t, shape.HasMetadata)
	require.Len(t, shape.Fields, 9)

	name, ok := shape.Field("name")
	require.True(t, ok)
	assert.Equal(t, "meta.name", name.Source)
	assert.Equal(t, ConvBasename, name.Conv)
	assert.Equal(t, TypeString, name.Type)

	size, _ := shape.Field("size")
	assert.Equal(t, TypeUint, size.Type)
	assert.Equal(t, "size", size.Source)

	seen, _ := shape.Field("seen")
	assert.Equal(t, TypeTimestamp, seen.Type)
	assert.Equal(t, UnitSeconds, seen.Unit)

	state, _ := shape.Field("state")
	assert.Equal(t, []string{"ON", "OFF"}, state.Enum)

	body, _ := shape.Field("body")
	assert.True(t, body.Content)
	assert.Equal(t, TypeBytes, body.Type)

	sha, _ := shape.Field("sha256")
	assert.True(t, sha.Hash)

	legacy, _ := shape.Field("legacy")
	assert.True(t, legacy.Deprecated)

	remote, _ := shape.Field("remote")
	assert.Equal(t, TypeNested, remote.Type)
	require.NotNil(t, remote.Nested)
	assert.False(t, remote.Nested.HasMetadata)
	assert.Len(t, remote.Nested.Fields, 2)
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"timestamp without unit", reflect.TypeFor[testNoUnit](), "must declare a unit"},
		{"join on int", reflect.TypeFor[testBadJoin](), "join is only valid"},
		{"plain field", reflect.TypeFor[testPlainField](), "must be export.Opt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.typ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTag_Errors(t *testing.T) {
	for _, tag := range []string{"unit=h", "conv=upper", "bogus", "src=", "enum=", "join=yes", "content,hash"} {
		_, err := parseTag(tag)
		assert.Error(t, err, "tag %q", tag)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Widget", testWidget{}, 2, Omission{Path: "meta.children", Reason: "recursive"}))

	shape, err := reg.Lookup("Widget")
	require.NoError(t, err)
	assert.Equal(t, export.Kind("Widget"), shape.Kind)
	assert.Equal(t, 2, shape.Version)
	assert.Len(t, shape.Omitted, 1)

	byName, ok := reg.ShapeByName("testWidget")
	require.True(t, ok)
	assert.Same(t, shape, byName)

	viaRecord, ok := reg.ShapeOf(&testWidget{})
	require.True(t, ok)
	assert.Same(t, shape, viaRecord)

	assert.Equal(t, []export.Kind{"Widget"}, reg.Kinds())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_LookupUnknownKind(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Lookup("FooBarWidget")
	require.Error(t, err)

	var mismatch *export.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, export.Kind("FooBarWidget"), mismatch.Kind)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Widget", testWidget{}, 1))

	assert.Error(t, reg.Register("Widget", testWidget{}, 1), "duplicate kind")
	assert.Error(t, reg.Register("Other", testWidget{}, 1), "shape bound twice")
	assert.Error(t, reg.Register("NoMeta", testNoMetadata{}, 1), "missing metadata")
	assert.Error(t, reg.Register("Zero", testNoUnit{}, 0), "bad version")
	assert.Error(t, reg.Register(export.KindURN, testWidget{}, 1), "reference kind")
	assert.Error(t, reg.Register("Omit", testNoMetadata{}, 1, Omission{Path: "x"}), "omission without reason")
}

func TestShape_ColumnsAndFlatten(t *testing.T) {
	shape, err := Compile(reflect.TypeFor[testWidget]())
	require.NoError(t, err)

	cols := shape.Columns()
	assert.Contains(t, cols, "metadata.client_urn")
	assert.Contains(t, cols, "metadata.hardware_info.serial_number")
	assert.Contains(t, cols, "metadata.deprecated_session_id")
	assert.Contains(t, cols, "remote.ip")
	assert.Equal(t, "remote.port", cols[len(cols)-1])

	rec := &testWidget{
		Metadata: export.ExportedMetadata{ClientURN: "C.1", Timestamp: 42},
		Size:     export.Some[uint64](0),
		Remote:   testEndpoint{Port: export.Some[int64](443)},
	}
	values, err := shape.Flatten(rec)
	require.NoError(t, err)
	require.Len(t, values, len(cols))

	row := map[string]any{}
	for i, c := range cols {
		row[c] = values[i]
	}
	assert.Equal(t, "C.1", row["metadata.client_urn"])
	assert.Equal(t, int64(42), row["metadata.timestamp"])
	assert.Nil(t, row["metadata.hostname"])
	assert.Equal(t, uint64(0), row["size"], "present zero must not flatten to nil")
	assert.Nil(t, row["name"])
	assert.Equal(t, int64(443), row["remote.port"])
}

func TestShape_FlattenWrongType(t *testing.T) {
	shape, err := Compile(reflect.TypeFor[testWidget]())
	require.NoError(t, err)

	_, err = shape.Flatten(testNoUnit{})
	assert.Error(t, err)
}

func TestShape_Validate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Widget", testWidget{}, 1))
	shape, _ := reg.Lookup("Widget")

	valid := &testWidget{
		Metadata: export.ExportedMetadata{ClientURN: "C.1", Timestamp: 1},
		State:    export.Some("ON"),
		Size:     export.Some[uint64](3),
	}
	assert.NoError(t, shape.Validate(valid))

	badEnum := &testWidget{
		Metadata: export.ExportedMetadata{Timestamp: 1},
		State:    export.Some("MAYBE"),
	}
	err := shape.Validate(badEnum)
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotEmpty(t, verr.Errors)

	emptyMeta := &testWidget{}
	assert.Error(t, shape.Validate(emptyMeta), "metadata must not be empty")
}

func TestValidationError_ErrorKind(t *testing.T) {
	err := fmt.Errorf("write: %w", &ValidationError{Shape: "Widget", Errors: []string{"extra"}})
	assert.Equal(t, export.ErrorKindSchemaMismatch, export.ErrorKind(err))
}

func TestShape_JSONSchema(t *testing.T) {
	shape, err := Compile(reflect.TypeFor[testWidget]())
	require.NoError(t, err)

	doc := shape.JSONSchema()
	assert.Equal(t, false, doc["additionalProperties"])

	props := doc["properties"].(map[string]any)
	size := props["size"].(map[string]any)
	assert.Equal(t, "integer", size["type"])
	assert.Equal(t, 0, size["minimum"])

	remote := props["remote"].(map[string]any)
	assert.Equal(t, "object", remote["type"])
}

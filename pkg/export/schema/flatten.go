package schema

import (
	"fmt"
	"reflect"

	"mercator-hq/exporter/pkg/export"
)

// Flatten returns the record's values aligned with Columns. Absent optional
// values and empty metadata values are nil.
func (s *Shape) Flatten(rec export.Record) ([]any, error) {
	v := reflect.ValueOf(rec)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("flatten %s: nil record", s.Name)
		}
		v = v.Elem()
	}
	if v.Type() != s.Type {
		return nil, fmt.Errorf("flatten %s: record has type %s", s.Name, v.Type())
	}

	return flattenValue(v, make([]any, 0, len(s.Columns()))), nil
}

func columnsOf(t reflect.Type, prefix string) []string {
	var cols []string
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := jsonName(sf.Tag.Get("json"))
		if name == "" {
			continue
		}
		col := prefix + name
		if isLeaf(sf.Type) {
			cols = append(cols, col)
			continue
		}
		cols = append(cols, columnsOf(sf.Type, col+".")...)
	}
	return cols
}

func flattenValue(v reflect.Value, out []any) []any {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || jsonName(sf.Tag.Get("json")) == "" {
			continue
		}
		fv := v.Field(i)

		switch {
		case sf.Type.Implements(optionalType):
			val, ok := fv.Interface().(export.Optional).Interface()
			if !ok {
				out = append(out, nil)
				continue
			}
			out = append(out, plain(val))
		case sf.Type.Kind() == reflect.Struct:
			out = flattenValue(fv, out)
		default:
			if fv.IsZero() {
				out = append(out, nil)
				continue
			}
			out = append(out, plain(fv.Interface()))
		}
	}
	return out
}

func isLeaf(t reflect.Type) bool {
	return t.Implements(optionalType) || t.Kind() != reflect.Struct
}

func plain(v any) any {
	if ts, ok := v.(export.Timestamp); ok {
		return int64(ts)
	}
	return v
}

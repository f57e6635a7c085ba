package mapper

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/schema"
)

var (
	errExpectedObject = errors.New("expected an object")
	errNegative       = errors.New("negative value for unsigned field")
	errNotIntegral    = errors.New("value is not integral")
	errOverflow       = errors.New("value out of range")
)

// coerce converts a source value to the declared type of f.
func coerce(f schema.Field, v any) (reflect.Value, error) {
	switch f.Type {
	case schema.TypeString:
		s, err := coerceString(f, v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil
	case schema.TypeInt:
		n, err := toInt64(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n), nil
	case schema.TypeUint:
		n, err := toUint64(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n), nil
	case schema.TypeFloat:
		n, err := toFloat64(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n), nil
	case schema.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected a bool, got %T", v)
		}
		return reflect.ValueOf(b), nil
	case schema.TypeBytes:
		b, err := toBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case schema.TypeTimestamp:
		ts, err := toTimestamp(v, f.Unit)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(ts), nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported field type %s", f.Type)
	}
}

func coerceString(f schema.Field, v any) (string, error) {
	if f.Join {
		items, err := toStringList(v)
		if err != nil {
			return "", err
		}
		return export.JoinList(items)
	}

	s, err := toString(v)
	if err != nil {
		return "", err
	}

	switch f.Conv {
	case schema.ConvBasename:
		s = basename(s)
	case schema.ConvLower:
		s = strings.ToLower(s)
	}

	if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
		return "", fmt.Errorf("%q is not one of %s", s, strings.Join(f.Enum, "|"))
	}
	return s, nil
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case int32:
		return strconv.FormatInt(int64(s), 10), nil
	case uint64:
		return strconv.FormatUint(s, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(s), 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
}

func toStringList(v any) ([]string, error) {
	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, 0, len(l))
		for i, item := range l {
			s, err := toString(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{l}, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", n.String())
		}
		return floatToInt(f)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, nil
		}
	}

	// Everything else goes through the signed path; large unsigned values
	// were handled above.
	if f, ok := v.(float64); ok && f > math.MaxInt64 {
		if f != math.Trunc(f) || f >= math.MaxUint64 {
			return 0, errOverflow
		}
		return uint64(f), nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, errNegative
	}
	return uint64(i), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", n.String())
		}
		return f, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return float64(i), nil
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("expected bytes, got %T", v)
	}
}

func toTimestamp(v any, unit string) (export.Timestamp, error) {
	switch t := v.(type) {
	case time.Time:
		return export.TimestampOf(t), nil
	case export.Timestamp:
		return t, nil
	}

	var scale int64
	switch unit {
	case schema.UnitSeconds:
		scale = 1_000_000
	case schema.UnitMilliseconds:
		scale = 1_000
	case schema.UnitMicroseconds:
		scale = 1
	default:
		return 0, fmt.Errorf("unknown timestamp unit %q", unit)
	}

	n, err := toInt64(v)
	if err != nil {
		// Fractional seconds are common in stat output.
		f, ferr := toFloat64(v)
		if ferr != nil || !errors.Is(err, errNotIntegral) {
			return 0, err
		}
		us := f * float64(scale)
		if us > math.MaxInt64 || us < math.MinInt64 {
			return 0, errOverflow
		}
		return export.Timestamp(int64(us)), nil
	}

	if n > math.MaxInt64/scale || n < math.MinInt64/scale {
		return 0, errOverflow
	}
	return export.Timestamp(n * scale), nil
}

func uintToInt(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, errOverflow
	}
	return int64(u), nil
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errOverflow
	}
	if f != math.Trunc(f) {
		return 0, errNotIntegral
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, errOverflow
	}
	return int64(f), nil
}

// basename returns the last element of a slash or backslash separated path.
func basename(p string) string {
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

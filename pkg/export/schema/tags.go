package schema

import (
	"fmt"
	"strings"
)

// TagName is the struct tag holding export options.
//
// The exported column name comes from the json tag. The export tag holds
// comma-separated options:
//
//	src=a.b      dotted attribute path to read from (default: the column name)
//	unit=s|ms|us source unit of a timestamp field (required on timestamps)
//	join         join a list of strings with the list delimiter
//	content      populated only when file contents are exported
//	hash         populated only when file hashes are exported
//	deprecated   kept in the shape, never written
//	enum=A|B     allowed values of a string field
//	conv=NAME    transform applied after coercion (basename, lower)
const TagName = "export"

// Timestamp units.
const (
	UnitSeconds      = "s"
	UnitMilliseconds = "ms"
	UnitMicroseconds = "us"
)

// Supported conversions.
const (
	ConvBasename = "basename"
	ConvLower    = "lower"
)

type tagOptions struct {
	source     string
	unit       string
	join       bool
	content    bool
	hash       bool
	deprecated bool
	enum       []string
	conv       string
}

func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	if tag == "" {
		return opts, nil
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "src":
			if value == "" {
				return opts, fmt.Errorf("src requires a value")
			}
			opts.source = value
		case "unit":
			switch value {
			case UnitSeconds, UnitMilliseconds, UnitMicroseconds:
				opts.unit = value
			default:
				return opts, fmt.Errorf("unknown timestamp unit %q", value)
			}
		case "join":
			opts.join = true
		case "content":
			opts.content = true
		case "hash":
			opts.hash = true
		case "deprecated":
			opts.deprecated = true
		case "enum":
			if value == "" {
				return opts, fmt.Errorf("enum requires at least one value")
			}
			opts.enum = strings.Split(value, "|")
		case "conv":
			switch value {
			case ConvBasename, ConvLower:
				opts.conv = value
			default:
				return opts, fmt.Errorf("unknown conversion %q", value)
			}
		default:
			return opts, fmt.Errorf("unknown option %q", key)
		}

		if hasValue && (key == "join" || key == "content" || key == "hash" || key == "deprecated") {
			return opts, fmt.Errorf("option %q takes no value", key)
		}
	}

	if opts.content && opts.hash {
		return opts, fmt.Errorf("a field cannot be both content and hash")
	}

	return opts, nil
}

// jsonName returns the name from a json struct tag, or "" when the field is
// skipped.
func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

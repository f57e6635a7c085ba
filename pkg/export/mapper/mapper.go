package mapper

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Output is one exported record together with the name of its shape.
type Output struct {
	Shape  string
	Record export.Record
}

// Result is the outcome of mapping one raw record. A record maps to zero
// outputs (an unfollowed reference), one output, or several when references
// are followed. Warnings never fail the record.
type Result struct {
	Records  []Output
	Warnings []error
}

// Mapper turns raw records into exported records. It holds no mutable state
// and is safe for concurrent use.
type Mapper struct {
	registry *schema.Registry
	resolver export.Resolver
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithResolver sets the resolver used when following references.
func WithResolver(r export.Resolver) Option {
	return func(m *Mapper) {
		m.resolver = r
	}
}

// WithClock sets the clock that stamps metadata.timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// WithTracer sets the tracer used for reference lookups.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Mapper) {
		m.tracer = tracer
	}
}

// New creates a Mapper over the given registry.
func New(registry *schema.Registry, opts ...Option) *Mapper {
	m := &Mapper{
		registry: registry,
		now:      time.Now,
		logger:   slog.Default().With("component", "export.mapper"),
		tracer:   otel.Tracer("mercator-export/mapper"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registry the mapper resolves shapes from.
func (m *Mapper) Registry() *schema.Registry {
	return m.registry
}

// Map exports a single raw record.
//
// An unregistered kind returns a SchemaMismatchError and a value that cannot
// be coerced returns a FieldCoercionError. Both fail this record only.
// Problems while following references are returned as warnings in the
// result.
func (m *Mapper) Map(ctx context.Context, raw *export.RawRecord, opts export.Options) (*Result, error) {
	res := &Result{}
	if err := m.mapInto(ctx, raw, opts, res, 0, map[string]bool{}); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Mapper) mapInto(ctx context.Context, raw *export.RawRecord, opts export.Options, res *Result, depth int, visited map[string]bool) error {
	if raw.Kind == export.KindURN {
		if opts.FollowURNs {
			m.follow(ctx, raw, opts, res, depth, visited)
		}
		return nil
	}

	rec, shape, err := m.build(raw, opts)
	if err != nil {
		return err
	}
	res.Records = append(res.Records, Output{Shape: shape.Name, Record: rec})
	return nil
}

// build creates the exported record for a non-reference raw record.
func (m *Mapper) build(raw *export.RawRecord, opts export.Options) (export.Record, *schema.Shape, error) {
	shape, err := m.registry.Lookup(raw.Kind)
	if err != nil {
		return nil, nil, err
	}

	meta, err := m.metadata(raw, opts)
	if err != nil {
		return nil, nil, err
	}

	v := reflect.New(shape.Type)
	if err := fill(v.Elem(), shape, shape.Name, "", raw.Attributes, meta, opts); err != nil {
		return nil, nil, err
	}

	rec, ok := v.Interface().(export.Record)
	if !ok {
		return nil, nil, export.NewSchemaMismatchError(raw.Kind)
	}
	return rec, shape, nil
}

// fill populates v from attrs according to shape. Nested shapes receive a
// copy of the same metadata block.
func fill(v reflect.Value, shape *schema.Shape, root, prefix string, attrs map[string]any, meta export.ExportedMetadata, opts export.Options) error {
	if shape.HasMetadata {
		v.Field(0).Set(reflect.ValueOf(meta))
	}

	for _, f := range shape.Fields {
		if f.Deprecated {
			continue
		}
		if f.Content && !opts.ExportFilesContents {
			continue
		}
		if f.Hash && !opts.ExportFilesHashes {
			continue
		}

		src, ok := lookup(attrs, f.Source)
		if !ok || src == nil {
			continue
		}
		path := prefix + f.Name

		if f.Type == schema.TypeNested {
			sub, ok := asMap(src)
			if !ok {
				return export.NewFieldCoercionError(root, path, src, errExpectedObject)
			}
			if err := fill(v.Field(f.Index), f.Nested, root, path+".", sub, meta, opts); err != nil {
				return err
			}
			continue
		}

		val, err := coerce(f, src)
		if err != nil {
			return export.NewFieldCoercionError(root, path, src, err)
		}

		opt := v.Field(f.Index)
		opt.Field(0).Set(val.Convert(opt.Field(0).Type()))
		opt.Field(1).SetBool(true)
	}
	return nil
}

// lookup resolves a dotted attribute path. An exact key match wins over a
// nested walk so attributes whose names contain dots still resolve.
func lookup(attrs map[string]any, path string) (any, bool) {
	if v, ok := attrs[path]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	next, ok := attrs[head]
	if !ok {
		return nil, false
	}
	sub, ok := asMap(next)
	if !ok {
		return nil, false
	}
	return lookup(sub, rest)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"mercator-hq/exporter/pkg/export"
)

// Registry maps raw record kinds to their exported shapes. Lookups are safe
// for concurrent use; shapes are registered once at startup.
type Registry struct {
	mu     sync.RWMutex
	byKind map[export.Kind]*Shape
	byName map[string]*Shape
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[export.Kind]*Shape),
		byName: make(map[string]*Shape),
	}
}

// Register compiles the shape of proto and binds it to kind. Versions start
// at 1 and grow as optional fields are added to a shape.
func (r *Registry) Register(kind export.Kind, proto export.Record, version int, omitted ...Omission) error {
	if kind == "" {
		return fmt.Errorf("register: empty kind")
	}
	if kind == export.KindURN {
		return fmt.Errorf("register: kind %s is a reference and has no shape", kind)
	}
	if version < 1 {
		return fmt.Errorf("register %s: version must be >= 1, got %d", kind, version)
	}

	shape, err := Compile(reflect.TypeOf(proto))
	if err != nil {
		return fmt.Errorf("register %s: %w", kind, err)
	}
	if !shape.HasMetadata {
		return fmt.Errorf("register %s: shape %s has no Metadata field", kind, shape.Name)
	}
	for _, o := range omitted {
		if o.Path == "" || o.Reason == "" {
			return fmt.Errorf("register %s: omission needs a path and a reason", kind)
		}
	}
	shape.Kind = kind
	shape.Version = version
	shape.Omitted = omitted

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKind[kind]; ok {
		return fmt.Errorf("register %s: already bound to %s", kind, existing.Name)
	}
	if existing, ok := r.byName[shape.Name]; ok {
		return fmt.Errorf("register %s: shape %s already bound to kind %s", kind, shape.Name, existing.Kind)
	}

	r.byKind[kind] = shape
	r.byName[shape.Name] = shape
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind export.Kind, proto export.Record, version int, omitted ...Omission) {
	if err := r.Register(kind, proto, version, omitted...); err != nil {
		panic(err)
	}
}

// Lookup returns the shape bound to kind, or a SchemaMismatchError.
func (r *Registry) Lookup(kind export.Kind) (*Shape, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shape, ok := r.byKind[kind]
	if !ok {
		return nil, export.NewSchemaMismatchError(kind)
	}
	return shape, nil
}

// ShapeByName returns the shape with the given name (e.g. "ExportedFile").
func (r *Registry) ShapeByName(name string) (*Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shape, ok := r.byName[name]
	return shape, ok
}

// ShapeOf returns the shape of an exported record.
func (r *Registry) ShapeOf(rec export.Record) (*Shape, bool) {
	t := reflect.TypeOf(rec)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return r.ShapeByName(t.Name())
}

// Shapes returns all registered shapes sorted by name.
func (r *Registry) Shapes() []*Shape {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shapes := make([]*Shape, 0, len(r.byName))
	for _, s := range r.byName {
		shapes = append(shapes, s)
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].Name < shapes[j].Name })
	return shapes
}

// Kinds returns all registered kinds sorted by name.
func (r *Registry) Kinds() []export.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]export.Kind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Len returns the number of registered shapes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKind)
}

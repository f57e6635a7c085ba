package export

import (
	"bytes"
	"encoding/json"
)

// Opt is an explicitly optional value. A field whose Opt is not Present is
// absent from the exported record, which is different from a field that is
// present and carries the zero value of T.
//
// Opt fields are tagged `omitzero` so absent values are omitted from JSON.
type Opt[T any] struct {
	Val     T
	Present bool
}

// Optional is implemented by every Opt instantiation. It lets reflection-based
// code (flattening, schema generation) read an Opt without knowing T.
type Optional interface {
	IsZero() bool
	Interface() (any, bool)
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Val: v, Present: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.Val, o.Present
}

// Or returns the value if present, otherwise def.
func (o Opt[T]) Or(def T) T {
	if !o.Present {
		return def
	}
	return o.Val
}

// IsZero reports whether the value is absent. encoding/json uses it for
// `omitzero`.
func (o Opt[T]) IsZero() bool {
	return !o.Present
}

// Interface returns the value as any.
func (o Opt[T]) Interface() (any, bool) {
	return o.Val, o.Present
}

// MarshalJSON encodes an absent value as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

// UnmarshalJSON decodes null as absent and anything else as present.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Val = v
	o.Present = true
	return nil
}

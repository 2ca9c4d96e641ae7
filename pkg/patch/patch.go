// Package patch provides a tri-state optional value for partial updates.
//
// A Field distinguishes three request shapes for a single property:
//
//	{}              absent: keep the stored value
//	{"x": null}     null:   clear the stored value
//	{"x": 5}        set:    replace the stored value
package patch

// State of a Field.
type State uint8

const (
	Absent State = iota
	Null
	Set
)

// Field is a tri-state optional value. The zero value is Absent.
type Field[T any] struct {
	state State
	value T
}

// Value returns a Field set to v.
func Value[T any](v T) Field[T] {
	return Field[T]{state: Set, value: v}
}

// Nil returns a Field explicitly set to null.
func Nil[T any]() Field[T] {
	return Field[T]{state: Null}
}

// State reports the field state.
func (f Field[T]) State() State { return f.state }

// Present reports whether the field appeared in the request, as null or as a value.
func (f Field[T]) Present() bool { return f.state != Absent }

// IsNull reports whether the field was explicitly set to null.
func (f Field[T]) IsNull() bool { return f.state == Null }

// Get returns the value and whether it is set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == Set
}

// Apply merges the field into current: absent keeps current, null yields the
// zero value of T, set yields the new value.
func (f Field[T]) Apply(current T) T {
	switch f.state {
	case Set:
		return f.value
	case Null:
		var zero T
		return zero
	default:
		return current
	}
}

// ApplyPtr merges the field into a nullable current value: absent keeps
// current, null yields nil, set yields a pointer to the new value.
func (f Field[T]) ApplyPtr(current *T) *T {
	switch f.state {
	case Set:
		v := f.value
		return &v
	case Null:
		return nil
	default:
		return current
	}
}

package options

import "fmt"

// Optional holds a value that may be unset. The zero value is unset.
//
// An explicitly set zero is distinct from unset; callers must never encode
// "unset" as a reserved value of T.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an unset Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value if set, otherwise d.
func (o Optional[T]) OrElse(d T) T {
	if o.set {
		return o.value
	}
	return d
}

// Or returns o if set, otherwise other.
func (o Optional[T]) Or(other Optional[T]) Optional[T] {
	if o.set {
		return o
	}
	return other
}

func (o Optional[T]) String() string {
	if !o.set {
		return "unset"
	}
	return fmt.Sprint(o.value)
}

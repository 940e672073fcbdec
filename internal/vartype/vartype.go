// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

// Placeholder is the string representation of a Variable without a value.
const Placeholder = "-"

// VarString is a type alias for Variable[string], representing a string value with initialization tracking.
type VarString = Variable[string]

// Variable represents a generic type wrapper that holds a value and tracks its initialization state.
// An unset Variable is distinct from a Variable set to the zero value.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable creates and returns a new Variable instance initialized with the provided value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the value of the Variable and marks it as uninitialized.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Value retrieves the current value stored in the Variable.
func (v Variable[T]) Value() T {
	return v.value
}

// Set assigns the provided value to the Variable and marks it as initialized.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// IsSet returns true if the Variable has been initialized with a value, otherwise false.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// Or returns the value if set, otherwise the given fallback.
func (v Variable[T]) Or(fallback T) T {
	if !v.isset {
		return fallback
	}
	return v.value
}

// String returns a string representation of the Variable. If uninitialized, it returns the Placeholder.
func (v Variable[T]) String() string {
	if !v.isset {
		return Placeholder
	}
	return fmt.Sprint(v.value)
}

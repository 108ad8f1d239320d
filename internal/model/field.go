// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Field, the scalar-or-list value used for every resource
// parameter.
//
// Why not always use a slice?
//
// Most batches share one value across all targets, and the caller rarely
// knows the final target count: the stale subset is only known after the
// build tool has been consulted. A scalar therefore has to survive filtering
// unchanged, while a list has to shrink in lockstep with the targets.
package model

import "fmt"

// Field is either unset, a scalar applied to every target, or a list with
// exactly one value per target.
type Field[T any] struct {
	scalar T
	list   []T
	set    bool
	isList bool
}

// Unset returns a Field that yields no value for any target.
func Unset[T any]() Field[T] {
	return Field[T]{}
}

// Scalar returns a Field that yields v for every target.
func Scalar[T any](v T) Field[T] {
	return Field[T]{scalar: v, set: true}
}

// List returns a Field that yields vs[i] for target i.
func List[T any](vs ...T) Field[T] {
	cp := make([]T, len(vs))
	copy(cp, vs)
	return Field[T]{list: cp, set: true, isList: true}
}

// IsSet reports whether the field carries any value.
func (f Field[T]) IsSet() bool { return f.set }

// IsList reports whether the field is list-valued.
func (f Field[T]) IsList() bool { return f.isList }

// Len returns the list length, or -1 for unset and scalar fields.
func (f Field[T]) Len() int {
	if !f.isList {
		return -1
	}
	return len(f.list)
}

// At returns the value for target i and whether one exists.
func (f Field[T]) At(i int) (T, bool) {
	var zero T
	switch {
	case !f.set:
		return zero, false
	case !f.isList:
		return f.scalar, true
	case i < 0 || i >= len(f.list):
		return zero, false
	default:
		return f.list[i], true
	}
}

// Ptr is like At but returns nil when there is no value.
func (f Field[T]) Ptr(i int) *T {
	v, ok := f.At(i)
	if !ok {
		return nil
	}
	return &v
}

// Filter keeps the list entries whose keep flag is true. Unset and scalar
// fields are returned unchanged.
func (f Field[T]) Filter(keep []bool) Field[T] {
	if !f.isList {
		return f
	}
	out := make([]T, 0, len(f.list))
	for i, v := range f.list {
		if i < len(keep) && keep[i] {
			out = append(out, v)
		}
	}
	return Field[T]{list: out, set: true, isList: true}
}

// Or returns f when it is set, otherwise fallback.
func (f Field[T]) Or(fallback Field[T]) Field[T] {
	if f.set {
		return f
	}
	return fallback
}

// String renders the field for logs.
func (f Field[T]) String() string {
	switch {
	case !f.set:
		return "<unset>"
	case f.isList:
		return fmt.Sprintf("%v", f.list)
	default:
		return fmt.Sprintf("%v", f.scalar)
	}
}

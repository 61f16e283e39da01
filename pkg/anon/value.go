// Package anon models the cells and counts returned by an anonymizing query
// backend and decodes its wire rows.
package anon

import "fmt"

// Kind tags which of the three states an anonymized cell is in.
type Kind uint8

const (
	KindNull Kind = iota
	KindSuppressed
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindSuppressed:
		return "suppressed"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single anonymized cell: a value, NULL, or SUPPRESSED.
// The zero Value is Null.
type Value[T any] struct {
	kind Kind
	data T
}

// Data wraps v as a present value.
func Data[T any](v T) Value[T] {
	return Value[T]{kind: KindData, data: v}
}

// Null returns the NULL cell.
func Null[T any]() Value[T] {
	return Value[T]{kind: KindNull}
}

// Suppressed returns the SUPPRESSED cell.
func Suppressed[T any]() Value[T] {
	return Value[T]{kind: KindSuppressed}
}

func (v Value[T]) Kind() Kind         { return v.kind }
func (v Value[T]) HasValue() bool     { return v.kind == KindData }
func (v Value[T]) IsNull() bool       { return v.kind == KindNull }
func (v Value[T]) IsSuppressed() bool { return v.kind == KindSuppressed }

// Get returns the payload and whether the cell holds one.
func (v Value[T]) Get() (T, bool) {
	return v.data, v.kind == KindData
}

// MustGet returns the payload or panics for Null/Suppressed cells.
func (v Value[T]) MustGet() T {
	if v.kind != KindData {
		panic(fmt.Sprintf("anon: MustGet on %s value", v.kind))
	}
	return v.data
}

// Or returns the payload, or fallback when the cell is Null or Suppressed.
func (v Value[T]) Or(fallback T) T {
	if v.kind == KindData {
		return v.data
	}
	return fallback
}

// Match calls exactly one of the handlers according to the cell's state.
func (v Value[T]) Match(onData func(T), onNull func(), onSuppressed func()) {
	switch v.kind {
	case KindData:
		onData(v.data)
	case KindSuppressed:
		onSuppressed()
	default:
		onNull()
	}
}

func (v Value[T]) String() string {
	switch v.kind {
	case KindData:
		return fmt.Sprint(v.data)
	case KindSuppressed:
		return "*"
	default:
		return "NULL"
	}
}

// Map converts the payload of a Data cell, keeping Null and Suppressed as is.
func Map[T, U any](v Value[T], fn func(T) U) Value[U] {
	if v.kind == KindData {
		return Data(fn(v.data))
	}
	return Value[U]{kind: v.kind}
}

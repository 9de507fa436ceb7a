package docstore

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Update sets one field. Field may be a dotted path into nested objects.
// Value is either a plain value or a Transform.
type Update struct {
	Field string
	Value any
}

type transformKind int

const (
	arrayUnion transformKind = iota + 1
	arrayRemove
	increment
	serverTimestamp
	deleteField
)

// Transform is a field operation evaluated against the stored value at
// commit time, so concurrent writers cannot lose each other's changes.
type Transform struct {
	kind   transformKind
	values []any
	delta  float64
}

// ArrayUnion adds each value not already present to the array field.
func ArrayUnion(values ...any) Transform {
	return Transform{kind: arrayUnion, values: values}
}

// ArrayRemove removes every occurrence of each value from the array field.
func ArrayRemove(values ...any) Transform {
	return Transform{kind: arrayRemove, values: values}
}

// Increment adds delta to the numeric field (missing counts as zero).
func Increment(delta float64) Transform {
	return Transform{kind: increment, delta: delta}
}

var (
	// ServerTimestamp sets the field to the store's commit time.
	ServerTimestamp = Transform{kind: serverTimestamp}

	// DeleteField removes the field.
	DeleteField = Transform{kind: deleteField}
)

// Apply applies updates to data in order. now is the commit time used
// for ServerTimestamp.
func Apply(data map[string]any, updates []Update, now time.Time) error {
	for _, u := range updates {
		if u.Field == "" {
			return fmt.Errorf("update has empty field path")
		}
		t, ok := u.Value.(Transform)
		if !ok {
			v, err := normalize(u.Value)
			if err != nil {
				return fmt.Errorf("field %s: %w", u.Field, err)
			}
			setField(data, u.Field, v)
			continue
		}

		current, exists := getField(data, u.Field)
		switch t.kind {
		case deleteField:
			removeField(data, u.Field)
		case serverTimestamp:
			setField(data, u.Field, FormatTime(now))
		case increment:
			var base float64
			if exists {
				n, ok := current.(float64)
				if !ok {
					return fmt.Errorf("field %s is not numeric", u.Field)
				}
				base = n
			}
			setField(data, u.Field, base+t.delta)
		case arrayUnion, arrayRemove:
			var arr []any
			if exists {
				a, ok := current.([]any)
				if !ok {
					return fmt.Errorf("field %s is not an array", u.Field)
				}
				arr = a
			}
			values := make([]any, len(t.values))
			for i, v := range t.values {
				n, err := normalize(v)
				if err != nil {
					return fmt.Errorf("field %s: %w", u.Field, err)
				}
				values[i] = n
			}
			if t.kind == arrayUnion {
				arr = union(arr, values)
			} else {
				arr = without(arr, values)
			}
			setField(data, u.Field, arr)
		default:
			return fmt.Errorf("field %s: unknown transform", u.Field)
		}
	}
	return nil
}

func union(arr, values []any) []any {
	out := append([]any{}, arr...)
	for _, v := range values {
		if indexOf(out, v) < 0 {
			out = append(out, v)
		}
	}
	return out
}

func without(arr, values []any) []any {
	out := make([]any, 0, len(arr))
	for _, a := range arr {
		if indexOf(values, a) < 0 {
			out = append(out, a)
		}
	}
	return out
}

func indexOf(arr []any, v any) int {
	for i, a := range arr {
		if reflect.DeepEqual(a, v) {
			return i
		}
	}
	return -1
}

func getField(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setField writes v at path, creating intermediate objects and replacing
// non-object intermediates.
func setField(data map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	m := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func removeField(data map[string]any, path string) {
	parts := strings.Split(path, ".")
	m := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

type preconditionKind int

const (
	contains preconditionKind = iota + 1
	notContains
	equals
)

// Precondition guards a write; if it does not hold on the stored
// document the write fails with ErrPreconditionFailed.
type Precondition struct {
	kind  preconditionKind
	field string
	value any
}

// Contains holds when the array field contains v.
func Contains(field string, v any) Precondition {
	return Precondition{kind: contains, field: field, value: v}
}

// NotContains holds when the array field is missing or does not contain v.
func NotContains(field string, v any) Precondition {
	return Precondition{kind: notContains, field: field, value: v}
}

// Equals holds when the field equals v.
func Equals(field string, v any) Precondition {
	return Precondition{kind: equals, field: field, value: v}
}

// Check evaluates preconditions against data.
func Check(data map[string]any, preconditions []Precondition) error {
	for _, p := range preconditions {
		want, err := normalize(p.value)
		if err != nil {
			return fmt.Errorf("precondition on %s: %w", p.field, err)
		}
		current, exists := getField(data, p.field)
		arr, _ := current.([]any)

		var ok bool
		switch p.kind {
		case contains:
			ok = indexOf(arr, want) >= 0
		case notContains:
			ok = indexOf(arr, want) < 0
		case equals:
			ok = exists && compareValues(current, want) == 0
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, p.field)
		}
	}
	return nil
}

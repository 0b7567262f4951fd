// Package dbid canonicalizes heterogeneous identifier representations.
//
// Stored records may carry their identity as a raw hex string, as a native
// ObjectID, or as an embedded document exposing an id field. Everything in the
// toolkit that compares identities (restriction checks, filter compilation,
// companion lookups) goes through this package instead of comparing raw values.
package dbid

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Identifiable is implemented by values that can surface their own identifier.
type Identifiable interface {
	DocumentID() interface{}
}

// IsIDString reports whether s is a valid hex-encoded ObjectID.
func IsIDString(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// String normalizes v to its comparable string form.
// Accepts raw strings, ObjectIDs, Identifiable values and documents carrying
// an "_id" or "id" entry. Nil normalizes to the empty string.
func String(v interface{}) (string, error) {
	switch typed := v.(type) {
	case nil:
		return "", nil
	case string:
		return typed, nil
	case primitive.ObjectID:
		return typed.Hex(), nil
	case *primitive.ObjectID:
		if typed == nil {
			return "", nil
		}
		return typed.Hex(), nil
	case Identifiable:
		return String(typed.DocumentID())
	}

	if id, ok := embeddedID(v); ok {
		return String(id)
	}
	return "", fmt.Errorf("cannot normalize identifier from %T", v)
}

// ObjectID normalizes v to a native ObjectID.
func ObjectID(v interface{}) (primitive.ObjectID, error) {
	switch typed := v.(type) {
	case primitive.ObjectID:
		return typed, nil
	case *primitive.ObjectID:
		if typed == nil {
			return primitive.NilObjectID, fmt.Errorf("nil object id pointer")
		}
		return *typed, nil
	case string:
		oid, err := primitive.ObjectIDFromHex(typed)
		if err != nil {
			return primitive.NilObjectID, fmt.Errorf("invalid identifier string %q: %w", typed, err)
		}
		return oid, nil
	case Identifiable:
		return ObjectID(typed.DocumentID())
	}

	if id, ok := embeddedID(v); ok {
		return ObjectID(id)
	}
	return primitive.NilObjectID, fmt.Errorf("cannot normalize identifier from %T", v)
}

// Value returns the best native form of v: an ObjectID when v is (or contains)
// an ObjectID-shaped value, otherwise v unchanged. Used by the filter compiler
// when a comparison value must match a natively typed field.
func Value(v interface{}) interface{} {
	if oid, err := ObjectID(v); err == nil {
		return oid
	}
	return v
}

// Strings normalizes a slice of identifier representations. With unique set,
// duplicates (after normalization) are dropped while preserving order.
func Strings(values []interface{}, unique bool) ([]string, error) {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		s, err := String(v)
		if err != nil {
			return nil, err
		}
		if unique {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
		}
		out = append(out, s)
	}
	return out, nil
}

// ObjectIDs normalizes a slice of identifier representations to native IDs.
func ObjectIDs(values []interface{}, unique bool) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(values))
	seen := make(map[primitive.ObjectID]struct{}, len(values))
	for _, v := range values {
		oid, err := ObjectID(v)
		if err != nil {
			return nil, err
		}
		if unique {
			if _, ok := seen[oid]; ok {
				continue
			}
			seen[oid] = struct{}{}
		}
		out = append(out, oid)
	}
	return out, nil
}

// Equal reports whether a and b name the same record, regardless of how each
// side represents the identifier. Values that cannot be normalized are never
// equal to anything.
func Equal(a, b interface{}) bool {
	sa, err := String(a)
	if err != nil || sa == "" {
		return false
	}
	sb, err := String(b)
	if err != nil {
		return false
	}
	return sa == sb
}

// Contains reports whether candidate is a member of pool under Equal
// semantics. Pool may be a slice/array of identifier representations or a
// single value.
func Contains(pool, candidate interface{}) bool {
	if pool == nil {
		return false
	}
	rv := reflect.ValueOf(pool)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), candidate) {
				return true
			}
		}
		return false
	}
	return Equal(pool, candidate)
}

// embeddedID extracts the id entry from document-shaped values.
func embeddedID(v interface{}) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	for _, key := range []string{"_id", "id"} {
		entry := rv.MapIndex(reflect.ValueOf(key))
		if entry.IsValid() && !entry.IsZero() {
			return entry.Interface(), true
		}
	}
	return nil, false
}

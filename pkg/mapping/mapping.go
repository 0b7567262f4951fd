// Package mapping provides the cloning and materialization helpers shared by
// the CRUD orchestrator and the restriction engine: deep copies that keep
// caller-owned data immutable, patch merging that never clears fields through
// absent keys, and typed materialization of raw backend documents.
package mapping

import (
	"fmt"

	"github.com/mohae/deepcopy"
	"go.mongodb.org/mongo-driver/bson"
)

// Mappable is the capability interface for result types that materialize
// themselves from a raw backend document. Types that do not implement it are
// materialized through a bson round trip instead.
type Mappable interface {
	FromDocument(doc map[string]interface{}) error
}

// ToDocument converts any document-shaped value (struct, map, bson.M) into
// the canonical map form the restriction engine operates on.
func ToDocument(v interface{}) (map[string]interface{}, error) {
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return typed, nil
	case bson.M:
		return map[string]interface{}(typed), nil
	}

	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to document: %w", v, err)
	}
	out := map[string]interface{}{}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cannot decode %T document: %w", v, err)
	}
	return out, nil
}

// MapTo materializes a typed result value from a raw backend document.
// A *T implementing Mappable is given the document directly; anything else
// goes through a bson round trip driven by the target's struct tags.
func MapTo[T any](source interface{}) (*T, error) {
	out := new(T)

	if mappable, ok := any(out).(Mappable); ok {
		doc, err := ToDocument(source)
		if err != nil {
			return nil, err
		}
		if err := mappable.FromDocument(doc); err != nil {
			return nil, err
		}
		return out, nil
	}

	raw, err := bson.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("cannot map %T: %w", source, err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("cannot map %T into %T: %w", source, out, err)
	}
	return out, nil
}

// Clone returns a deep copy of v. The orchestrator clones before preparing
// and the engine clones implicitly by rebuilding; callers keep ownership of
// whatever they pass in.
func Clone(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	return deepcopy.Copy(v)
}

// Merge lays patch over base into a fresh map. Nil patch values are skipped:
// an absent or null key in a patch must never clear an existing value.
func Merge(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range patch {
		if value == nil {
			continue
		}
		out[key] = value
	}
	return out
}

// StripNil returns a copy of doc without nil-valued entries, so an insert
// cannot persist accidental field clears.
func StripNil(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		if value == nil {
			continue
		}
		out[key] = value
	}
	return out
}

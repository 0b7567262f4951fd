package mapping

import (
	"fmt"
	"reflect"
	"testing"
)

type account struct {
	Name  string `bson:"name"`
	Email string `bson:"email"`
	Age   int    `bson:"age"`
}

type customAccount struct {
	Label string
}

func (c *customAccount) FromDocument(doc map[string]interface{}) error {
	name, ok := doc["name"].(string)
	if !ok {
		return fmt.Errorf("name missing")
	}
	c.Label = "acct:" + name
	return nil
}

func TestToDocument(t *testing.T) {
	doc, err := ToDocument(account{Name: "alice", Email: "a@example.com", Age: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["name"] != "alice" || doc["email"] != "a@example.com" {
		t.Fatalf("doc = %#v", doc)
	}

	// Maps pass through without copying.
	m := map[string]interface{}{"x": 1}
	got, err := ToDocument(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("map should pass through")
	}

	if doc, err := ToDocument(nil); err != nil || doc != nil {
		t.Fatalf("nil should produce nil document")
	}
}

func TestMapTo_BsonRoundTrip(t *testing.T) {
	source := map[string]interface{}{"name": "alice", "email": "a@example.com", "age": 30}
	got, err := MapTo[account](source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "alice" || got.Email != "a@example.com" || got.Age != 30 {
		t.Fatalf("mapped = %+v", got)
	}
}

func TestMapTo_MappableTakesPrecedence(t *testing.T) {
	got, err := MapTo[customAccount](map[string]interface{}{"name": "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != "acct:alice" {
		t.Fatalf("mappable not used: %+v", got)
	}

	if _, err := MapTo[customAccount](map[string]interface{}{}); err == nil {
		t.Fatalf("mappable errors must propagate")
	}
}

func TestClone_DoesNotShareMemory(t *testing.T) {
	original := map[string]interface{}{
		"nested": map[string]interface{}{"value": 1},
	}
	cloned := Clone(original).(map[string]interface{})
	cloned["nested"].(map[string]interface{})["value"] = 2

	if original["nested"].(map[string]interface{})["value"] != 1 {
		t.Fatalf("clone must not share nested maps with the original")
	}

	if Clone(nil) != nil {
		t.Fatalf("clone of nil is nil")
	}
}

func TestMerge(t *testing.T) {
	base := map[string]interface{}{"name": "alice", "email": "a@example.com"}
	patch := map[string]interface{}{"email": "new@example.com", "name": nil, "age": 31}

	got := Merge(base, patch)

	if got["email"] != "new@example.com" {
		t.Fatalf("patch value should win")
	}
	if got["name"] != "alice" {
		t.Fatalf("nil patch key must never clear an existing value")
	}
	if got["age"] != 31 {
		t.Fatalf("new keys should be added")
	}
	if base["email"] != "a@example.com" {
		t.Fatalf("merge must not mutate the base map")
	}
}

func TestStripNil(t *testing.T) {
	got := StripNil(map[string]interface{}{"a": 1, "b": nil, "c": ""})
	if _, ok := got["b"]; ok {
		t.Fatalf("nil entries should be stripped")
	}
	if got["a"] != 1 || got["c"] != "" {
		t.Fatalf("non-nil entries should survive, got %#v", got)
	}
}

package restriction

import (
	"fmt"
	"sync"
)

type registryKey struct {
	typeName string
	property string
}

// Registry maps (type, property) pairs to their rule sets. It is populated by
// explicit registration calls at startup, frozen, and then read concurrently
// without further synchronization concerns. Property "" addresses the
// class-level rule set.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	rules  map[registryKey][]Rule
	// refs records which registered type an embedded property resolves to,
	// so the engine can descend with the right rule namespace.
	refs map[registryKey]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[registryKey][]Rule),
		refs:  make(map[registryKey]string),
	}
}

// Register attaches rules to a type (property "") or to a named property.
// Repeated calls for the same key are additive. Registering after Freeze
// panics: the registry is read-only once the process is serving.
func (r *Registry) Register(typeName, property string, rules ...Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("restriction: Register(%q, %q) after Freeze", typeName, property))
	}
	key := registryKey{typeName: typeName, property: property}
	r.rules[key] = append(r.rules[key], rules...)
}

// RegisterReference declares that a property embeds an object of another
// registered type, letting the engine apply that type's rules on descent.
func (r *Registry) RegisterReference(typeName, property, targetType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("restriction: RegisterReference(%q, %q) after Freeze", typeName, property))
	}
	r.refs[registryKey{typeName: typeName, property: property}] = targetType
}

// Freeze marks the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// ClassRules returns the class-level rule set for a type.
func (r *Registry) ClassRules(typeName string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules[registryKey{typeName: typeName}]...)
}

// PropertyRules returns the rule set attached directly to a property.
func (r *Registry) PropertyRules(typeName, property string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules[registryKey{typeName: typeName, property: property}]...)
}

// MergedRules returns the property rule set merged with the class-level set,
// deduplicated. With merge disabled only the property set is returned.
func (r *Registry) MergedRules(typeName, property string, merge bool) []Rule {
	propRules := r.PropertyRules(typeName, property)
	if !merge {
		return propRules
	}
	classRules := r.ClassRules(typeName)
	if len(classRules) == 0 {
		return propRules
	}
	return dedupRules(append(propRules, classRules...))
}

// Reference resolves the registered target type of an embedded property.
// Empty means the property descends without a rule namespace.
func (r *Registry) Reference(typeName, property string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs[registryKey{typeName: typeName, property: property}]
}

package restriction

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/crudcore/crudcore/pkg/apperror"
	"github.com/crudcore/crudcore/pkg/dbid"
	"github.com/crudcore/crudcore/pkg/observability/logger"
)

// User is the current-user context consulted during rule evaluation.
// A nil User means anonymous.
type User interface {
	UserID() string
	UserRoles() []string
}

// Context configures one enforcement walk. It is exclusively owned by the
// call that created it; construct a fresh one per Enforce invocation.
type Context struct {
	User      User
	Direction ProcessType
	// ThrowOnViolation rejects the whole value on the first violation
	// instead of redacting the offending property.
	ThrowOnViolation bool
	// CheckRoot evaluates the root object's own class-level rule set before
	// walking its properties.
	CheckRoot bool
	// MergeRules merges class-level rules into every property rule set.
	MergeRules bool
	// FilterRejected drops redacted elements from arrays instead of leaving
	// nil holes. Only relevant in non-throwing mode.
	FilterRejected bool
	// DBObject is the companion record whose properties feed memberOf rules,
	// typically the pre-fetched existing record during update/delete.
	DBObject interface{}
	// TypeName is the registry namespace of the root value.
	TypeName string
}

// InputContext returns the conventional context for input checking: INPUT
// direction violations are privilege-escalation attempts, so they throw.
func InputContext(user User, typeName string) Context {
	return Context{
		User:             user,
		Direction:        ProcessInput,
		ThrowOnViolation: true,
		MergeRules:       true,
		FilterRejected:   true,
		TypeName:         typeName,
	}
}

// OutputContext returns the conventional context for output checking:
// over-fetch and redact, never fail the whole response for one hidden field.
func OutputContext(user User, typeName string) Context {
	return Context{
		User:           user,
		Direction:      ProcessOutput,
		MergeRules:     true,
		FilterRejected: true,
		TypeName:       typeName,
	}
}

// Engine walks arbitrary document graphs and enforces registry rules.
// Stateless across calls; all per-walk state lives on the stack.
type Engine struct {
	registry *Registry
	log      logger.Logger
}

// NewEngine creates an Engine over a registry.
func NewEngine(registry *Registry, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Noop{}
	}
	return &Engine{registry: registry, log: log}
}

// walkState is scoped to a single Enforce call and never shared.
type walkState struct {
	// visited guards against cyclic graphs by reference identity.
	visited map[uintptr]struct{}
}

// Enforce returns a copy of value with every property the user may not
// access removed (non-throwing mode) or fails with an unauthorized error on
// the first violation (throwing mode). Primitives and unknown shapes pass
// through unchanged; maps and slices are walked recursively with cycle
// protection.
func (e *Engine) Enforce(value interface{}, ctx Context) (interface{}, error) {
	if ctx.Direction == ProcessBoth {
		ctx.Direction = ProcessOutput
	}
	state := &walkState{visited: make(map[uintptr]struct{})}

	// An input patch usually carries no audit fields of its own; the
	// companion record decides creator-ship for the root level then.
	rootCreated := false
	if companion, ok := asDoc(ctx.DBObject); ok {
		if raw, present := companion["createdBy"]; present {
			rootCreated = ctx.User != nil && dbid.Equal(raw, ctx.User.UserID())
		}
	}

	return e.enforce(value, ctx, state, ctx.TypeName, rootCreated, ctx.CheckRoot)
}

// Allowed reports whether the user in ctx passes the class-level rule set of
// typeName for the given record. Used for record-level authorization on
// update/delete, where no property walk is wanted.
func (e *Engine) Allowed(typeName string, doc map[string]interface{}, ctx Context) bool {
	if ctx.Direction == ProcessBoth {
		ctx.Direction = ProcessOutput
	}
	isCreator := false
	if raw, present := doc["createdBy"]; present {
		isCreator = ctx.User != nil && dbid.Equal(raw, ctx.User.UserID())
	}
	return e.rulesPass(e.registry.ClassRules(typeName), ctx, doc, isCreator)
}

func (e *Engine) enforce(
	value interface{},
	ctx Context,
	state *walkState,
	typeName string,
	parentCreated bool,
	checkClass bool,
) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func:
		return value, nil

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			if _, seen := state.visited[rv.Pointer()]; seen {
				return value, nil
			}
			state.visited[rv.Pointer()] = struct{}{}
		}
		out := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := e.enforce(rv.Index(i).Interface(), ctx, state, typeName, parentCreated, checkClass)
			if err != nil {
				return nil, err
			}
			if elem == nil && ctx.FilterRejected && !ctx.ThrowOnViolation {
				continue
			}
			out = append(out, elem)
		}
		return out, nil

	case reflect.Map:
		doc, ok := asDoc(value)
		if !ok {
			return value, nil
		}
		if _, seen := state.visited[rv.Pointer()]; seen {
			// Already processed on this walk: the graph is cyclic.
			return value, nil
		}
		state.visited[rv.Pointer()] = struct{}{}
		return e.enforceDoc(doc, ctx, state, typeName, parentCreated, checkClass)

	default:
		return value, nil
	}
}

func (e *Engine) enforceDoc(
	doc map[string]interface{},
	ctx Context,
	state *walkState,
	typeName string,
	parentCreated bool,
	checkClass bool,
) (interface{}, error) {
	// Creator state for this level: an explicit createdBy decides it; an
	// object without its own audit field inherits the nearest ancestor's.
	isCreator := parentCreated
	if raw, present := doc["createdBy"]; present {
		isCreator = ctx.User != nil && dbid.Equal(raw, ctx.User.UserID())
	}

	if checkClass && typeName != "" {
		if !e.rulesPass(e.registry.ClassRules(typeName), ctx, doc, isCreator) {
			if ctx.ThrowOnViolation {
				return nil, apperror.NewUnauthorized(fmt.Sprintf("access to %s denied", typeName))
			}
			e.log.Debug("redacted restricted object", "type", typeName)
			return nil, nil
		}
	}

	out := make(map[string]interface{}, len(doc))
	for key, propValue := range doc {
		rules := e.registry.MergedRules(typeName, key, ctx.MergeRules)
		if !e.rulesPass(rules, ctx, doc, isCreator) {
			if ctx.ThrowOnViolation {
				return nil, apperror.NewUnauthorized(
					fmt.Sprintf("access to property %q of %s denied", key, displayType(typeName)))
			}
			e.log.Debug("redacted restricted property", "type", typeName, "property", key)
			continue
		}

		childType := e.registry.Reference(typeName, key)
		child, err := e.enforce(propValue, ctx, state, childType, isCreator, false)
		if err != nil {
			return nil, err
		}
		out[key] = child
	}
	return out, nil
}

// rulesPass evaluates a rule set against the current context. The set passes
// when any applicable rule passes; "no one" fails unconditionally before any
// other check runs.
func (e *Engine) rulesPass(rules []Rule, ctx Context, doc map[string]interface{}, isCreator bool) bool {
	if len(rules) == 0 {
		return true
	}

	var roles []string
	var members []string
	for _, rule := range rules {
		if !rule.appliesTo(ctx.Direction) {
			continue
		}
		roles = append(roles, rule.Roles...)
		members = append(members, rule.MemberOf...)
	}
	// Rules exist but none applies to this direction: unrestricted here.
	if len(roles) == 0 && len(members) == 0 {
		return true
	}

	for _, role := range roles {
		if role == RoleNoOne {
			return false
		}
	}

	var uid string
	var userRoles []string
	if ctx.User != nil {
		uid = ctx.User.UserID()
		userRoles = ctx.User.UserRoles()
	}

	for _, role := range roles {
		switch role {
		case RoleEveryone:
			return true
		case RoleAuthenticated:
			if ctx.User != nil {
				return true
			}
		case RoleSelf:
			if uid != "" && dbid.Equal(doc, uid) {
				return true
			}
		case RoleCreator:
			if uid != "" && isCreator {
				return true
			}
		default:
			for _, held := range userRoles {
				if held == role {
					return true
				}
			}
		}
	}

	if uid != "" {
		for _, member := range members {
			if dbid.Contains(companionValue(ctx.DBObject, member), uid) {
				return true
			}
		}
	}

	return false
}

func companionValue(dbObject interface{}, property string) interface{} {
	if dbObject == nil {
		return nil
	}
	if doc, ok := asDoc(dbObject); ok {
		return doc[property]
	}
	rv := reflect.ValueOf(dbObject)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		entry := rv.MapIndex(reflect.ValueOf(property))
		if entry.IsValid() {
			return entry.Interface()
		}
	}
	return nil
}

func asDoc(v interface{}) (map[string]interface{}, bool) {
	switch typed := v.(type) {
	case map[string]interface{}:
		return typed, true
	case bson.M:
		return map[string]interface{}(typed), true
	default:
		return nil, false
	}
}

func displayType(typeName string) string {
	if typeName == "" {
		return "object"
	}
	return typeName
}

// Package restriction implements declarative, per-field access control for
// document graphs: a process-wide rule registry populated at startup and a
// recursive enforcement engine that redacts or rejects fields the current
// user may not read or write.
package restriction

import (
	"sort"
	"strings"
)

// ProcessType scopes a rule to one processing direction. The zero value
// applies to both directions.
type ProcessType string

const (
	ProcessBoth   ProcessType = ""
	ProcessInput  ProcessType = "INPUT"
	ProcessOutput ProcessType = "OUTPUT"
)

// Sentinel roles understood by the engine in addition to ordinary role names.
const (
	// RoleEveryone always passes.
	RoleEveryone = "everyone"
	// RoleNoOne always fails, even for users holding every other role. It is
	// checked before anything else so a field can be made permanently
	// inaccessible through ordinary rule tooling.
	RoleNoOne = "no one"
	// RoleAuthenticated passes for any non-anonymous user.
	RoleAuthenticated = "authenticated user"
	// RoleSelf passes when the subject object is the current user.
	RoleSelf = "self"
	// RoleCreator passes when the subject's createdBy names the current user,
	// or, absent that field, when the nearest enclosing object does.
	RoleCreator = "creator"
)

// Rule is one access-control statement: a disjunction of role names and/or
// membership properties, optionally scoped to a process direction. A rule set
// attached to a class or property passes when any rule in it passes.
type Rule struct {
	Roles    []string
	MemberOf []string
	Process  ProcessType
}

// Roles builds a role-based rule.
func Roles(roles ...string) Rule {
	return Rule{Roles: roles}
}

// MemberOf builds a membership rule. Each name refers to a property of the
// caller-supplied database object holding one or more identifiers; the rule
// passes when the current user is among them.
func MemberOf(properties ...string) Rule {
	return Rule{MemberOf: properties}
}

// For scopes the rule to one process direction.
func (r Rule) For(process ProcessType) Rule {
	r.Process = process
	return r
}

// appliesTo reports whether the rule participates in checks for direction.
func (r Rule) appliesTo(direction ProcessType) bool {
	return r.Process == ProcessBoth || r.Process == direction
}

// key returns a canonical identity used for deduplication when class and
// property rule sets are merged.
func (r Rule) key() string {
	roles := append([]string(nil), r.Roles...)
	sort.Strings(roles)
	members := append([]string(nil), r.MemberOf...)
	sort.Strings(members)
	return string(r.Process) + "|r:" + strings.Join(roles, ",") + "|m:" + strings.Join(members, ",")
}

func dedupRules(rules []Rule) []Rule {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		k := rule.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rule)
	}
	return out
}

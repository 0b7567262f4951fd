package crud

import (
	"time"

	"github.com/crudcore/crudcore/pkg/observability/logger"
	"github.com/crudcore/crudcore/pkg/restriction"
)

// EntityConfig is the per-entity configuration injected at service
// construction: one generic service parameterized by entity type, not one
// hand-written service per entity.
type EntityConfig struct {
	// Collection is the backend collection name.
	Collection string
	// TypeName is the restriction registry namespace for this entity.
	TypeName string
	// SecretFields are stripped from every prepared output regardless of
	// roles. Defaults to password and token fields.
	SecretFields []string
	// PasswordFields are one-way hashed during input preparation.
	// Defaults to "password".
	PasswordFields []string
}

// DefaultSecretFields never leave the service through a prepared output.
var DefaultSecretFields = []string{"password", "verificationToken", "passwordResetToken"}

// DefaultPasswordFields are hashed before persistence.
var DefaultPasswordFields = []string{"password"}

// ServiceOptions is the per-call context. Constructed fresh per call and
// never persisted; the zero value is an anonymous caller with no role gate.
type ServiceOptions struct {
	// User is the current user, nil for anonymous.
	User restriction.User
	// Roles, when set, gates the whole operation on the user holding at
	// least one of them. Checked before any other stage.
	Roles []string
}

// Option configures optional service collaborators.
type Option[T any] func(*Service[T])

// WithNotifier wires an event notifier for completed writes.
func WithNotifier[T any](notifier Notifier) Option[T] {
	return func(s *Service[T]) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithMetrics wires operation counters.
func WithMetrics[T any](metrics *Metrics) Option[T] {
	return func(s *Service[T]) {
		s.metrics = metrics
	}
}

// WithLogger replaces the default noop logger.
func WithLogger[T any](log logger.Logger) Option[T] {
	return func(s *Service[T]) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces the timestamp source. Test hook.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Service[T]) {
		if now != nil {
			s.now = now
		}
	}
}

// Package crud implements the generic persistence orchestrator: one staged
// pipeline (role gate, input restriction, input preparation, backend call,
// output preparation, output restriction) shared by every entity type, with
// Force variants that skip authorization and Raw variants that additionally
// skip preparation and typed mapping.
package crud

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/crudcore/crudcore/pkg/apperror"
	"github.com/crudcore/crudcore/pkg/dbid"
	"github.com/crudcore/crudcore/pkg/filter"
	"github.com/crudcore/crudcore/pkg/mapping"
	"github.com/crudcore/crudcore/pkg/observability/logger"
	"github.com/crudcore/crudcore/pkg/restriction"
)

// FindAndCountResult carries one page of items together with the total number
// of matching records, produced by a single backend round trip.
type FindAndCountResult[T any] struct {
	Items      []T
	TotalCount int64
	Limit      int64
	Skip       int64
}

// stageMode selects which pipeline stages a variant runs. The plain variants
// run everything, Force skips authorization only, Raw skips authorization and
// preparation both.
type stageMode struct {
	authorize bool
	prepare   bool
}

var (
	modeFull  = stageMode{authorize: true, prepare: true}
	modeForce = stageMode{authorize: false, prepare: true}
	modeRaw   = stageMode{authorize: false, prepare: false}
)

// Service is the generic CRUD orchestrator for one entity type. It is safe
// for concurrent use: all per-call state lives in the call.
type Service[T any] struct {
	cfg      EntityConfig
	executor Executor
	compiler *filter.Compiler
	engine   *restriction.Engine
	notifier Notifier
	metrics  *Metrics
	log      logger.Logger
	now      func() time.Time
}

// NewService builds a Service over a backend executor, a filter compiler and
// a restriction engine. Secret and password field lists default when empty.
func NewService[T any](
	cfg EntityConfig,
	executor Executor,
	compiler *filter.Compiler,
	engine *restriction.Engine,
	opts ...Option[T],
) *Service[T] {
	if cfg.SecretFields == nil {
		cfg.SecretFields = DefaultSecretFields
	}
	if cfg.PasswordFields == nil {
		cfg.PasswordFields = DefaultPasswordFields
	}
	s := &Service[T]{
		cfg:      cfg,
		executor: executor,
		compiler: compiler,
		engine:   engine,
		notifier: NoopNotifier{},
		log:      logger.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new record through the full pipeline and returns it typed.
func (s *Service[T]) Create(ctx context.Context, input map[string]interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.createDoc(ctx, input, opts, modeFull)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// CreateForce inserts without authorization checks. Preparation still runs.
func (s *Service[T]) CreateForce(ctx context.Context, input map[string]interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.createDoc(ctx, input, opts, modeForce)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// CreateRaw inserts the input as-is and returns the stored document. No
// authorization, no preparation, no secret stripping.
func (s *Service[T]) CreateRaw(ctx context.Context, input map[string]interface{}, opts ServiceOptions) (map[string]interface{}, error) {
	return s.createDoc(ctx, input, opts, modeRaw)
}

// Get fetches one record by id through the full pipeline.
func (s *Service[T]) Get(ctx context.Context, id interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.getDoc(ctx, id, opts, modeFull)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// GetForce fetches one record by id without authorization checks.
func (s *Service[T]) GetForce(ctx context.Context, id interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.getDoc(ctx, id, opts, modeForce)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// GetRaw fetches the stored document by id untouched.
func (s *Service[T]) GetRaw(ctx context.Context, id interface{}, opts ServiceOptions) (map[string]interface{}, error) {
	return s.getDoc(ctx, id, opts, modeRaw)
}

// Find returns every record matching the expression within the pagination
// window. An expression matching nothing yields an empty slice, not an error.
func (s *Service[T]) Find(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions) ([]T, error) {
	docs, err := s.findDocs(ctx, expr, args, opts, modeFull)
	if err != nil {
		return nil, err
	}
	return s.materializeAll(docs)
}

// FindForce is Find without authorization checks.
func (s *Service[T]) FindForce(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions) ([]T, error) {
	docs, err := s.findDocs(ctx, expr, args, opts, modeForce)
	if err != nil {
		return nil, err
	}
	return s.materializeAll(docs)
}

// FindRaw compiles the expression and returns the stored documents untouched.
func (s *Service[T]) FindRaw(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions) ([]map[string]interface{}, error) {
	return s.findDocs(ctx, expr, args, opts, modeRaw)
}

// FindAndCount returns one page of matching records together with the total
// match count, computed in a single backend round trip so the page and its
// total can never disagree.
func (s *Service[T]) FindAndCount(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions) (*FindAndCountResult[T], error) {
	return s.findAndCount(ctx, expr, args, opts, modeFull)
}

// FindAndCountForce is FindAndCount without authorization checks.
func (s *Service[T]) FindAndCountForce(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions) (*FindAndCountResult[T], error) {
	return s.findAndCount(ctx, expr, args, opts, modeForce)
}

// FindAndCountRaw returns the matching stored documents untouched together
// with the total match count.
func (s *Service[T]) FindAndCountRaw(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions) ([]map[string]interface{}, int64, error) {
	docs, total, _, err := s.findAndCountDocs(ctx, expr, args, opts, modeRaw)
	return docs, total, err
}

// Update patches one record by id through the full pipeline and returns the
// updated record. Nil patch values never clear stored fields.
func (s *Service[T]) Update(ctx context.Context, id interface{}, patch map[string]interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.updateDoc(ctx, id, patch, opts, modeFull)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// UpdateForce patches without authorization checks. Preparation still runs.
func (s *Service[T]) UpdateForce(ctx context.Context, id interface{}, patch map[string]interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.updateDoc(ctx, id, patch, opts, modeForce)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// UpdateRaw applies the patch as-is and returns the merged stored document.
func (s *Service[T]) UpdateRaw(ctx context.Context, id interface{}, patch map[string]interface{}, opts ServiceOptions) (map[string]interface{}, error) {
	return s.updateDoc(ctx, id, patch, opts, modeRaw)
}

// Delete removes one record by id and returns its pre-deletion state.
func (s *Service[T]) Delete(ctx context.Context, id interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.deleteDoc(ctx, id, opts, modeFull)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// DeleteForce removes without authorization checks.
func (s *Service[T]) DeleteForce(ctx context.Context, id interface{}, opts ServiceOptions) (*T, error) {
	doc, err := s.deleteDoc(ctx, id, opts, modeForce)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// DeleteRaw removes and returns the stored document untouched.
func (s *Service[T]) DeleteRaw(ctx context.Context, id interface{}, opts ServiceOptions) (map[string]interface{}, error) {
	return s.deleteDoc(ctx, id, opts, modeRaw)
}

func (s *Service[T]) createDoc(ctx context.Context, input map[string]interface{}, opts ServiceOptions, mode stageMode) (map[string]interface{}, error) {
	s.metrics.observeOperation(s.cfg.Collection, "create")

	doc := copyDoc(input)
	if mode.authorize {
		if err := s.checkRequiredRoles(opts, "create"); err != nil {
			return nil, err
		}
		ictx := restriction.InputContext(opts.User, s.cfg.TypeName)
		enforced, err := s.engine.Enforce(doc, ictx)
		if err != nil {
			s.metrics.observeDenied(s.cfg.Collection, "create")
			return nil, err
		}
		doc, _ = enforced.(map[string]interface{})
		if doc == nil {
			doc = map[string]interface{}{}
		}
	}
	if mode.prepare {
		doc = mapping.StripNil(doc)
		if err := s.prepareInput(doc, opts, true); err != nil {
			return nil, err
		}
	}

	insertedID, err := s.executor.InsertOne(ctx, s.cfg.Collection, doc)
	if err != nil {
		return nil, s.wrapWriteError(err, "insert failed")
	}
	if _, ok := doc["_id"]; !ok && insertedID != nil {
		doc["_id"] = insertedID
	}
	s.publish(ctx, ActionCreated, doc, opts)
	s.log.Debug("record created", "collection", s.cfg.Collection)

	return s.finishDoc(doc, opts, mode)
}

func (s *Service[T]) getDoc(ctx context.Context, id interface{}, opts ServiceOptions, mode stageMode) (map[string]interface{}, error) {
	s.metrics.observeOperation(s.cfg.Collection, "get")

	if mode.authorize {
		if err := s.checkRequiredRoles(opts, "get"); err != nil {
			return nil, err
		}
	}
	doc, err := s.fetch(ctx, id, "get")
	if err != nil {
		return nil, err
	}
	if mode.authorize {
		octx := restriction.OutputContext(opts.User, s.cfg.TypeName)
		octx.DBObject = doc
		if !s.engine.Allowed(s.cfg.TypeName, doc, octx) {
			s.metrics.observeDenied(s.cfg.Collection, "get")
			return nil, apperror.NewUnauthorized(fmt.Sprintf("access to %s denied", s.cfg.TypeName))
		}
	}
	return s.finishDoc(doc, opts, mode)
}

func (s *Service[T]) findDocs(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions, mode stageMode) ([]map[string]interface{}, error) {
	s.metrics.observeOperation(s.cfg.Collection, "find")

	if mode.authorize {
		if err := s.checkRequiredRoles(opts, "find"); err != nil {
			return nil, err
		}
	}
	predicate, err := s.compiler.CompileFilter(expr)
	if err != nil {
		return nil, apperror.NewValidation("invalid filter", map[string]interface{}{"filter": err.Error()})
	}
	qopts := s.compiler.CompileFindOptions(args)

	docs, err := s.executor.Find(ctx, s.cfg.Collection, predicate, qopts)
	if err != nil {
		return nil, apperror.NewBackend("find failed", err)
	}

	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		finished, err := s.finishDoc(doc, opts, mode)
		if err != nil {
			return nil, err
		}
		if finished == nil {
			continue
		}
		out = append(out, finished)
	}
	return out, nil
}

func (s *Service[T]) findAndCount(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions, mode stageMode) (*FindAndCountResult[T], error) {
	docs, total, qopts, err := s.findAndCountDocs(ctx, expr, args, opts, mode)
	if err != nil {
		return nil, err
	}
	items, err := s.materializeAll(docs)
	if err != nil {
		return nil, err
	}
	return &FindAndCountResult[T]{
		Items:      items,
		TotalCount: total,
		Limit:      qopts.Limit,
		Skip:       qopts.Skip,
	}, nil
}

func (s *Service[T]) findAndCountDocs(ctx context.Context, expr filter.Expression, args filter.PaginationArgs, opts ServiceOptions, mode stageMode) ([]map[string]interface{}, int64, filter.QueryOptions, error) {
	s.metrics.observeOperation(s.cfg.Collection, "findAndCount")

	if mode.authorize {
		if err := s.checkRequiredRoles(opts, "findAndCount"); err != nil {
			return nil, 0, filter.QueryOptions{}, err
		}
	}
	pipeline, qopts, err := s.compiler.CompileFindAndCount(expr, args)
	if err != nil {
		return nil, 0, qopts, apperror.NewValidation("invalid filter", map[string]interface{}{"filter": err.Error()})
	}

	rows, err := s.executor.Aggregate(ctx, s.cfg.Collection, pipeline)
	if err != nil {
		return nil, 0, qopts, apperror.NewBackend("aggregation failed", err)
	}
	rawItems, total, err := filter.DecodeFacetResult(rows)
	if err != nil {
		return nil, 0, qopts, apperror.NewBackend("malformed aggregation result", err)
	}

	docs := make([]map[string]interface{}, 0, len(rawItems))
	for _, raw := range rawItems {
		doc, ok := filter.AsDocument(raw)
		if !ok {
			return nil, 0, qopts, apperror.NewBackend("malformed aggregation result",
				fmt.Errorf("unexpected item shape %T", raw))
		}
		finished, err := s.finishDoc(doc, opts, mode)
		if err != nil {
			return nil, 0, qopts, err
		}
		if finished == nil {
			continue
		}
		docs = append(docs, finished)
	}
	return docs, total, qopts, nil
}

func (s *Service[T]) updateDoc(ctx context.Context, id interface{}, patch map[string]interface{}, opts ServiceOptions, mode stageMode) (map[string]interface{}, error) {
	s.metrics.observeOperation(s.cfg.Collection, "update")

	existing, err := s.fetch(ctx, id, "update")
	if err != nil {
		return nil, err
	}

	doc := copyDoc(patch)
	if mode.authorize {
		if err := s.checkRequiredRoles(opts, "update"); err != nil {
			return nil, err
		}
		ictx := restriction.InputContext(opts.User, s.cfg.TypeName)
		ictx.DBObject = existing
		if !s.engine.Allowed(s.cfg.TypeName, existing, ictx) {
			s.metrics.observeDenied(s.cfg.Collection, "update")
			return nil, apperror.NewUnauthorized(fmt.Sprintf("access to %s denied", s.cfg.TypeName))
		}
		enforced, err := s.engine.Enforce(doc, ictx)
		if err != nil {
			s.metrics.observeDenied(s.cfg.Collection, "update")
			return nil, err
		}
		doc, _ = enforced.(map[string]interface{})
		if doc == nil {
			doc = map[string]interface{}{}
		}
	}
	if mode.prepare {
		doc = mapping.StripNil(doc)
		if err := s.prepareInput(doc, opts, false); err != nil {
			return nil, err
		}
	}
	delete(doc, "_id")

	matched, err := s.executor.UpdateOne(ctx, s.cfg.Collection,
		bson.M{"_id": dbid.Value(id)}, bson.M{"$set": doc})
	if err != nil {
		return nil, s.wrapWriteError(err, "update failed")
	}
	if matched == 0 {
		// The record was deleted between the fetch and the write.
		s.metrics.observeNotFound(s.cfg.Collection, "update")
		return nil, s.notFound(id)
	}

	merged := mapping.Merge(existing, doc)
	s.publish(ctx, ActionUpdated, merged, opts)
	s.log.Debug("record updated", "collection", s.cfg.Collection)

	return s.finishDoc(merged, opts, mode)
}

func (s *Service[T]) deleteDoc(ctx context.Context, id interface{}, opts ServiceOptions, mode stageMode) (map[string]interface{}, error) {
	s.metrics.observeOperation(s.cfg.Collection, "delete")

	existing, err := s.fetch(ctx, id, "delete")
	if err != nil {
		return nil, err
	}

	if mode.authorize {
		if err := s.checkRequiredRoles(opts, "delete"); err != nil {
			return nil, err
		}
		ictx := restriction.InputContext(opts.User, s.cfg.TypeName)
		ictx.DBObject = existing
		if !s.engine.Allowed(s.cfg.TypeName, existing, ictx) {
			s.metrics.observeDenied(s.cfg.Collection, "delete")
			return nil, apperror.NewUnauthorized(fmt.Sprintf("access to %s denied", s.cfg.TypeName))
		}
	}

	deleted, err := s.executor.DeleteOne(ctx, s.cfg.Collection, bson.M{"_id": dbid.Value(id)})
	if err != nil {
		return nil, apperror.NewBackend("delete failed", err)
	}
	if deleted == 0 {
		s.metrics.observeNotFound(s.cfg.Collection, "delete")
		return nil, s.notFound(id)
	}

	s.publish(ctx, ActionDeleted, existing, opts)
	s.log.Debug("record deleted", "collection", s.cfg.Collection)

	return s.finishDoc(existing, opts, mode)
}

// fetch loads the record by id. A missing record is always a not-found error,
// never a nil result, so callers cannot mistake absence for authorization.
func (s *Service[T]) fetch(ctx context.Context, id interface{}, operation string) (map[string]interface{}, error) {
	doc, err := s.executor.FindOne(ctx, s.cfg.Collection, bson.M{"_id": dbid.Value(id)})
	if err != nil {
		return nil, apperror.NewBackend("lookup failed", err)
	}
	if doc == nil {
		s.metrics.observeNotFound(s.cfg.Collection, operation)
		return nil, s.notFound(id)
	}
	return doc, nil
}

// finishDoc runs the output side of the pipeline: secret stripping in
// preparing modes, restriction redaction in authorizing modes.
func (s *Service[T]) finishDoc(doc map[string]interface{}, opts ServiceOptions, mode stageMode) (map[string]interface{}, error) {
	if doc == nil {
		return nil, nil
	}
	if mode.prepare {
		for _, field := range s.cfg.SecretFields {
			delete(doc, field)
		}
	}
	if mode.authorize {
		octx := restriction.OutputContext(opts.User, s.cfg.TypeName)
		octx.DBObject = doc
		enforced, err := s.engine.Enforce(doc, octx)
		if err != nil {
			return nil, err
		}
		doc, _ = enforced.(map[string]interface{})
	}
	return doc, nil
}

// prepareInput hashes password fields and stamps the audit fields. Creation
// stamps createdBy/createdAt; every prepared write stamps updatedBy/updatedAt.
func (s *Service[T]) prepareInput(doc map[string]interface{}, opts ServiceOptions, isCreate bool) error {
	for _, field := range s.cfg.PasswordFields {
		raw, present := doc[field]
		if !present {
			continue
		}
		plain, ok := raw.(string)
		if !ok || plain == "" {
			continue
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			return apperror.NewInternal("password hashing failed", err)
		}
		doc[field] = string(hashed)
	}

	now := s.now().UTC()
	var actor string
	if opts.User != nil {
		actor = opts.User.UserID()
	}
	if isCreate {
		doc["createdAt"] = now
		if actor != "" {
			doc["createdBy"] = actor
		}
	}
	doc["updatedAt"] = now
	if actor != "" {
		doc["updatedBy"] = actor
	}
	return nil
}

// checkRequiredRoles gates the whole operation on the per-call role list.
func (s *Service[T]) checkRequiredRoles(opts ServiceOptions, operation string) error {
	if len(opts.Roles) == 0 {
		return nil
	}
	for _, role := range opts.Roles {
		if role == restriction.RoleEveryone {
			return nil
		}
	}
	if opts.User == nil {
		s.metrics.observeDenied(s.cfg.Collection, operation)
		return apperror.NewUnauthorized("authentication required")
	}
	held := opts.User.UserRoles()
	for _, role := range opts.Roles {
		if role == restriction.RoleAuthenticated {
			return nil
		}
		for _, h := range held {
			if h == role {
				return nil
			}
		}
	}
	s.metrics.observeDenied(s.cfg.Collection, operation)
	return apperror.NewUnauthorized("insufficient role")
}

func (s *Service[T]) wrapWriteError(err error, message string) error {
	if IsDuplicateKey(err) {
		return apperror.NewConflict("duplicate key", err)
	}
	return apperror.NewBackend(message, err)
}

func (s *Service[T]) notFound(id interface{}) error {
	label, err := dbid.String(id)
	if err != nil {
		label = fmt.Sprintf("%v", id)
	}
	return apperror.NewNotFound(fmt.Sprintf("%s %s not found", s.cfg.TypeName, label))
}

func (s *Service[T]) publish(ctx context.Context, action Action, doc map[string]interface{}, opts ServiceOptions) {
	id, err := dbid.String(doc)
	if err != nil {
		id = ""
	}
	var actor string
	if opts.User != nil {
		actor = opts.User.UserID()
	}
	s.notifier.Publish(ctx, Event{
		Action:     action,
		Collection: s.cfg.Collection,
		ID:         id,
		Actor:      actor,
	})
}

func (s *Service[T]) materialize(doc map[string]interface{}) (*T, error) {
	if doc == nil {
		return nil, apperror.NewUnauthorized(fmt.Sprintf("access to %s denied", s.cfg.TypeName))
	}
	typed, err := mapping.MapTo[T](doc)
	if err != nil {
		return nil, apperror.NewInternal("result mapping failed", err)
	}
	return typed, nil
}

func (s *Service[T]) materializeAll(docs []map[string]interface{}) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		typed, err := s.materialize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *typed)
	}
	return out, nil
}

func copyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		out[key] = value
	}
	return out
}

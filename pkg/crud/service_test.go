package crud

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/crudcore/crudcore/pkg/apperror"
	"github.com/crudcore/crudcore/pkg/filter"
	"github.com/crudcore/crudcore/pkg/restriction"
)

type testUser struct {
	id    string
	roles []string
}

func (u *testUser) UserID() string      { return u.id }
func (u *testUser) UserRoles() []string { return u.roles }

type article struct {
	Title  string `bson:"title"`
	Status string `bson:"status"`
	Idx    int    `bson:"idx"`
}

// fakeExecutor is an in-memory document store implementing just enough of the
// query dialect for the orchestrator paths under test.
type fakeExecutor struct {
	docs map[string][]map[string]interface{}
	seq  int

	lastPredicate bson.M
	lastOptions   filter.QueryOptions
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{docs: map[string][]map[string]interface{}{}}
}

func (f *fakeExecutor) seed(collection string, doc map[string]interface{}) {
	f.docs[collection] = append(f.docs[collection], shallow(doc))
}

func (f *fakeExecutor) stored(collection string, id interface{}) map[string]interface{} {
	for _, doc := range f.docs[collection] {
		if equalValues(doc["_id"], id) {
			return doc
		}
	}
	return nil
}

func (f *fakeExecutor) InsertOne(_ context.Context, collection string, doc map[string]interface{}) (interface{}, error) {
	id, ok := doc["_id"]
	if !ok {
		f.seq++
		id = fmt.Sprintf("id-%d", f.seq)
	}
	if f.stored(collection, id) != nil {
		return nil, mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}
	stored := shallow(doc)
	stored["_id"] = id
	f.docs[collection] = append(f.docs[collection], stored)
	return id, nil
}

func (f *fakeExecutor) FindOne(_ context.Context, collection string, predicate bson.M) (map[string]interface{}, error) {
	for _, doc := range f.docs[collection] {
		if matchDoc(doc, predicate) {
			return shallow(doc), nil
		}
	}
	return nil, nil
}

func (f *fakeExecutor) Find(_ context.Context, collection string, predicate bson.M, opts filter.QueryOptions) ([]map[string]interface{}, error) {
	f.lastPredicate = predicate
	f.lastOptions = opts

	matched := matchAll(f.docs[collection], predicate)
	sortDocs(matched, opts.Sort)
	matched = window(matched, opts.Skip, opts.Limit)

	out := make([]map[string]interface{}, len(matched))
	for i, doc := range matched {
		out[i] = shallow(doc)
	}
	return out, nil
}

func (f *fakeExecutor) Aggregate(_ context.Context, collection string, pipeline mongo.Pipeline) ([]map[string]interface{}, error) {
	matched := matchAll(f.docs[collection], nil)
	var facet bson.M

	for _, stage := range pipeline {
		for _, elem := range stage {
			switch elem.Key {
			case "$match":
				matched = matchAll(matched, elem.Value.(bson.M))
			case "$sort":
				sortDocs(matched, elem.Value.(bson.D))
			case "$facet":
				facet = asM(elem.Value)
			}
		}
	}
	if facet == nil {
		out := make([]map[string]interface{}, len(matched))
		for i, doc := range matched {
			out[i] = shallow(doc)
		}
		return out, nil
	}

	total := len(matched)
	items := matched
	for _, raw := range facet["items"].(bson.A) {
		for _, elem := range raw.(bson.D) {
			switch elem.Key {
			case "$skip":
				items = window(items, asInt(elem.Value), int64(len(items)))
			case "$limit":
				items = window(items, 0, asInt(elem.Value))
			case "$sample":
				items = window(items, 0, asInt(elem.Value.(bson.D).Map()["size"]))
			}
		}
	}

	rawItems := make([]interface{}, len(items))
	for i, doc := range items {
		rawItems[i] = shallow(doc)
	}
	result := map[string]interface{}{
		"items": rawItems,
		"total": []interface{}{},
	}
	if total > 0 {
		result["total"] = []interface{}{map[string]interface{}{"count": total}}
	}
	return []map[string]interface{}{result}, nil
}

func (f *fakeExecutor) UpdateOne(_ context.Context, collection string, predicate bson.M, update bson.M) (int64, error) {
	for _, doc := range f.docs[collection] {
		if matchDoc(doc, predicate) {
			for key, value := range asM(update["$set"]) {
				doc[key] = value
			}
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeExecutor) DeleteOne(_ context.Context, collection string, predicate bson.M) (int64, error) {
	docs := f.docs[collection]
	for i, doc := range docs {
		if matchDoc(doc, predicate) {
			f.docs[collection] = append(docs[:i:i], docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func shallow(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		out[key] = value
	}
	return out
}

func asM(v interface{}) bson.M {
	switch typed := v.(type) {
	case bson.M:
		return typed
	case map[string]interface{}:
		return bson.M(typed)
	default:
		return nil
	}
}

func asInt(v interface{}) int64 {
	switch typed := v.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	default:
		return 0
	}
}

func window(docs []map[string]interface{}, skip, limit int64) []map[string]interface{} {
	if skip >= int64(len(docs)) {
		return nil
	}
	docs = docs[skip:]
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

func matchAll(docs []map[string]interface{}, predicate bson.M) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		if matchDoc(doc, predicate) {
			out = append(out, doc)
		}
	}
	return out
}

func matchDoc(doc map[string]interface{}, predicate bson.M) bool {
	for key, cond := range predicate {
		switch key {
		case "$or":
			any := false
			for _, sub := range cond.([]bson.M) {
				if matchDoc(doc, sub) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		case "$and":
			for _, sub := range cond.([]bson.M) {
				if !matchDoc(doc, sub) {
					return false
				}
			}
		default:
			if !matchField(doc[key], cond) {
				return false
			}
		}
	}
	return true
}

func matchField(value, cond interface{}) bool {
	ops := asM(cond)
	if ops == nil {
		return equalValues(value, cond)
	}
	for op, operand := range ops {
		switch op {
		case "$eq":
			if !equalValues(value, operand) {
				return false
			}
		case "$ne":
			if equalValues(value, operand) {
				return false
			}
		case "$gt":
			if compareValues(value, operand) <= 0 {
				return false
			}
		case "$gte":
			if compareValues(value, operand) < 0 {
				return false
			}
		case "$lt":
			if compareValues(value, operand) >= 0 {
				return false
			}
		case "$lte":
			if compareValues(value, operand) > 0 {
				return false
			}
		case "$in":
			found := false
			for _, member := range operand.([]interface{}) {
				if equalValues(value, member) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equalValues(a, b interface{}) bool {
	if na, ok := numeric(a); ok {
		if nb, ok := numeric(b); ok {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) int {
	na, aok := numeric(a)
	nb, bok := numeric(b)
	if aok && bok {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	sa, _ := a.(string)
	sb, _ := b.(string)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func numeric(v interface{}) (float64, bool) {
	switch typed := v.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

func sortDocs(docs []map[string]interface{}, order bson.D) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, entry := range order {
			cmp := compareValues(docs[i][entry.Key], docs[j][entry.Key])
			if cmp == 0 {
				continue
			}
			if entry.Value == -1 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func newTestService(t *testing.T, exec *fakeExecutor, reg *restriction.Registry, opts ...Option[article]) *Service[article] {
	t.Helper()
	if reg == nil {
		reg = restriction.NewRegistry()
	}
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	opts = append(opts, WithClock[article](func() time.Time { return fixed }))
	return NewService[article](
		EntityConfig{Collection: "articles", TypeName: "Article"},
		exec,
		filter.NewCompiler(filter.DefaultConfig()),
		restriction.NewEngine(reg, nil),
		opts...,
	)
}

func TestService_CreatePreparesAndStrips(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	user := &testUser{id: "u1", roles: []string{"member"}}

	raw, err := svc.CreateRaw(context.Background(), map[string]interface{}{"title": "hello"}, ServiceOptions{User: user})
	if err != nil {
		t.Fatalf("CreateRaw: %v", err)
	}
	if _, ok := raw["createdAt"]; ok {
		t.Fatalf("raw create must not stamp audit fields, got %v", raw)
	}

	input := map[string]interface{}{
		"title":    "second",
		"password": "hunter2",
		"draft":    nil,
	}
	if _, err := svc.Create(context.Background(), input, ServiceOptions{User: user}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stored := exec.stored("articles", "id-2")
	if stored == nil {
		t.Fatal("expected second record stored")
	}
	if stored["createdBy"] != "u1" || stored["updatedBy"] != "u1" {
		t.Fatalf("missing audit stamps: %v", stored)
	}
	if _, ok := stored["draft"]; ok {
		t.Fatal("nil-valued input field must be stripped before insert")
	}
	hash, _ := stored["password"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Fatalf("password not hashed: %v", err)
	}
}

func TestService_CreateDuplicateKeyConflict(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)

	doc := map[string]interface{}{"_id": "a1", "title": "one"}
	if _, err := svc.CreateForce(context.Background(), doc, ServiceOptions{}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := svc.CreateForce(context.Background(), map[string]interface{}{"_id": "a1", "title": "two"}, ServiceOptions{})
	if !apperror.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_FindCompilesOrFilter(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "status": "active", "idx": 1})
	exec.seed("articles", map[string]interface{}{"_id": "a2", "status": "done", "idx": 9})
	exec.seed("articles", map[string]interface{}{"_id": "a3", "status": "done", "idx": 2})

	expr := filter.NewCombined(filter.LogicalOr,
		filter.NewSingle("status", filter.OperatorEq, "active"),
		filter.NewSingle("idx", filter.OperatorGte, 5),
	)

	docs, err := svc.FindRaw(context.Background(), expr, filter.PaginationArgs{}, ServiceOptions{})
	if err != nil {
		t.Fatalf("FindRaw: %v", err)
	}

	wantPredicate := bson.M{"$or": []bson.M{
		{"status": bson.M{"$eq": "active"}},
		{"idx": bson.M{"$gte": 5}},
	}}
	if !reflect.DeepEqual(exec.lastPredicate, wantPredicate) {
		t.Fatalf("predicate = %v, want %v", exec.lastPredicate, wantPredicate)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(docs))
	}
}

func TestService_FindNoMatchesReturnsEmpty(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "status": "active"})

	expr := filter.NewSingle("status", filter.OperatorEq, "nope")
	docs, err := svc.Find(context.Background(), expr, filter.PaginationArgs{}, ServiceOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty slice, got %v", docs)
	}
}

func TestService_FindAndCountWindowAndTotal(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	for i := 0; i < 30; i++ {
		exec.seed("articles", map[string]interface{}{"_id": fmt.Sprintf("a%02d", i), "idx": i})
	}

	result, err := svc.FindAndCount(context.Background(), filter.Expression{}, filter.PaginationArgs{
		Take: 25,
		Sort: []filter.SortArg{{Field: "idx", Order: filter.SortDesc}},
	}, ServiceOptions{})
	if err != nil {
		t.Fatalf("FindAndCount: %v", err)
	}

	if result.TotalCount != 30 {
		t.Fatalf("TotalCount = %d, want 30", result.TotalCount)
	}
	if len(result.Items) != 25 {
		t.Fatalf("len(Items) = %d, want 25", len(result.Items))
	}
	if result.Limit != 25 || result.Skip != 0 {
		t.Fatalf("window = limit %d skip %d, want 25/0", result.Limit, result.Skip)
	}
	if result.Items[0].Idx != 29 || result.Items[24].Idx != 5 {
		t.Fatalf("descending window wrong: first %d last %d", result.Items[0].Idx, result.Items[24].Idx)
	}
}

func TestService_FindAndCountRawSkipsPipeline(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "t", "password": "hash"})
	exec.seed("articles", map[string]interface{}{"_id": "a2", "title": "u", "password": "hash"})

	docs, total, err := svc.FindAndCountRaw(context.Background(), filter.Expression{}, filter.PaginationArgs{Take: 1}, ServiceOptions{})
	if err != nil {
		t.Fatalf("FindAndCountRaw: %v", err)
	}
	if total != 2 || len(docs) != 1 {
		t.Fatalf("total = %d, len = %d", total, len(docs))
	}
	if _, ok := docs[0]["password"]; !ok {
		t.Fatal("raw variant must not strip secrets")
	}
}

func TestService_FindAndCountEmptyCollection(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)

	result, err := svc.FindAndCount(context.Background(), filter.Expression{}, filter.PaginationArgs{}, ServiceOptions{})
	if err != nil {
		t.Fatalf("FindAndCount: %v", err)
	}
	if result.TotalCount != 0 || len(result.Items) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestService_GetMissingNotFound(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)

	_, err := svc.Get(context.Background(), "missing", ServiceOptions{})
	if !apperror.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetRaw(context.Background(), "missing", ServiceOptions{}); !apperror.IsNotFound(err) {
		t.Fatalf("raw variant must also report not found, got %v", err)
	}
}

func TestService_GetRedactsRestrictedOutput(t *testing.T) {
	reg := restriction.NewRegistry()
	reg.Register("Article", "reviewNotes", restriction.Roles("admin"))
	exec := newFakeExecutor()
	svc := newTestService(t, exec, reg)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "t", "reviewNotes": "x"})

	doc, err := svc.GetRaw(context.Background(), "a1", ServiceOptions{User: &testUser{id: "u2"}})
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if _, ok := doc["reviewNotes"]; !ok {
		t.Fatal("raw variant must not redact")
	}

	// A map-typed service exposes the redacted document shape directly.
	mapSvc := NewService[map[string]interface{}](
		EntityConfig{Collection: "articles", TypeName: "Article"},
		exec,
		filter.NewCompiler(filter.DefaultConfig()),
		restriction.NewEngine(reg, nil),
	)
	asUser, err := mapSvc.Get(context.Background(), "a1", ServiceOptions{User: &testUser{id: "u2"}})
	if err != nil {
		t.Fatalf("Get as non-admin: %v", err)
	}
	if _, ok := (*asUser)["reviewNotes"]; ok {
		t.Fatal("restricted field must be redacted for non-admin")
	}
	asAdmin, err := mapSvc.Get(context.Background(), "a1", ServiceOptions{User: &testUser{id: "u9", roles: []string{"admin"}}})
	if err != nil {
		t.Fatalf("Get as admin: %v", err)
	}
	if (*asAdmin)["reviewNotes"] != "x" {
		t.Fatalf("admin must see restricted field, got %v", *asAdmin)
	}
}

func TestService_UpdateCreatorRestrictedField(t *testing.T) {
	reg := restriction.NewRegistry()
	reg.Register("Article", "secret", restriction.Roles(restriction.RoleCreator))
	exec := newFakeExecutor()
	svc := newTestService(t, exec, reg)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "t", "createdBy": "u1"})

	_, err := svc.Update(context.Background(), "a1", map[string]interface{}{"secret": "x"},
		ServiceOptions{User: &testUser{id: "u2"}})
	if !apperror.IsUnauthorized(err) {
		t.Fatalf("non-creator patch must be rejected, got %v", err)
	}
	if _, ok := exec.stored("articles", "a1")["secret"]; ok {
		t.Fatal("rejected patch must not reach storage")
	}

	if _, err := svc.Update(context.Background(), "a1", map[string]interface{}{"secret": "x"},
		ServiceOptions{User: &testUser{id: "u1"}}); err != nil {
		t.Fatalf("creator patch: %v", err)
	}
	if exec.stored("articles", "a1")["secret"] != "x" {
		t.Fatal("creator patch must persist")
	}
}

func TestService_UpdateMergesWithoutClearing(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "old", "status": "active"})

	updated, err := svc.Update(context.Background(), "a1", map[string]interface{}{
		"title":  "new",
		"status": nil,
	}, ServiceOptions{User: &testUser{id: "u1"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "new" || updated.Status != "active" {
		t.Fatalf("merge wrong: %+v", updated)
	}
	if exec.stored("articles", "a1")["updatedBy"] != "u1" {
		t.Fatal("update must stamp updatedBy")
	}
}

func TestService_UpdateMissingNotFound(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)

	_, err := svc.UpdateForce(context.Background(), "missing", map[string]interface{}{"title": "x"}, ServiceOptions{})
	if !apperror.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_DeleteReturnsPriorState(t *testing.T) {
	exec := newFakeExecutor()
	notifier := NewChannelNotifier(4)
	svc := newTestService(t, exec, nil, WithNotifier[article](notifier))
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "gone"})

	deleted, err := svc.Delete(context.Background(), "a1", ServiceOptions{User: &testUser{id: "u1"}})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.Title != "gone" {
		t.Fatalf("expected pre-deletion state, got %+v", deleted)
	}
	if _, err := svc.Get(context.Background(), "a1", ServiceOptions{}); !apperror.IsNotFound(err) {
		t.Fatalf("record must be gone, got %v", err)
	}

	select {
	case event := <-notifier.Events():
		if event.Action != ActionDeleted || event.ID != "a1" || event.Actor != "u1" {
			t.Fatalf("unexpected event %+v", event)
		}
	default:
		t.Fatal("expected a deleted event")
	}
}

func TestService_RequiredRolesGate(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "t"})

	tests := []struct {
		name    string
		opts    ServiceOptions
		wantErr bool
	}{
		{"anonymous denied", ServiceOptions{Roles: []string{"admin"}}, true},
		{"wrong role denied", ServiceOptions{User: &testUser{id: "u1", roles: []string{"member"}}, Roles: []string{"admin"}}, true},
		{"matching role passes", ServiceOptions{User: &testUser{id: "u1", roles: []string{"admin"}}, Roles: []string{"admin"}}, false},
		{"authenticated sentinel", ServiceOptions{User: &testUser{id: "u1"}, Roles: []string{restriction.RoleAuthenticated}}, false},
		{"everyone sentinel", ServiceOptions{Roles: []string{restriction.RoleEveryone}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Get(context.Background(), "a1", tc.opts)
			if tc.wantErr && !apperror.IsUnauthorized(err) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestService_ForceSkipsAuthorizationOnly(t *testing.T) {
	reg := restriction.NewRegistry()
	reg.Register("Article", "secret", restriction.Roles(restriction.RoleNoOne))
	exec := newFakeExecutor()
	svc := newTestService(t, exec, reg)

	_, err := svc.Create(context.Background(), map[string]interface{}{"title": "t", "secret": "x"},
		ServiceOptions{User: &testUser{id: "u1"}})
	if !apperror.IsUnauthorized(err) {
		t.Fatalf("plain create must reject no-one field, got %v", err)
	}

	forced, err := svc.CreateForce(context.Background(), map[string]interface{}{"title": "t", "secret": "x"},
		ServiceOptions{User: &testUser{id: "u1"}})
	if err != nil {
		t.Fatalf("CreateForce: %v", err)
	}
	if forced.Title != "t" {
		t.Fatalf("unexpected result %+v", forced)
	}
	stored := exec.stored("articles", "id-1")
	if stored["secret"] != "x" {
		t.Fatal("force variant must write the restricted field")
	}
	if stored["createdBy"] != "u1" {
		t.Fatal("force variant must still run preparation")
	}
}

func TestService_SecretFieldsNeverLeaveTypedPath(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec, nil)
	exec.seed("articles", map[string]interface{}{"_id": "a1", "title": "t", "password": "hash", "verificationToken": "v"})

	doc, err := svc.GetRaw(context.Background(), "a1", ServiceOptions{})
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if _, ok := doc["password"]; !ok {
		t.Fatal("raw variant skips stripping")
	}

	docs, err := svc.FindRaw(context.Background(), filter.Expression{}, filter.PaginationArgs{}, ServiceOptions{})
	if err != nil {
		t.Fatalf("FindRaw: %v", err)
	}
	if _, ok := docs[0]["password"]; !ok {
		t.Fatal("raw find skips stripping")
	}

	result, err := svc.FindAndCount(context.Background(), filter.Expression{}, filter.PaginationArgs{}, ServiceOptions{})
	if err != nil {
		t.Fatalf("FindAndCount: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(result.Items))
	}
	if stripped := exec.stored("articles", "a1"); stripped["password"] != "hash" {
		t.Fatal("stripping must not mutate storage")
	}
}

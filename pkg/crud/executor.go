package crud

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/crudcore/crudcore/pkg/filter"
)

// Executor is the document-store boundary consumed by the orchestrator. Any
// backend exposing these primitives over a Mongo-like dialect satisfies it;
// store/mongodb provides the live implementation. Context deadlines and
// cancellation are propagated opaquely to the single backend call.
type Executor interface {
	// InsertOne inserts a document and returns the backend-assigned id.
	InsertOne(ctx context.Context, collection string, doc map[string]interface{}) (interface{}, error)

	// FindOne returns the first document matching the predicate, or nil when
	// nothing matches.
	FindOne(ctx context.Context, collection string, predicate bson.M) (map[string]interface{}, error)

	// Find returns all documents matching the predicate within the given
	// window. A query without matches returns an empty slice, not an error.
	Find(ctx context.Context, collection string, predicate bson.M, opts filter.QueryOptions) ([]map[string]interface{}, error)

	// Aggregate runs a pipeline and returns its result documents.
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]map[string]interface{}, error)

	// UpdateOne applies update to the first document matching the predicate
	// and returns the matched count.
	UpdateOne(ctx context.Context, collection string, predicate bson.M, update bson.M) (int64, error)

	// DeleteOne removes the first document matching the predicate and
	// returns the deleted count.
	DeleteOne(ctx context.Context, collection string, predicate bson.M) (int64, error)
}

// IsDuplicateKey reports whether err is a unique-index violation from the
// backend. The orchestrator surfaces these as conflict errors.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

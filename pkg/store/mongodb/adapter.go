// Package mongodb is the live document-store backend. The adapter owns the
// client lifecycle and implements the executor contract consumed by the CRUD
// orchestrator.
package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/crudcore/crudcore/pkg/crud"
	"github.com/crudcore/crudcore/pkg/filter"
	"github.com/crudcore/crudcore/pkg/observability/logger"
)

// Adapter provides MongoDB connectivity and the document executor.
type Adapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

var _ crud.Executor = (*Adapter)(nil)

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// Cosa fa: inizializza un adapter MongoDB e verifica connettività via ping.
// Cosa NON fa: non crea indici o collezioni automaticamente.
// Esempio minimo: adapter, err := mongodb.NewAdapter(cfg, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Noop{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &Adapter{
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

func (a *Adapter) Client() *mongo.Client {
	return a.client
}

func (a *Adapter) Database() *mongo.Database {
	return a.client.Database(a.database)
}

func (a *Adapter) Collection(name string) *mongo.Collection {
	return a.Database().Collection(name)
}

func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return fmt.Errorf("mongodb adapter is closed")
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

// Cosa fa: inserisce un documento e restituisce l'id assegnato dal backend.
// Cosa NON fa: non valida lo schema del documento.
// Esempio minimo: id, err := adapter.InsertOne(ctx, "users", doc)
func (a *Adapter) InsertOne(ctx context.Context, collection string, doc map[string]interface{}) (interface{}, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	result, err := a.Collection(collection).InsertOne(opCtx, doc)
	if err != nil {
		return nil, err
	}
	return result.InsertedID, nil
}

// FindOne returns the first matching document, or nil when nothing matches.
// The driver's no-documents sentinel never escapes this package.
func (a *Adapter) FindOne(ctx context.Context, collection string, predicate bson.M) (map[string]interface{}, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	var doc map[string]interface{}
	err := a.Collection(collection).FindOne(opCtx, predicate).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Find returns all matching documents within the compiled window.
func (a *Adapter) Find(ctx context.Context, collection string, predicate bson.M, qopts filter.QueryOptions) ([]map[string]interface{}, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	findOpts := options.Find()
	if qopts.Limit > 0 {
		findOpts.SetLimit(qopts.Limit)
	}
	if qopts.Skip > 0 {
		findOpts.SetSkip(qopts.Skip)
	}
	if len(qopts.Sort) > 0 {
		findOpts.SetSort(qopts.Sort)
	}

	cursor, err := a.Collection(collection).Find(opCtx, predicate, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	docs := []map[string]interface{}{}
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Aggregate runs a pipeline and returns its result documents.
func (a *Adapter) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]map[string]interface{}, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	cursor, err := a.Collection(collection).Aggregate(opCtx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	docs := []map[string]interface{}{}
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (a *Adapter) UpdateOne(ctx context.Context, collection string, predicate bson.M, update bson.M) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	result, err := a.Collection(collection).UpdateOne(opCtx, predicate, update)
	if err != nil {
		return 0, err
	}
	return result.MatchedCount, nil
}

func (a *Adapter) DeleteOne(ctx context.Context, collection string, predicate bson.M) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	result, err := a.Collection(collection).DeleteOne(opCtx, predicate)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (a *Adapter) CountDocuments(ctx context.Context, collection string, predicate bson.M) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).CountDocuments(opCtx, predicate)
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

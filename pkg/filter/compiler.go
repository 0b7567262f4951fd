package filter

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/crudcore/crudcore/pkg/dbid"
)

// Default pagination bounds. The max limit is a hard server-side cap: no
// compiled query ever reaches the backend without a bounded limit.
const (
	DefaultLimit    int64 = 25
	DefaultMaxLimit int64 = 100
)

// Config tunes the compiler. All fields are defaulted at construction and the
// struct is never mutated afterwards.
type Config struct {
	// MaxLimit caps the effective limit regardless of what the client requests.
	MaxLimit int64
	// DefaultLimit is applied when the client supplies no limit at all.
	DefaultLimit int64
	// AutoDetectIdentifiers compiles id-shaped string values into an OR of the
	// native-id comparison and the plain-string comparison. The same logical
	// field may be stored natively in one collection and as a string in
	// another. Off by default: it doubles the predicate for matching values.
	AutoDetectIdentifiers bool
}

// DefaultConfig returns the default compiler configuration.
func DefaultConfig() Config {
	return Config{
		MaxLimit:     DefaultMaxLimit,
		DefaultLimit: DefaultLimit,
	}
}

// Compiler translates filter expressions and pagination args into backend
// queries. It is stateless and safe for concurrent use.
type Compiler struct {
	cfg Config
}

// NewCompiler creates a Compiler, filling in zero config fields with defaults.
func NewCompiler(cfg Config) *Compiler {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return &Compiler{cfg: cfg}
}

// CompileFilter translates an expression tree into a query predicate.
// An empty expression compiles to the empty predicate (no restriction).
func (c *Compiler) CompileFilter(expr Expression) (bson.M, error) {
	// Combined takes precedence; a Single set alongside it is ignored.
	if expr.Combined != nil {
		return c.compileCombined(expr.Combined)
	}
	if expr.Single != nil {
		return c.compileSingle(expr.Single)
	}
	return bson.M{}, nil
}

func (c *Compiler) compileCombined(cf *CombinedFilter) (bson.M, error) {
	children := make([]bson.M, 0, len(cf.Filters))
	for _, child := range cf.Filters {
		compiled, err := c.CompileFilter(child)
		if err != nil {
			return nil, err
		}
		children = append(children, compiled)
	}

	// An empty combinator list means "no restriction" and a single-element
	// list collapses to its child. Some dialects treat an empty $and/$or
	// array as "match nothing", so these collapses are required for
	// correctness, not just query size.
	switch len(children) {
	case 0:
		return bson.M{}, nil
	case 1:
		return children[0], nil
	}

	var key string
	switch cf.Operator {
	case LogicalAnd:
		key = "$and"
	case LogicalOr:
		key = "$or"
	case LogicalNor:
		key = "$nor"
	default:
		return nil, fmt.Errorf("unsupported logical operator %q", cf.Operator)
	}
	return bson.M{key: children}, nil
}

func (c *Compiler) compileSingle(sf *SingleFilter) (bson.M, error) {
	if sf.Field == "" {
		return nil, fmt.Errorf("single filter requires a field")
	}

	value := sf.Value
	if sf.ConvertToIdentifier {
		value = convertIdentifierValue(sf.Operator, value)
		return c.buildComparison(sf, value)
	}

	if c.cfg.AutoDetectIdentifiers {
		if converted, ok := identifierAlternative(sf.Operator, value); ok {
			// The stored field may be a native id or a plain string; compile
			// both alternatives through the full operator translation so the
			// negation and wrapper logic stays in one place.
			native, err := c.buildComparison(sf, converted)
			if err != nil {
				return nil, err
			}
			plain, err := c.buildComparison(sf, value)
			if err != nil {
				return nil, err
			}
			return bson.M{"$or": []bson.M{native, plain}}, nil
		}
	}

	return c.buildComparison(sf, value)
}

// buildComparison applies the operator table, honoring Not by selecting the
// negated operator where the dialect has one and the $not wrapper where it
// does not (ordering and regex operators).
func (c *Compiler) buildComparison(sf *SingleFilter, value interface{}) (bson.M, error) {
	var expr bson.M

	switch sf.Operator {
	case OperatorEq:
		if sf.Not {
			expr = bson.M{"$ne": value}
		} else {
			expr = bson.M{"$eq": value}
		}
	case OperatorNe:
		if sf.Not {
			expr = bson.M{"$eq": value}
		} else {
			expr = bson.M{"$ne": value}
		}
	case OperatorGt, OperatorGte, OperatorLt, OperatorLte:
		native := map[ComparisonOperator]string{
			OperatorGt:  "$gt",
			OperatorGte: "$gte",
			OperatorLt:  "$lt",
			OperatorLte: "$lte",
		}[sf.Operator]
		expr = bson.M{native: value}
		if sf.Not {
			expr = bson.M{"$not": expr}
		}
	case OperatorIn, OperatorNin:
		members, err := toSlice(value)
		if err != nil {
			return nil, fmt.Errorf("operator %s requires an array value: %w", sf.Operator, err)
		}
		inSet := sf.Operator == OperatorIn
		if sf.Not {
			inSet = !inSet
		}
		if inSet {
			expr = bson.M{"$in": members}
		} else {
			expr = bson.M{"$nin": members}
		}
	case OperatorRegex:
		pattern, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("operator REGEX requires a string pattern, got %T", value)
		}
		expr = bson.M{"$regex": pattern}
		if sf.RegexOptions != "" {
			expr["$options"] = sf.RegexOptions
		}
		if sf.Not {
			expr = bson.M{"$not": expr}
		}
	default:
		return nil, fmt.Errorf("unsupported comparison operator %q", sf.Operator)
	}

	return bson.M{sf.Field: expr}, nil
}

// CompileFindOptions translates pagination args into backend find options.
// The effective limit is always bounded: an absent limit falls back to the
// default and an oversized one is clamped to the configured maximum.
func (c *Compiler) CompileFindOptions(args PaginationArgs) QueryOptions {
	limit := args.Limit
	if limit <= 0 {
		limit = args.Take
	}
	if limit <= 0 {
		limit = c.cfg.DefaultLimit
	}
	if limit > c.cfg.MaxLimit {
		limit = c.cfg.MaxLimit
	}

	skip := args.Skip
	if skip <= 0 {
		skip = args.Offset
	}
	if skip < 0 {
		skip = 0
	}

	var sort bson.D
	for _, entry := range args.Sort {
		if entry.Field == "" {
			continue
		}
		direction := 1
		if entry.Order == SortDesc {
			direction = -1
		}
		sort = append(sort, bson.E{Key: entry.Field, Value: direction})
	}

	return QueryOptions{Limit: limit, Skip: skip, Sort: sort}
}

// CompileFindAndCount builds a single aggregation pipeline that produces the
// windowed item list and the total count in one backend round trip, so a
// concurrent write can never make the page and its total disagree.
// When Samples is positive, a random sample of that size replaces the
// skip/limit window.
func (c *Compiler) CompileFindAndCount(expr Expression, args PaginationArgs) (mongo.Pipeline, QueryOptions, error) {
	predicate, err := c.CompileFilter(expr)
	if err != nil {
		return nil, QueryOptions{}, err
	}
	opts := c.CompileFindOptions(args)

	pipeline := mongo.Pipeline{}
	if len(predicate) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: predicate}})
	}
	if len(opts.Sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: opts.Sort}})
	}

	var window bson.A
	if args.Samples > 0 {
		window = bson.A{bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: args.Samples}}}}}
	} else {
		if opts.Skip > 0 {
			window = append(window, bson.D{{Key: "$skip", Value: opts.Skip}})
		}
		window = append(window, bson.D{{Key: "$limit", Value: opts.Limit}})
	}

	pipeline = append(pipeline, bson.D{{Key: "$facet", Value: bson.M{
		"items": window,
		"total": bson.A{bson.D{{Key: "$count", Value: "count"}}},
	}}})

	return pipeline, opts, nil
}

// DecodeFacetResult unpacks the single document produced by the facet
// pipeline into the raw item list and the total count. A missing total facet
// (no matching documents) decodes to zero.
func DecodeFacetResult(results []map[string]interface{}) ([]interface{}, int64, error) {
	if len(results) == 0 {
		return nil, 0, nil
	}
	doc := results[0]

	items, err := toSlice(doc["items"])
	if err != nil {
		return nil, 0, fmt.Errorf("malformed facet items: %w", err)
	}

	totals, err := toSlice(doc["total"])
	if err != nil {
		return nil, 0, fmt.Errorf("malformed facet total: %w", err)
	}
	if len(totals) == 0 {
		return items, 0, nil
	}

	entry, ok := AsDocument(totals[0])
	if !ok {
		return nil, 0, fmt.Errorf("malformed facet count entry %T", totals[0])
	}
	total, ok := asInt64(entry["count"])
	if !ok {
		return nil, 0, fmt.Errorf("malformed facet count value %T", entry["count"])
	}
	return items, total, nil
}

func toSlice(value interface{}) ([]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if typed, ok := value.([]interface{}); ok {
		return typed, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected array, got %T", value)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// AsDocument coerces the document shapes the driver may hand back
// (map, bson.M, bson.D) into the canonical map form.
func AsDocument(value interface{}) (map[string]interface{}, bool) {
	switch typed := value.(type) {
	case map[string]interface{}:
		return typed, true
	case bson.M:
		return map[string]interface{}(typed), true
	case bson.D:
		return typed.Map(), true
	default:
		return nil, false
	}
}

func asInt64(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	default:
		return 0, false
	}
}

func convertIdentifierValue(op ComparisonOperator, value interface{}) interface{} {
	if op == OperatorIn || op == OperatorNin {
		members, err := toSlice(value)
		if err != nil {
			return value
		}
		converted := make([]interface{}, len(members))
		for i, member := range members {
			converted[i] = dbid.Value(member)
		}
		return converted
	}
	return dbid.Value(value)
}

// identifierAlternative returns the native-id form of value when the raw
// value looks like an identifier, for the auto-detection OR alternatives.
func identifierAlternative(op ComparisonOperator, value interface{}) (interface{}, bool) {
	if op == OperatorIn || op == OperatorNin {
		members, err := toSlice(value)
		if err != nil {
			return nil, false
		}
		found := false
		converted := make([]interface{}, len(members))
		for i, member := range members {
			converted[i] = member
			if s, ok := member.(string); ok && dbid.IsIDString(s) {
				converted[i] = dbid.Value(member)
				found = true
			}
		}
		return converted, found
	}
	if s, ok := value.(string); ok && dbid.IsIDString(s) {
		return dbid.Value(value), true
	}
	return nil, false
}

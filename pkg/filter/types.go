// Package filter compiles declarative, client-supplied filter expressions and
// pagination arguments into document-store query predicates and find options.
// The compiler is pure and stateless; a fresh expression is compiled once per
// request and discarded after query execution.
package filter

import (
	"go.mongodb.org/mongo-driver/bson"
)

// LogicalOperator combines nested filter expressions.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
	LogicalNor LogicalOperator = "NOR"
)

// ComparisonOperator names a single field comparison.
type ComparisonOperator string

const (
	OperatorEq    ComparisonOperator = "EQ"
	OperatorNe    ComparisonOperator = "NE"
	OperatorGt    ComparisonOperator = "GT"
	OperatorGte   ComparisonOperator = "GTE"
	OperatorLt    ComparisonOperator = "LT"
	OperatorLte   ComparisonOperator = "LTE"
	OperatorIn    ComparisonOperator = "IN"
	OperatorNin   ComparisonOperator = "NIN"
	OperatorRegex ComparisonOperator = "REGEX"
)

// Expression is a recursive filter tree node. Exactly one of Combined and
// Single is expected to be populated; when both are set, Combined wins and
// Single is ignored entirely.
type Expression struct {
	Combined *CombinedFilter `json:"combinedFilter,omitempty" bson:"combinedFilter,omitempty"`
	Single   *SingleFilter   `json:"singleFilter,omitempty" bson:"singleFilter,omitempty"`
}

// CombinedFilter joins child expressions with a logical operator.
type CombinedFilter struct {
	Operator LogicalOperator `json:"logicalOperator" bson:"logicalOperator"`
	Filters  []Expression    `json:"filters" bson:"filters"`
}

// SingleFilter compares one field against a value.
type SingleFilter struct {
	Field               string             `json:"field" bson:"field"`
	Operator            ComparisonOperator `json:"operator" bson:"operator"`
	Value               interface{}        `json:"value" bson:"value"`
	Not                 bool               `json:"not,omitempty" bson:"not,omitempty"`
	RegexOptions        string             `json:"regexOptions,omitempty" bson:"regexOptions,omitempty"`
	ConvertToIdentifier bool               `json:"convertToIdentifier,omitempty" bson:"convertToIdentifier,omitempty"`
}

// SortDirection is the client-facing sort order.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// SortArg is one entry of the client-supplied sort list. Order of entries is
// significant: the first entry is the primary sort key.
type SortArg struct {
	Field string        `json:"field" bson:"field"`
	Order SortDirection `json:"order" bson:"order"`
}

// PaginationArgs are the raw client pagination inputs. Limit/Take and
// Offset/Skip are aliases of each other.
type PaginationArgs struct {
	Limit   int64     `json:"limit,omitempty"`
	Take    int64     `json:"take,omitempty"`
	Offset  int64     `json:"offset,omitempty"`
	Skip    int64     `json:"skip,omitempty"`
	Sort    []SortArg `json:"sort,omitempty"`
	Samples int64     `json:"samples,omitempty"`
}

// QueryOptions is the compiled, backend-ready form of PaginationArgs.
// Limit is always positive and clamped; Skip of zero means "not set".
type QueryOptions struct {
	Limit int64
	Skip  int64
	Sort  bson.D
}

// NewSingle is a convenience constructor for a single-comparison expression.
func NewSingle(field string, operator ComparisonOperator, value interface{}) Expression {
	return Expression{Single: &SingleFilter{Field: field, Operator: operator, Value: value}}
}

// NewCombined is a convenience constructor for a combined expression.
func NewCombined(operator LogicalOperator, filters ...Expression) Expression {
	return Expression{Combined: &CombinedFilter{Operator: operator, Filters: filters}}
}

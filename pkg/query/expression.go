// Package query plans and executes read queries against a pkg/cache
// Cache: a filter/order/limit expression is turned into either an
// IndexScan over one of the cache's secondary indexes or a SeqScan over
// its primary record database.
package query

import "github.com/cuemby/weir/pkg/types"

// Op is a comparison or full-text operator usable in a Simple filter.
type Op int

const (
	LT Op = iota
	LTE
	EQ
	GT
	GTE
	Contains
	MatchesAny
	MatchesAll
)

func (op Op) String() string {
	switch op {
	case LT:
		return "lt"
	case LTE:
		return "lte"
	case EQ:
		return "eq"
	case GT:
		return "gt"
	case GTE:
		return "gte"
	case Contains:
		return "contains"
	case MatchesAny:
		return "matches_any"
	case MatchesAll:
		return "matches_all"
	default:
		return "unknown"
	}
}

func (op Op) isRange() bool {
	return op == LT || op == LTE || op == GT || op == GTE
}

func (op Op) isFullText() bool {
	return op == Contains || op == MatchesAny || op == MatchesAll
}

// FilterExpression is either a single predicate (Simple) or a conjunction
// of predicates (And). Conjuncts is non-empty only when this is an And
// node; Field/Op/Value are only meaningful on a Simple node.
type FilterExpression struct {
	Conjuncts []FilterExpression // non-nil => this is an And node
	Field     string
	Op        Op
	Value      types.Field
}

// Simple builds a single-predicate filter.
func Simple(field string, op Op, value types.Field) FilterExpression {
	return FilterExpression{Field: field, Op: op, Value: value}
}

// And builds a conjunction of filters. Nested And nodes are accepted but
// are flattened by the planner, matching spec's FilterExpression grammar
// of Simple | And([FilterExpression]).
func And(exprs ...FilterExpression) FilterExpression {
	return FilterExpression{Conjuncts: exprs}
}

func (f FilterExpression) isAnd() bool { return f.Conjuncts != nil }

// Dir is a sort direction.
type Dir int

const (
	Asc Dir = iota
	Desc
)

// OrderSpec is one column of an order_by clause.
type OrderSpec struct {
	Field string
	Dir   Dir
}

// QueryExpression is the full shape of a query against a cache: an
// optional filter, an ordering, a result limit, and a skip count.
type QueryExpression struct {
	Filter  *FilterExpression
	OrderBy []OrderSpec
	Limit   uint64 // 0 means unlimited
	Skip    uint64
}

// conjunct is a resolved Simple predicate: Field has been looked up to a
// schema position.
type conjunct struct {
	fieldPos int
	op       Op
	value    types.Field
}

// flatten resolves a QueryExpression's filter into its top-level conjuncts,
// recursively flattening nested And nodes, and resolves each field name to
// a schema position. Returns types.ErrFieldNotFound if any field is unknown.
func flatten(schema types.Schema, f *FilterExpression) ([]conjunct, error) {
	if f == nil {
		return nil, nil
	}
	var out []conjunct
	var walk func(node FilterExpression) error
	walk = func(node FilterExpression) error {
		if node.isAnd() {
			for _, c := range node.Conjuncts {
				if err := walk(c); err != nil {
					return err
				}
			}
			return nil
		}
		pos := schema.FieldIndex(node.Field)
		if pos < 0 {
			return types.ErrFieldNotFound
		}
		out = append(out, conjunct{fieldPos: pos, op: node.Op, value: node.Value})
		return nil
	}
	if err := walk(*f); err != nil {
		return nil, err
	}
	return out, nil
}

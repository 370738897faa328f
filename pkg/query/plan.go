package query

import (
	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/metrics"
	"github.com/cuemby/weir/pkg/types"
)

// boundKind tags the variant of a Bound.
type boundKind int

const (
	boundEQ boundKind = iota
	boundRange
	boundFullText
)

// Bound is one field's contribution to an IndexScan's lower/upper bound.
type Bound struct {
	kind  boundKind
	op    Op
	value types.Field
	terms []string // full-text only
}

// IndexScanPlan scans one secondary index, optionally bounded by a prefix
// of equality values and (on the last bound field) a range comparison.
type IndexScanPlan struct {
	IndexNumber int
	Index       cache.IndexDef
	Bounds      []Bound
	Reverse     bool
}

// SeqScanPlan scans the primary record database in full.
type SeqScanPlan struct {
	Reverse bool
}

// Plan is the planner's output: exactly one of IndexScan or SeqScan is set.
type Plan struct {
	IndexScan *IndexScanPlan
	SeqScan   *SeqScanPlan
	// Residual is the full original filter, always re-applied during
	// execution regardless of what the chosen plan could push down. This
	// keeps execution correct even where bound construction is a
	// conservative approximation of what the index can prove (see
	// planSortedInverted).
	Residual *FilterExpression
}

// PlanQuery chooses an execution plan for q against schema and the given
// secondary indexes. allowSeqScan controls whether an endpoint permits a
// full scan fallback when no index qualifies; if false and no index
// qualifies, types.ErrNeedIndex is returned.
func PlanQuery(schema types.Schema, indexes []cache.IndexDef, allowSeqScan bool, q QueryExpression) (Plan, error) {
	conjuncts, err := flatten(schema, q.Filter)
	if err != nil {
		return Plan{}, err
	}
	for _, o := range q.OrderBy {
		if schema.FieldIndex(o.Field) < 0 {
			return Plan{}, types.ErrFieldNotFound
		}
	}

	var best *IndexScanPlan
	bestCost := -1
	for i, idx := range indexes {
		var candidate *IndexScanPlan
		var ok bool
		switch idx.Kind {
		case cache.SortedInverted:
			candidate, ok = planSortedInverted(schema, i, idx, conjuncts, q.OrderBy)
		case cache.FullText:
			candidate, ok = planFullText(schema, i, idx, conjuncts)
		}
		if !ok {
			continue
		}
		cost := len(idx.FieldIndices)
		if best == nil || cost < bestCost {
			best, bestCost = candidate, cost
		}
	}

	metrics.QueryPlanTotal.WithLabelValues(planKindLabel(best)).Inc()

	if best != nil {
		return Plan{IndexScan: best, Residual: q.Filter}, nil
	}
	if !allowSeqScan {
		return Plan{}, types.ErrNeedIndex
	}
	return Plan{SeqScan: &SeqScanPlan{Reverse: firstDescending(q.OrderBy)}, Residual: q.Filter}, nil
}

func planKindLabel(idx *IndexScanPlan) string {
	if idx != nil {
		return "index_scan"
	}
	return "seq_scan"
}

func firstDescending(orderBy []OrderSpec) bool {
	return len(orderBy) > 0 && orderBy[0].Dir == Desc
}

// planSortedInverted checks whether idx qualifies for conjuncts: every
// conjunct must bind to a distinct leading field of idx.FieldIndices, in
// that order, with only the last bound field allowed to be a range rather
// than an equality; any conjunct referencing a field absent from idx
// disqualifies it. order_by must then continue as a further prefix of the
// remaining (or same, for a range-bound last field) index fields.
func planSortedInverted(schema types.Schema, i int, idx cache.IndexDef, conjuncts []conjunct, orderBy []OrderSpec) (*IndexScanPlan, bool) {
	consumed := make([]bool, len(conjuncts))
	var bounds []Bound
	rangeConsumed := false

	for _, fieldPos := range idx.FieldIndices {
		ci := findConjunct(conjuncts, consumed, fieldPos)
		if ci < 0 {
			break
		}
		c := conjuncts[ci]
		switch {
		case c.op == EQ:
			bounds = append(bounds, Bound{kind: boundEQ, value: c.value})
			consumed[ci] = true
		case c.op.isRange():
			bounds = append(bounds, Bound{kind: boundRange, op: c.op, value: c.value})
			consumed[ci] = true
			rangeConsumed = true
		default:
			return nil, false // Contains/MatchesAny/MatchesAll never bind a sorted-inverted field
		}
		if rangeConsumed {
			break // a range bound must be the last bound field
		}
	}

	for _, ok := range consumed {
		if !ok {
			return nil, false
		}
	}
	// every conjunct consumed, or there were none; if idx has zero fields
	// bound at all while conjuncts exist, findConjunct already prevented
	// false "all consumed" since consumed starts false.
	if len(conjuncts) == 0 && len(bounds) == 0 && len(orderBy) == 0 {
		return nil, false // nothing for this index to usefully contribute
	}

	if !orderByFitsSuffix(idx.FieldIndices, len(bounds), rangeConsumed, orderBy, schema) {
		return nil, false
	}

	return &IndexScanPlan{
		IndexNumber: i,
		Index:       idx,
		Bounds:      bounds,
		Reverse:     firstDescending(orderBy),
	}, true
}

func findConjunct(conjuncts []conjunct, consumed []bool, fieldPos int) int {
	for i, c := range conjuncts {
		if !consumed[i] && c.fieldPos == fieldPos {
			return i
		}
	}
	return -1
}

// orderByFitsSuffix checks that order_by continues the index's field order
// starting from the first field not already pinned by an equality bound (a
// field pinned to a single value contributes no ordering information, so
// order_by may either skip it or restate it; a field consumed by a range
// bound still varies, so order_by must continue from that same position).
func orderByFitsSuffix(fieldIndices []int, boundCount int, rangeConsumed bool, orderBy []OrderSpec, schema types.Schema) bool {
	if len(orderBy) == 0 {
		return true
	}
	start := boundCount
	if rangeConsumed {
		start = boundCount - 1
	}
	if start < 0 {
		start = 0
	}
	if start+len(orderBy) > len(fieldIndices) {
		return false
	}
	for i, o := range orderBy {
		if schema.FieldIndex(o.Field) != fieldIndices[start+i] {
			return false
		}
	}
	return true
}

// planFullText qualifies idx only when conjuncts contains exactly one
// predicate, targeting idx's field with a full-text operator: full-text
// indexes support no compound filtering beyond the single term predicate.
func planFullText(schema types.Schema, i int, idx cache.IndexDef, conjuncts []conjunct) (*IndexScanPlan, bool) {
	if len(conjuncts) != 1 {
		return nil, false
	}
	c := conjuncts[0]
	if c.fieldPos != idx.FieldIndices[0] || !c.op.isFullText() {
		return nil, false
	}
	terms := dedupeTerms(cache.Tokenize(c.value.String()))
	if len(terms) == 0 {
		return nil, false
	}
	return &IndexScanPlan{
		IndexNumber: i,
		Index:       idx,
		Bounds:      []Bound{{kind: boundFullText, op: c.op, terms: terms}},
	}, true
}

func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

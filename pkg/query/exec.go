package query

import (
	"bytes"
	"fmt"

	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/metrics"
	"github.com/cuemby/weir/pkg/recordstore"
	"github.com/cuemby/weir/pkg/types"
)

// Execute runs plan against c, applying the residual filter, skip and
// limit from q, and returns the matching records in scan order.
func Execute(c *cache.Cache, plan Plan, q QueryExpression) ([]types.Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, c.Endpoint(), planKindLabel(plan.IndexScan))

	tx, err := kvstore.BeginRO(c.RecordEnv())
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	var ids []uint64
	switch {
	case plan.IndexScan != nil:
		ids, err = execIndexScan(tx, c, *plan.IndexScan)
	case plan.SeqScan != nil:
		ids, err = execSeqScan(tx, c, *plan.SeqScan)
	default:
		return nil, fmt.Errorf("query: empty plan")
	}
	if err != nil {
		return nil, err
	}

	schema := c.Schema()
	var out []types.Record
	skipped := uint64(0)
	for _, id := range ids {
		blob, err := c.Records().Get(tx, id)
		if err != nil {
			continue // record was concurrently removed since the index read
		}
		record, err := cache.DecodeRecord(blob)
		if err != nil {
			return nil, err
		}
		if plan.Residual != nil && !matches(schema, record, *plan.Residual) {
			continue
		}
		if skipped < q.Skip {
			skipped++
			continue
		}
		out = append(out, record)
		if q.Limit > 0 && uint64(len(out)) >= q.Limit {
			break
		}
	}
	return out, nil
}

func execSeqScan(tx *kvstore.Txn, c *cache.Cache, plan SeqScanPlan) ([]uint64, error) {
	cur, err := kvstore.NewCursor(tx, c.RecordsRawDB())
	if err != nil {
		return nil, err
	}
	var ids []uint64
	ok := cur.First()
	if plan.Reverse {
		ok = cur.Last()
	}
	for ok {
		k, _ := cur.Read()
		ids = append(ids, recordstore.DecodeID(k))
		if plan.Reverse {
			ok = cur.Prev()
		} else {
			ok = cur.Next()
		}
	}
	return ids, nil
}

func execIndexScan(tx *kvstore.Txn, c *cache.Cache, plan IndexScanPlan) ([]uint64, error) {
	db := c.IndexDB(plan.IndexNumber)
	switch plan.Index.Kind {
	case cache.FullText:
		return execFullText(tx, db, plan)
	default:
		return execSortedInverted(tx, db, plan)
	}
}

func execSortedInverted(tx *kvstore.Txn, db *kvstore.DB, plan IndexScanPlan) ([]uint64, error) {
	var equality []types.Field
	var rng *Bound
	for i := range plan.Bounds {
		b := plan.Bounds[i]
		if b.kind == boundRange {
			rng = &plan.Bounds[i]
			break
		}
		equality = append(equality, b.value)
	}

	cur, err := kvstore.NewCursor(tx, db)
	if err != nil {
		return nil, err
	}

	total := len(plan.Index.FieldIndices)
	prefix := types.EncodeCompositePrefix(total, equality)
	var seekKey []byte
	if rng != nil {
		rngSlice := append(append([]types.Field{}, equality...), rng.value)
		seekKey = types.EncodeCompositePrefix(total, rngSlice)
	} else {
		seekKey = prefix
	}

	var ids []uint64
	ok := cur.SeekGTE(seekKey)
	for ok {
		k, v := cur.Read()
		if len(equality) > 0 && !bytes.HasPrefix(k, prefix) {
			break
		}
		// compare only the bytes the seek key actually constrains: k carries
		// additional trailing-field bytes the seek key doesn't, which would
		// otherwise make an exact boundary match on the range field look
		// strictly greater under bytes.Compare's length rule.
		kBound := k
		if len(kBound) > len(seekKey) {
			kBound = kBound[:len(seekKey)]
		}
		if rng != nil && rng.op == GT && bytes.Equal(kBound, seekKey) {
			ok = cur.Next()
			continue
		}
		if rng != nil && (rng.op == LT || rng.op == LTE) {
			cmp := bytes.Compare(kBound, seekKey)
			if cmp > 0 || (cmp == 0 && rng.op == LT) {
				break
			}
		}
		if len(v) == 8 {
			ids = append(ids, recordstore.DecodeID(v))
		}
		ok = cur.Next()
	}
	if plan.Reverse {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	return ids, nil
}

func execFullText(tx *kvstore.Txn, db *kvstore.DB, plan IndexScanPlan) ([]uint64, error) {
	terms := plan.Bounds[0].terms
	op := plan.Bounds[0].op

	postingsFor := func(term string) ([]uint64, error) {
		cur, err := kvstore.NewCursor(tx, db)
		if err != nil {
			return nil, err
		}
		var ids []uint64
		key := []byte(term)
		ok := cur.SeekExact(key)
		for ok {
			_, v := cur.Read()
			if len(v) == 8 {
				ids = append(ids, recordstore.DecodeID(v))
			}
			ok = cur.Next()
			if ok {
				k, _ := cur.Read()
				if !bytes.Equal(k, key) {
					break
				}
			}
		}
		return ids, nil
	}

	switch op {
	case Contains, MatchesAny:
		seen := make(map[uint64]struct{})
		var out []uint64
		for _, term := range terms {
			ids, err := postingsFor(term)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		return out, nil
	case MatchesAll:
		var sets [][]uint64
		for _, term := range terms {
			ids, err := postingsFor(term)
			if err != nil {
				return nil, err
			}
			sets = append(sets, sortUint64(ids))
		}
		return intersectSorted(sets), nil
	default:
		return nil, fmt.Errorf("unsupported full-text operator %s", op)
	}
}

func sortUint64(ids []uint64) []uint64 {
	out := append([]uint64{}, ids...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// intersectSorted computes the sorted merge-intersection of postings lists
// that are each already sorted and duplicate-free, per spec's MatchesAll
// execution rule.
func intersectSorted(sets [][]uint64) []uint64 {
	if len(sets) == 0 {
		return nil
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = mergeIntersect(result, s)
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func mergeIntersect(a, b []uint64) []uint64 {
	var out []uint64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// matches evaluates the original (unplanned) filter expression directly
// against a decoded record, used as the residual check after any index
// scan and as the sole filter mechanism for SeqScan.
func matches(schema types.Schema, record types.Record, f FilterExpression) bool {
	if f.isAnd() {
		for _, c := range f.Conjuncts {
			if !matches(schema, record, c) {
				return false
			}
		}
		return true
	}
	pos := schema.FieldIndex(f.Field)
	if pos < 0 || pos >= len(record.Values) {
		return false
	}
	v := record.Values[pos]
	switch f.Op {
	case EQ:
		return v.Equal(f.Value)
	case LT, LTE, GT, GTE:
		return compareFields(v, f.Value, f.Op)
	case Contains, MatchesAny:
		terms := dedupeTerms(cache.Tokenize(f.Value.String()))
		haystack := cache.Tokenize(v.String())
		set := make(map[string]struct{}, len(haystack))
		for _, h := range haystack {
			set[h] = struct{}{}
		}
		for _, t := range terms {
			if _, ok := set[t]; ok {
				return true
			}
		}
		return false
	case MatchesAll:
		terms := dedupeTerms(cache.Tokenize(f.Value.String()))
		haystack := cache.Tokenize(v.String())
		set := make(map[string]struct{}, len(haystack))
		for _, h := range haystack {
			set[h] = struct{}{}
		}
		for _, t := range terms {
			if _, ok := set[t]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareFields(a, b types.Field, op Op) bool {
	cmp := bytes.Compare(a.Encode(), b.Encode())
	switch op {
	case LT:
		return cmp < 0
	case LTE:
		return cmp <= 0
	case GT:
		return cmp > 0
	case GTE:
		return cmp >= 0
	default:
		return false
	}
}

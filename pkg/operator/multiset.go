package operator

import (
	"sort"

	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// orderedMultiset keeps distinct values sorted with an occurrence count, so
// MIN/MAX can report the next-most-extreme value after a duplicate is
// removed without rescanning every row the group has ever seen.
type orderedMultiset struct {
	values []types.Field
	counts []int
}

func (s *orderedMultiset) indexOf(v types.Field) (int, bool) {
	for i, existing := range s.values {
		if existing.Equal(v) {
			return i, true
		}
	}
	return -1, false
}

func (s *orderedMultiset) add(v types.Field) error {
	if i, ok := s.indexOf(v); ok {
		s.counts[i]++
		return nil
	}
	s.values = append(s.values, v)
	s.counts = append(s.counts, 1)
	return s.resort()
}

func (s *orderedMultiset) remove(v types.Field) {
	i, ok := s.indexOf(v)
	if !ok {
		return
	}
	s.counts[i]--
	if s.counts[i] <= 0 {
		s.values = append(s.values[:i], s.values[i+1:]...)
		s.counts = append(s.counts[:i], s.counts[i+1:]...)
	}
}

func (s *orderedMultiset) resort() error {
	idx := make([]int, len(s.values))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(i, j int) bool {
		cmp, err := expr.Compare(s.values[idx[i]], s.values[idx[j]])
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	if sortErr != nil {
		return sortErr
	}
	values := make([]types.Field, len(s.values))
	counts := make([]int, len(s.counts))
	for i, j := range idx {
		values[i] = s.values[j]
		counts[i] = s.counts[j]
	}
	s.values, s.counts = values, counts
	return nil
}

func (s *orderedMultiset) extreme(wantMax bool) (types.Field, bool) {
	if len(s.values) == 0 {
		return types.Field{}, false
	}
	if wantMax {
		return s.values[len(s.values)-1], true
	}
	return s.values[0], true
}

// orderedCompanionMultiset is like orderedMultiset but each ordering value
// carries a companion field (for MIN_VALUE/MAX_VALUE), and duplicates on
// the ordering value are kept distinct since they may carry different
// companions.
type orderedCompanionMultiset struct {
	keys       []types.Field
	companions []types.Field
}

func (s *orderedCompanionMultiset) add(key, companion types.Field) error {
	s.keys = append(s.keys, key)
	s.companions = append(s.companions, companion)
	return s.resort()
}

func (s *orderedCompanionMultiset) remove(key, companion types.Field) {
	for i := range s.keys {
		if s.keys[i].Equal(key) && s.companions[i].Equal(companion) {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			s.companions = append(s.companions[:i], s.companions[i+1:]...)
			return
		}
	}
}

func (s *orderedCompanionMultiset) resort() error {
	type pair struct {
		key       types.Field
		companion types.Field
	}
	pairs := make([]pair, len(s.keys))
	for i := range s.keys {
		pairs[i] = pair{s.keys[i], s.companions[i]}
	}
	var sortErr error
	sort.SliceStable(pairs, func(i, j int) bool {
		cmp, err := expr.Compare(pairs[i].key, pairs[j].key)
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	if sortErr != nil {
		return sortErr
	}
	for i, p := range pairs {
		s.keys[i] = p.key
		s.companions[i] = p.companion
	}
	return nil
}

func (s *orderedCompanionMultiset) extreme(wantMax bool) (types.Field, bool) {
	if len(s.keys) == 0 {
		return types.Field{}, false
	}
	if wantMax {
		return s.companions[len(s.companions)-1], true
	}
	return s.companions[0], true
}

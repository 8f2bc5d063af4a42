package fusion

import (
	"math"
	"sort"
)

const (
	// rrfK is the reciprocal-rank-fusion constant.
	rrfK = 60
	// bm25NormK maps raw BM25 into [0,1): s/(s+K').
	bm25NormK = 8.0
	// tieEpsilon: fused scores closer than this fall back to RRF order.
	tieEpsilon = 0.001

	// The weights sum past 1.0 on purpose: items both engines agree on
	// outrank any single-engine hit of equal strength.
	weightSemantic = 0.8
	weightLexical  = 0.3
)

// NormalizeBM25 maps an unbounded BM25 score into [0,1) monotonically.
func NormalizeBM25(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (s + bm25NormK)
}

// Keyed is any ranked domain type.
type Keyed interface {
	Key() string
}

// Merge combines a semantic and a keyword list per the mode rule and
// returns at most limit items. The semantic list must arrive ordered by
// SemanticScore with that field set; the keyword list ordered by BM25Raw
// with that field set. merge combines the payload fields of an item both
// engines found (scores are handled here); it may be nil when one input
// list is always empty.
func Merge[T Keyed](mode Mode, semantic, keyword []T, scores func(*T) *Scores, merge func(sem, kw T) T, limit int) []T {
	switch mode {
	case ModeSemantic:
		out := truncate(copyList(semantic), limit)
		for i := range out {
			s := scores(&out[i])
			s.SemanticRank = i + 1
			s.FusedScore = s.SemanticScore
			s.RRFScore = 1.0 / float64(rrfK+i+1)
			s.MatchType = MatchSemantic
		}
		return out
	case ModeKeyword:
		out := truncate(copyList(keyword), limit)
		for i := range out {
			s := scores(&out[i])
			s.KeywordRank = i + 1
			s.KeywordScore = NormalizeBM25(s.BM25Raw)
			s.FusedScore = s.KeywordScore
			s.RRFScore = 1.0 / float64(rrfK+i+1)
			s.MatchType = MatchKeyword
		}
		return out
	default:
		return fuseHybrid(semantic, keyword, scores, merge, limit)
	}
}

func fuseHybrid[T Keyed](semantic, keyword []T, scores func(*T) *Scores, merge func(sem, kw T) T, limit int) []T {
	type entry struct {
		item    T
		haveSem bool
		haveKw  bool
	}
	byKey := make(map[string]*entry, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for i, item := range semantic {
		key := item.Key()
		if key == "" {
			continue
		}
		it := item
		s := scores(&it)
		s.SemanticRank = i + 1
		s.RRFScore = 1.0 / float64(rrfK+i+1)
		byKey[key] = &entry{item: it, haveSem: true}
		order = append(order, key)
	}

	for i, item := range keyword {
		key := item.Key()
		if key == "" {
			continue
		}
		kwRank := i + 1
		rrf := 1.0 / float64(rrfK+kwRank)
		if e, ok := byKey[key]; ok {
			semScores := *scores(&e.item)
			merged := e.item
			if merge != nil {
				merged = merge(e.item, item)
			}
			ms := scores(&merged)
			*ms = semScores
			ms.BM25Raw = scores(&item).BM25Raw
			ms.KeywordRank = kwRank
			ms.RRFScore += rrf
			e.item = merged
			e.haveKw = true
			continue
		}
		it := item
		s := scores(&it)
		s.KeywordRank = kwRank
		s.RRFScore = rrf
		byKey[key] = &entry{item: it, haveKw: true}
		order = append(order, key)
	}

	out := make([]T, 0, len(order))
	for _, key := range order {
		e := byKey[key]
		s := scores(&e.item)
		s.KeywordScore = NormalizeBM25(s.BM25Raw)
		switch {
		case e.haveSem && e.haveKw:
			s.MatchType = MatchBoth
			s.FusedScore = weightSemantic*s.SemanticScore + weightLexical*s.KeywordScore
		case e.haveSem:
			s.MatchType = MatchSemantic
			s.FusedScore = s.SemanticScore
		default:
			s.MatchType = MatchKeyword
			s.FusedScore = s.KeywordScore
		}
		out = append(out, e.item)
	}

	sortRanked(out, scores)
	return truncate(out, limit)
}

// sortRanked orders by fused score descending, breaking near-ties by
// RRF. The stable sort keeps identical (fused, RRF) pairs deterministic.
func sortRanked[T any](items []T, scores func(*T) *Scores) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := scores(&items[i]), scores(&items[j])
		if math.Abs(a.FusedScore-b.FusedScore) < tieEpsilon {
			return a.RRFScore > b.RRFScore
		}
		return a.FusedScore > b.FusedScore
	})
}

func copyList[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

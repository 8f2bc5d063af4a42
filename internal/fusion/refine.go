package fusion

import "sort"

// WeightedList is one query-variant's result list with its weight.
type WeightedList[T Keyed] struct {
	Weight float64
	Items  []T
}

// DedupeWeighted merges the per-variant result lists of refine mode.
// Each appearance of a key at rank r (0-based) in a variant with weight
// w contributes w/(K+r+1) to a weighted RRF, so an item found by every
// variant outranks one found once at the same rank. Payload fields merge
// through keepBest; the Scores fields merge here by keeping the maximum
// of every signal.
func DedupeWeighted[T Keyed](variants []WeightedList[T], scores func(*T) *Scores, keepBest func(a, b T) T) []T {
	type entry struct {
		item T
		rrf  float64
	}
	byKey := make(map[string]*entry)
	order := make([]string, 0)

	for _, v := range variants {
		for r, item := range v.Items {
			key := item.Key()
			if key == "" {
				continue
			}
			contribution := v.Weight / float64(rrfK+r+1)
			e, ok := byKey[key]
			if !ok {
				byKey[key] = &entry{item: item, rrf: contribution}
				order = append(order, key)
				continue
			}
			e.rrf += contribution
			prev := *scores(&e.item)
			merged := e.item
			if keepBest != nil {
				merged = keepBest(e.item, item)
			}
			ms := scores(&merged)
			*ms = maxScores(prev, *scores(&item))
			e.item = merged
		}
	}

	out := make([]T, 0, len(order))
	for _, key := range order {
		e := byKey[key]
		s := scores(&e.item)
		s.RRFScore = e.rrf
		s.FusedScore = e.rrf
		out = append(out, e.item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return scores(&out[i]).RRFScore > scores(&out[j]).RRFScore
	})
	return out
}

// maxScores keeps the strongest value of every numeric signal and the
// broadest match type.
func maxScores(a, b Scores) Scores {
	out := a
	if b.SemanticScore > out.SemanticScore {
		out.SemanticScore = b.SemanticScore
	}
	if b.BM25Raw > out.BM25Raw {
		out.BM25Raw = b.BM25Raw
	}
	if b.KeywordScore > out.KeywordScore {
		out.KeywordScore = b.KeywordScore
	}
	if out.SemanticRank == 0 || (b.SemanticRank != 0 && b.SemanticRank < out.SemanticRank) {
		out.SemanticRank = b.SemanticRank
	}
	if out.KeywordRank == 0 || (b.KeywordRank != 0 && b.KeywordRank < out.KeywordRank) {
		out.KeywordRank = b.KeywordRank
	}
	if a.MatchType != b.MatchType && a.MatchType != "" && b.MatchType != "" {
		out.MatchType = MatchBoth
	} else if out.MatchType == "" {
		out.MatchType = b.MatchType
	}
	return out
}

// BestSnippet picks the more informative of two snippets; the longer
// one wins, first on ties.
func BestSnippet(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}

package usecase

import (
	"sort"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

const (
	defaultRRFK        = 60
	defaultDedupPrefix = 150
	defaultFusionTopN  = 150
)

// fuseRankRRF merges the semantic and lexical rankings with Reciprocal
// Rank Fusion. Each list contributes 1/(rank+K) per candidate, ranks
// 1-based. Candidates are identified by a content prefix; a candidate
// present in both lists gets its contributions summed and both origins
// recorded. Scores are normalized by the batch maximum, the output is
// sorted descending and truncated to topN.
//
// The semantic list is processed first, and the sort is stable over
// insertion order, so equal scores keep semantic-first ordering. Pure
// function: identical inputs produce identical output.
func fuseRankRRF(semantic, lexical []domain.Candidate, rrfK, prefixLen, topN int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	if prefixLen <= 0 {
		prefixLen = defaultDedupPrefix
	}
	if topN <= 0 {
		topN = defaultFusionTopN
	}

	combined := make([]domain.FusedResult, 0, len(semantic)+len(lexical))
	byKey := make(map[string]int, len(semantic)+len(lexical))

	addList := func(list []domain.Candidate) {
		for rank, cand := range list {
			score := 1.0 / float64(rank+1+rrfK)
			key := contentKey(cand.Content, prefixLen)
			if i, ok := byKey[key]; ok {
				combined[i].FusionScore += score
				combined[i].Sources = append(combined[i].Sources, cand.Origin)
				continue
			}
			byKey[key] = len(combined)
			combined = append(combined, domain.FusedResult{
				Candidate:   cand,
				FusionScore: score,
				Sources:     []domain.Origin{cand.Origin},
			})
		}
	}

	addList(semantic)
	addList(lexical)

	if len(combined) == 0 {
		return combined
	}

	maxScore := combined[0].FusionScore
	for _, res := range combined[1:] {
		if res.FusionScore > maxScore {
			maxScore = res.FusionScore
		}
	}
	for i := range combined {
		combined[i].FusionScore /= maxScore
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].FusionScore > combined[j].FusionScore
	})

	if len(combined) > topN {
		combined = combined[:topN]
	}
	return combined
}

// contentKey is the dedup identity: the first prefixLen bytes of the
// content, shorter contents taken whole.
func contentKey(content string, prefixLen int) string {
	if len(content) <= prefixLen {
		return content
	}
	return content[:prefixLen]
}

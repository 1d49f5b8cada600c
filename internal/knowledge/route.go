package knowledge

import "strings"

// ScoringPolicy names the routing weights so the constants can be tuned and
// tested independently of the routing loop that consumes them.
type ScoringPolicy struct {
	TitleWeight         float64
	SynonymWeight       float64
	MustTermWeight      float64
	CanonicalMultiplier float64
	PriorityCeiling     float64
	SafetyCategory      string
	SafetyBonus         float64
	SafetyMinMustTerms  int
}

func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		TitleWeight:         100,
		SynonymWeight:       50,
		MustTermWeight:      75,
		CanonicalMultiplier: 1.5,
		PriorityCeiling:     6,
		SafetyCategory:      "safety",
		SafetyBonus:         200,
		SafetyMinMustTerms:  2,
	}
}

// BestMatch scores the query against every catalog item and returns the
// single highest scorer, or nil when nothing overlaps. Ties keep the first
// item in catalog order; the order is the load order of the JSON array, so
// routing is deterministic for a given index file, but callers should not
// rely on any particular tie-break.
//
// Routing always runs on the original query, never the expanded one.
func BestMatch(idx *Index, query string, policy ScoringPolicy) *Match {
	lowerQuery := strings.ToLower(query)

	var best *Match
	for i := range idx.Items {
		item := &idx.Items[i]
		score, mustHits := scoreItem(lowerQuery, item, policy)
		if score <= 0 {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{
				Item:         item,
				Score:        score,
				MustTermHits: mustHits,
			}
		}
	}
	return best
}

// scoreItem computes the additive routing score: title containment is worth
// TitleWeight, each synonym hit SynonymWeight, each must-term hit
// MustTermWeight. Canonical items are multiplied by CanonicalMultiplier and
// every item by (PriorityCeiling - priority), so priority 1 outweighs
// priority 5. Canonical safety items with enough must-term hits get a flat
// SafetyBonus on top: safety content must win routing when it applies.
func scoreItem(lowerQuery string, item *Item, policy ScoringPolicy) (float64, int) {
	score := 0.0

	if item.Title != "" && strings.Contains(lowerQuery, strings.ToLower(item.Title)) {
		score += policy.TitleWeight
	}

	for _, syn := range item.Synonyms {
		if syn != "" && strings.Contains(lowerQuery, strings.ToLower(syn)) {
			score += policy.SynonymWeight
		}
	}

	mustHits := 0
	for _, term := range item.MustTerms {
		if term != "" && strings.Contains(lowerQuery, strings.ToLower(term)) {
			mustHits++
			score += policy.MustTermWeight
		}
	}

	if score == 0 {
		return 0, 0
	}

	if item.Canonical {
		score *= policy.CanonicalMultiplier
	}

	score *= policy.PriorityCeiling - float64(item.Priority)

	if item.Canonical && item.Category == policy.SafetyCategory && mustHits >= policy.SafetyMinMustTerms {
		score += policy.SafetyBonus
	}

	return score, mustHits
}

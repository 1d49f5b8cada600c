package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestMatchNoOverlapReturnsNil(t *testing.T) {
	idx := testIndex()

	match := BestMatch(idx, "completely unrelated cooking question", DefaultScoringPolicy())

	assert.Nil(t, match)
}

func TestBestMatchSafetyCanonicalScore(t *testing.T) {
	idx := testIndex()

	// Title hit (+100) and both must-terms (+75 each) = 250, canonical
	// x1.5 = 375, priority 1 multiplier (6-1) = 1875, safety bonus +200.
	match := BestMatch(idx, "what does direct supervision mean, one up, one down?", DefaultScoringPolicy())

	require.NotNil(t, match)
	assert.Equal(t, "safety-direct-supervision", match.Item.ID)
	assert.InDelta(t, 2075.0, match.Score, 0.001)
	assert.Equal(t, 2, match.MustTermHits)
}

func TestBestMatchSafetyBonusRequiresMustTermHits(t *testing.T) {
	idx := testIndex()
	policy := DefaultScoringPolicy()

	// Title only: one must-term hit via "direct supervision" being both
	// title and must-term, below the two-hit bar for the flat bonus.
	match := BestMatch(idx, "direct supervision", policy)

	require.NotNil(t, match)
	assert.Equal(t, 1, match.MustTermHits)
	// (100 + 75) x 1.5 x 5, no +200.
	assert.InDelta(t, 1312.5, match.Score, 0.001)
}

func TestBestMatchSafetyOutranksEqualNonSafety(t *testing.T) {
	policy := DefaultScoringPolicy()
	idx := &Index{
		Items: []Item{
			{
				ID: "general", Title: "rescue drill", Category: "training",
				Canonical: true, MustTerms: []string{"blackout", "rescue"}, Priority: 1,
			},
			{
				ID: "safety", Title: "rescue drill", Category: "safety",
				Canonical: true, MustTerms: []string{"blackout", "rescue"}, Priority: 1,
			},
		},
	}

	match := BestMatch(idx, "rescue drill after a blackout", policy)

	require.NotNil(t, match)
	assert.Equal(t, "safety", match.Item.ID)
}

func TestBestMatchTieKeepsFirstCatalogItem(t *testing.T) {
	idx := &Index{
		Items: []Item{
			{ID: "first", Title: "static apnea", Priority: 3},
			{ID: "second", Title: "static apnea", Priority: 3},
		},
	}

	match := BestMatch(idx, "static apnea tips", DefaultScoringPolicy())

	require.NotNil(t, match)
	assert.Equal(t, "first", match.Item.ID)
}

func TestBestMatchPriorityOrdersEqualContent(t *testing.T) {
	idx := &Index{
		Items: []Item{
			{ID: "low", Title: "co2 table", Priority: 5},
			{ID: "high", Title: "co2 table", Priority: 1},
		},
	}

	match := BestMatch(idx, "how do I build a co2 table", DefaultScoringPolicy())

	require.NotNil(t, match)
	assert.Equal(t, "high", match.Item.ID)
}

func TestScoreItemZeroAdditiveSkipsMultipliers(t *testing.T) {
	policy := DefaultScoringPolicy()
	item := &Item{Title: "mouthfill", Canonical: true, Category: "safety", Priority: 1}

	score, hits := scoreItem("unrelated", item, policy)

	assert.Zero(t, score)
	assert.Zero(t, hits)
}

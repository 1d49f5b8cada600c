package retrieval

import (
	"sort"
	"strings"

	"github.com/kovaldeep/backend/internal/knowledge"
)

// Chunk is one retrieved passage with its similarity score and metadata.
type Chunk struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]interface{}
}

// BoostPolicy names the rerank multipliers. Boosts apply only when the
// routing match clears StrongMatchThreshold; below it the reranker is a
// pure passthrough.
type BoostPolicy struct {
	StrongMatchThreshold float64
	SameFileBoost        float64
	MustTermBoost        float64
	CanonicalBoost       float64
}

func DefaultBoostPolicy() BoostPolicy {
	return BoostPolicy{
		StrongMatchThreshold: 150,
		SameFileBoost:        2.0,
		MustTermBoost:        1.5,
		CanonicalBoost:       1.3,
	}
}

// Rerank reorders chunks by similarity score times an index-aware boost:
// x2.0 for chunks from the matched item's source file, x1.5 per must-term
// found in the chunk text (compounding per hit), x1.3 when the matched item
// is canonical. Stateless and deterministic; the sort is stable, so
// score-equal chunks keep their retrieval order.
func Rerank(chunks []Chunk, match *knowledge.Match, policy BoostPolicy) []Chunk {
	reranked := make([]Chunk, len(chunks))
	copy(reranked, chunks)

	strong := match != nil && match.Score > policy.StrongMatchThreshold
	if strong {
		for i := range reranked {
			reranked[i].Score *= chunkBoost(&reranked[i], match.Item, policy)
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	return reranked
}

func chunkBoost(chunk *Chunk, item *knowledge.Item, policy BoostPolicy) float64 {
	boost := 1.0

	if item.FilePath != "" && chunkFilePath(chunk) == item.FilePath {
		boost *= policy.SameFileBoost
	}

	lowerText := strings.ToLower(chunk.Text)
	for _, term := range item.MustTerms {
		if term != "" && strings.Contains(lowerText, strings.ToLower(term)) {
			boost *= policy.MustTermBoost
		}
	}

	if item.Canonical {
		boost *= policy.CanonicalBoost
	}

	return boost
}

func chunkFilePath(chunk *Chunk) string {
	if chunk.Metadata == nil {
		return ""
	}
	if fp, ok := chunk.Metadata["file_path"].(string); ok {
		return fp
	}
	return ""
}

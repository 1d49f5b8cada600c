package retrieval

import "github.com/kovaldeep/backend/internal/knowledge"

// DecideVerbatim reports whether the response must surface the catalog's
// fixed answer text instead of paraphrase-eligible chunks: the top reranked
// chunk clears the confidence threshold, the routed item is canonical, and
// it carries a bot_must_say text. For safety-critical content (exact
// supervision rules and the like) retrieval must not let generation drift
// the wording.
func DecideVerbatim(top *Chunk, match *knowledge.Match, confidence float64) bool {
	if top == nil || match == nil || match.Item == nil {
		return false
	}
	if !match.Item.Canonical || match.Item.BotMustSay == "" {
		return false
	}
	return top.Score >= confidence
}

package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kovaldeep/backend/internal/knowledge"
)

func verbatimMatch() *knowledge.Match {
	return &knowledge.Match{
		Item: &knowledge.Item{
			ID:         "safety-supervision",
			Category:   "safety",
			Canonical:  true,
			BotMustSay: "Never dive alone. One up, one down, always.",
		},
		Score: 900,
	}
}

func TestDecideVerbatim(t *testing.T) {
	tests := []struct {
		name       string
		top        *Chunk
		match      *knowledge.Match
		confidence float64
		want       bool
	}{
		{
			name:       "all conditions met",
			top:        &Chunk{Score: 0.9},
			match:      verbatimMatch(),
			confidence: 0.85,
			want:       true,
		},
		{
			name:       "score exactly at confidence",
			top:        &Chunk{Score: 0.85},
			match:      verbatimMatch(),
			confidence: 0.85,
			want:       true,
		},
		{
			name:       "score below confidence",
			top:        &Chunk{Score: 0.84},
			match:      verbatimMatch(),
			confidence: 0.85,
			want:       false,
		},
		{
			name: "non-canonical item never verbatim",
			top:  &Chunk{Score: 0.99},
			match: &knowledge.Match{
				Item: &knowledge.Item{Canonical: false, BotMustSay: "text"},
			},
			confidence: 0.85,
			want:       false,
		},
		{
			name: "canonical without bot_must_say",
			top:  &Chunk{Score: 0.99},
			match: &knowledge.Match{
				Item: &knowledge.Item{Canonical: true},
			},
			confidence: 0.85,
			want:       false,
		},
		{
			name:       "no routing match",
			top:        &Chunk{Score: 0.99},
			match:      nil,
			confidence: 0.85,
			want:       false,
		},
		{
			name:       "no top chunk",
			top:        nil,
			match:      verbatimMatch(),
			confidence: 0.85,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideVerbatim(tt.top, tt.match, tt.confidence))
		})
	}
}

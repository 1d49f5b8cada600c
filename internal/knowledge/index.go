// Package knowledge holds the canonical-topic catalog the retrieval pipeline
// routes against: a read-only JSON document produced offline by ingestion,
// loaded once and cached for the process lifetime.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/kovaldeep/backend/pkg/logger"
)

// Item is one canonical topic entry. Synonyms and must_terms are compared
// case-insensitively by substring containment; no tokenizing or stemming.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Author      string   `json:"author"`
	Canonical   bool     `json:"canonical"`
	Synonyms    []string `json:"synonyms"`
	MustTerms   []string `json:"must_terms"`
	BotMustSay  string   `json:"bot_must_say,omitempty"`
	FilePath    string   `json:"file_path"`
	ChunkIDs    []string `json:"chunk_ids"`
	Priority    int      `json:"priority"`
	ContentHash string   `json:"content_hash"`
}

type Defaults struct {
	TopK       int     `json:"top_k"`
	Alpha      float64 `json:"alpha"`
	Confidence float64 `json:"confidence"`
}

// Index is the full catalog. Immutable after load.
type Index struct {
	Items      []Item   `json:"items"`
	Defaults   Defaults `json:"defaults"`
	Categories []string `json:"categories"`
}

// Match pairs the single best-scoring Item with its score for one query.
// Serializable: retrieval results carry the match through the response
// cache.
type Match struct {
	Item         *Item   `json:"item"`
	Score        float64 `json:"score"`
	MustTermHits int     `json:"must_term_hits"`
}

// Loader resolves and caches the catalog. The configured path is tried
// first, then the fallback candidates in order; first existing file wins.
// A missing catalog degrades to an empty index rather than an error so the
// query path can still serve plain vector results.
type Loader struct {
	path      string
	fallbacks []string

	once  sync.Once
	index *Index
}

func NewLoader(path string, fallbacks []string) *Loader {
	return &Loader{
		path:      path,
		fallbacks: fallbacks,
	}
}

// Load returns the cached catalog, reading it on first call.
func (l *Loader) Load() *Index {
	l.once.Do(func() {
		l.index = l.read()
	})
	return l.index
}

func (l *Loader) read() *Index {
	candidates := append([]string{l.path}, l.fallbacks...)
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}

		var idx Index
		if err := json.Unmarshal(data, &idx); err != nil {
			logger.Warn("Knowledge index file is malformed, skipping",
				zap.String("path", candidate),
				zap.Error(err),
			)
			continue
		}

		logger.Info("Knowledge index loaded",
			zap.String("path", candidate),
			zap.Int("items", len(idx.Items)),
			zap.Int("categories", len(idx.Categories)),
		)
		return &idx
	}

	logger.Warn("Knowledge index not found, routing disabled",
		zap.Strings("candidates", candidates),
	)
	return &Index{}
}

// Write serializes the catalog to path. Used only by ingestion.
func (idx *Index) Write(path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge index: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write knowledge index: %w", err)
	}
	return nil
}

// Package retrieval composes query expansion, catalog routing, vector
// search, index-aware reranking, and the verbatim decision into one
// request/response cycle.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/kovaldeep/backend/internal/cache/redis"
	"github.com/kovaldeep/backend/internal/knowledge"
	"github.com/kovaldeep/backend/internal/metrics"
	"github.com/kovaldeep/backend/internal/vector/pinecone"
	"github.com/kovaldeep/backend/pkg/hashutil"
	"github.com/kovaldeep/backend/pkg/logger"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs kNN search against the vector index.
type Searcher interface {
	Query(ctx context.Context, req pinecone.QueryRequest) ([]pinecone.Match, error)
}

// Options are the caller-facing knobs for one query. Zero values fall back
// to the service defaults.
type Options struct {
	TopK            int
	Threshold       float64
	Confidence      float64
	Namespace       string
	IncludeMetadata bool
}

// Result is the upstream consumer contract: parallel chunk/score/metadata
// slices plus the routing match and the verbatim decision. The whole struct
// round-trips through the Redis response cache, so every field carries a
// JSON tag; a cache hit must be indistinguishable from a fresh call.
type Result struct {
	Chunks     []string                 `json:"chunks"`
	Scores     []float64                `json:"scores"`
	Metadata   []map[string]interface{} `json:"metadata"`
	IndexMatch *knowledge.Match         `json:"index_match,omitempty"`
	Verbatim   bool                     `json:"verbatim"`
	BotMustSay string                   `json:"bot_must_say,omitempty"`
}

type Defaults struct {
	TopK                    int
	RetrievalTopK           int
	Threshold               float64
	Confidence              float64
	MaxConcurrentNamespaces int
	Namespace               string
}

type Service struct {
	embedder Embedder
	searcher Searcher
	loader   *knowledge.Loader
	scoring  knowledge.ScoringPolicy
	boosts   BoostPolicy
	defaults Defaults
	cache    *rediscache.Client
	cacheTTL time.Duration
}

// NewService wires the pipeline. cache may be nil.
func NewService(embedder Embedder, searcher Searcher, loader *knowledge.Loader, defaults Defaults, cache *rediscache.Client, cacheTTL time.Duration) *Service {
	if defaults.TopK == 0 {
		defaults.TopK = 5
	}
	if defaults.RetrievalTopK == 0 {
		defaults.RetrievalTopK = 10
	}
	if defaults.Threshold == 0 {
		defaults.Threshold = 0.3
	}
	if defaults.Confidence == 0 {
		defaults.Confidence = 0.85
	}
	if defaults.MaxConcurrentNamespaces == 0 {
		defaults.MaxConcurrentNamespaces = 5
	}

	return &Service{
		embedder: embedder,
		searcher: searcher,
		loader:   loader,
		scoring:  knowledge.DefaultScoringPolicy(),
		boosts:   DefaultBoostPolicy(),
		defaults: defaults,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Query runs the full cycle: expand, route, search wide and shallow, rerank,
// decide verbatim, truncate. Embedding and index failures propagate; the
// caller degrades to a no-knowledge-context response. Zero retrieved chunks
// return an empty result without touching the reranker.
func (s *Service) Query(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	topK := opts.TopK
	if topK <= 0 {
		topK = s.defaults.TopK
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.defaults.Threshold
	}
	confidence := opts.Confidence
	if confidence <= 0 {
		confidence = s.defaults.Confidence
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = s.defaults.Namespace
	}

	cacheKey := hashutil.Sum(fmt.Sprintf("%s|%d|%.3f|%.3f|%s|%t", query, topK, threshold, confidence, namespace, opts.IncludeMetadata))
	if s.cache != nil {
		var cached Result
		if ok, err := s.cache.GetResponse(ctx, cacheKey, &cached); err == nil && ok {
			metrics.CacheHits.WithLabelValues("response").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("response").Inc()
	}

	idx := s.loader.Load()

	variants := knowledge.Expand(idx, query)
	expanded := strings.Join(variants, " OR ")

	// Routing scores the original query, not the expanded one: expansion
	// serves recall, routing serves precision.
	match := knowledge.BestMatch(idx, query, s.scoring)

	vector, err := s.embedder.Embed(ctx, expanded)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("embedding").Inc()
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Wide retrieval at a low threshold: reranking reorders with a
	// better-informed score, and over-filtering here would discard chunks
	// the index-aware boost would have promoted. Metadata is always
	// requested because chunk text and file_path live in it; the caller's
	// IncludeMetadata only controls the response shape.
	matches, err := s.searcher.Query(ctx, pinecone.QueryRequest{
		Vector:          vector,
		TopK:            s.defaults.RetrievalTopK,
		Namespace:       namespace,
		IncludeMetadata: true,
	})
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("vector_index").Inc()
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := chunksFromMatches(matches, threshold)
	if len(chunks) == 0 {
		metrics.QueryTotal.WithLabelValues("empty").Inc()
		return &Result{
			Chunks:   []string{},
			Scores:   []float64{},
			Metadata: []map[string]interface{}{},
			Verbatim: false,
		}, nil
	}

	reranked := Rerank(chunks, match, s.boosts)

	var result *Result
	if DecideVerbatim(&reranked[0], match, confidence) {
		metrics.VerbatimTotal.Inc()
		support := reranked
		if len(support) > 2 {
			support = support[:2]
		}
		result = buildResult(support, match, true, match.Item.BotMustSay, opts.IncludeMetadata)
		logger.Info("Verbatim answer selected",
			zap.String("item", match.Item.ID),
			zap.Float64("match_score", match.Score),
			zap.Float64("top_chunk_score", reranked[0].Score),
		)
	} else {
		if len(reranked) > topK {
			reranked = reranked[:topK]
		}
		result = buildResult(reranked, match, false, "", opts.IncludeMetadata)
	}

	if s.cache != nil {
		if err := s.cache.SetResponse(ctx, cacheKey, result, s.cacheTTL); err != nil {
			logger.Warn("Failed to cache retrieval response", zap.Error(err))
		}
	}

	metrics.QueryTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	metrics.ChunksReturned.Observe(float64(len(result.Chunks)))

	logger.Info("Query processed",
		zap.String("query", query),
		zap.Int("variants", len(variants)),
		zap.Int("chunks", len(result.Chunks)),
		zap.Bool("verbatim", result.Verbatim),
	)

	return result, nil
}

// QueryNamespaces searches several namespaces concurrently with the same
// query, bounded by MaxConcurrentNamespaces. One namespace failing yields
// an empty list for that namespace only; the batch itself never fails once
// the query vector exists.
func (s *Service) QueryNamespaces(ctx context.Context, query string, namespaces []string, opts Options) (map[string][]Chunk, error) {
	start := time.Now()

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.defaults.Threshold
	}

	idx := s.loader.Load()
	expanded := strings.Join(knowledge.Expand(idx, query), " OR ")
	match := knowledge.BestMatch(idx, query, s.scoring)

	vector, err := s.embedder.Embed(ctx, expanded)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("embedding").Inc()
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := make(map[string][]Chunk, len(namespaces))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.defaults.MaxConcurrentNamespaces)

	for _, ns := range namespaces {
		wg.Add(1)
		go func(ns string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			matches, err := s.searcher.Query(ctx, pinecone.QueryRequest{
				Vector:          vector,
				TopK:            s.defaults.RetrievalTopK,
				Namespace:       ns,
				IncludeMetadata: true,
				Quick:           true,
			})

			var chunks []Chunk
			if err != nil {
				metrics.UpstreamErrors.WithLabelValues("vector_index").Inc()
				logger.Warn("Namespace query failed, returning empty list",
					zap.String("namespace", ns),
					zap.Error(err),
				)
				chunks = []Chunk{}
			} else {
				chunks = Rerank(chunksFromMatches(matches, threshold), match, s.boosts)
			}

			mu.Lock()
			results[ns] = chunks
			mu.Unlock()
		}(ns)
	}
	wg.Wait()

	metrics.QueryDuration.WithLabelValues("multi_namespace").Observe(time.Since(start).Seconds())

	return results, nil
}

// Catalog exposes the loaded index so the API layer does not reach around
// the service.
func (s *Service) Catalog() *knowledge.Index {
	return s.loader.Load()
}

func chunksFromMatches(matches []pinecone.Match, threshold float64) []Chunk {
	chunks := make([]Chunk, 0, len(matches))
	for _, m := range matches {
		if m.Score < threshold {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:       m.ID,
			Score:    m.Score,
			Text:     matchText(m),
			Metadata: m.Metadata,
		})
	}
	return chunks
}

func matchText(m pinecone.Match) string {
	if m.Metadata == nil {
		return ""
	}
	if text, ok := m.Metadata["text"].(string); ok {
		return text
	}
	return ""
}

func buildResult(chunks []Chunk, match *knowledge.Match, verbatim bool, botMustSay string, includeMetadata bool) *Result {
	result := &Result{
		Chunks:     make([]string, 0, len(chunks)),
		Scores:     make([]float64, 0, len(chunks)),
		Metadata:   make([]map[string]interface{}, 0, len(chunks)),
		IndexMatch: match,
		Verbatim:   verbatim,
		BotMustSay: botMustSay,
	}
	for _, c := range chunks {
		result.Chunks = append(result.Chunks, c.Text)
		result.Scores = append(result.Scores, c.Score)
		if includeMetadata {
			result.Metadata = append(result.Metadata, c.Metadata)
		}
	}
	return result
}

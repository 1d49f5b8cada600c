package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovaldeep/backend/internal/knowledge"
	"github.com/kovaldeep/backend/internal/vector/pinecone"
)

type fakeEmbedder struct {
	vector  []float32
	err     error
	calls   int
	lastRaw string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	f.lastRaw = text
	return f.vector, f.err
}

type fakeSearcher struct {
	mu       sync.Mutex
	matches  map[string][]pinecone.Match
	errs     map[string]error
	requests []pinecone.QueryRequest
}

func (f *fakeSearcher) Query(ctx context.Context, req pinecone.QueryRequest) ([]pinecone.Match, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := f.errs[req.Namespace]; err != nil {
		return nil, err
	}
	return f.matches[req.Namespace], nil
}

func writeIndex(t *testing.T, idx *knowledge.Index) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge-index.json")
	data, err := json.Marshal(idx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func serviceIndex() *knowledge.Index {
	return &knowledge.Index{
		Items: []knowledge.Item{
			{
				ID:         "safety-supervision",
				Title:      "direct supervision",
				Category:   "safety",
				Canonical:  true,
				MustTerms:  []string{"one up, one down", "direct supervision"},
				BotMustSay: "Never dive without direct supervision. One up, one down.",
				FilePath:   "docs/safety/supervision.md",
				Priority:   1,
			},
		},
	}
}

func newTestService(t *testing.T, idx *knowledge.Index, embedder Embedder, searcher Searcher) *Service {
	t.Helper()
	loader := knowledge.NewLoader(writeIndex(t, idx), nil)
	return NewService(embedder, searcher, loader, Defaults{}, nil, 0)
}

func TestQueryEmptyResultsReturnEmptyNotError(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	searcher := &fakeSearcher{}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	result, err := svc.Query(context.Background(), "anything", Options{})

	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Empty(t, result.Scores)
	assert.False(t, result.Verbatim)
}

func TestQueryFiltersBelowThreshold(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{
		matches: map[string][]pinecone.Match{
			"": {
				{ID: "keep", Score: 0.5, Metadata: map[string]interface{}{"text": "kept"}},
				{ID: "drop", Score: 0.2, Metadata: map[string]interface{}{"text": "dropped"}},
			},
		},
	}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	result, err := svc.Query(context.Background(), "anything", Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, result.Chunks)
}

func TestQueryUsesWideRetrievalTopK(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	_, err := svc.Query(context.Background(), "anything", Options{TopK: 3})

	require.NoError(t, err)
	require.Len(t, searcher.requests, 1)
	// The index is always asked for the wide candidate set; the caller's
	// top_k only truncates after reranking.
	assert.Equal(t, 10, searcher.requests[0].TopK)
	assert.True(t, searcher.requests[0].IncludeMetadata)
}

func TestQueryEmbedsExpandedQuery(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{}

	svc := newTestService(t, serviceIndex(), embedder, searcher)

	_, err := svc.Query(context.Background(), "direct supervision", Options{})

	require.NoError(t, err)
	assert.Contains(t, embedder.lastRaw, "direct supervision")
	assert.Contains(t, embedder.lastRaw, " OR ")
	assert.Contains(t, embedder.lastRaw, "one up, one down")
}

func TestQueryVerbatimBranch(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{
		matches: map[string][]pinecone.Match{
			"": {
				{ID: "c1", Score: 0.9, Metadata: map[string]interface{}{
					"text":      "One up, one down. Direct supervision is mandatory.",
					"file_path": "docs/safety/supervision.md",
				}},
				{ID: "c2", Score: 0.7, Metadata: map[string]interface{}{
					"text": "General safety notes.",
				}},
				{ID: "c3", Score: 0.6, Metadata: map[string]interface{}{
					"text": "More notes.",
				}},
			},
		},
	}

	svc := newTestService(t, serviceIndex(), embedder, searcher)

	result, err := svc.Query(context.Background(), "what is direct supervision, one up, one down?", Options{})

	require.NoError(t, err)
	assert.True(t, result.Verbatim)
	assert.Equal(t, "Never dive without direct supervision. One up, one down.", result.BotMustSay)
	// Verbatim responses carry at most the top two chunks as support.
	assert.LessOrEqual(t, len(result.Chunks), 2)
	assert.Equal(t, "One up, one down. Direct supervision is mandatory.", result.Chunks[0])
}

func TestQueryTruncatesToCallerTopK(t *testing.T) {
	matches := make([]pinecone.Match, 0, 8)
	for i := 0; i < 8; i++ {
		matches = append(matches, pinecone.Match{
			ID:    string(rune('a' + i)),
			Score: 0.9 - float64(i)*0.05,
			Metadata: map[string]interface{}{
				"text": "chunk",
			},
		})
	}

	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{matches: map[string][]pinecone.Match{"": matches}}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	result, err := svc.Query(context.Background(), "anything", Options{TopK: 3})

	require.NoError(t, err)
	assert.Len(t, result.Chunks, 3)
	assert.False(t, result.Verbatim)
	// Scores descend.
	for i := 1; i < len(result.Scores); i++ {
		assert.GreaterOrEqual(t, result.Scores[i-1], result.Scores[i])
	}
}

func TestQueryEmbeddingFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("api down")}
	searcher := &fakeSearcher{}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	_, err := svc.Query(context.Background(), "anything", Options{})

	assert.Error(t, err)
	assert.Empty(t, searcher.requests)
}

func TestQuerySearchFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{errs: map[string]error{"": errors.New("index down")}}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	_, err := svc.Query(context.Background(), "anything", Options{})

	assert.Error(t, err)
}

func TestQueryNamespacesFailureYieldsEmptyList(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{
		matches: map[string][]pinecone.Match{
			"good": {
				{ID: "g1", Score: 0.8, Metadata: map[string]interface{}{"text": "good chunk"}},
			},
		},
		errs: map[string]error{"bad": errors.New("namespace unavailable")},
	}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	results, err := svc.QueryNamespaces(context.Background(), "anything", []string{"good", "bad"}, Options{})

	require.NoError(t, err)
	require.Contains(t, results, "good")
	require.Contains(t, results, "bad")
	assert.Len(t, results["good"], 1)
	assert.Empty(t, results["bad"])
}

func TestQueryNamespacesEmbedsOnce(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	searcher := &fakeSearcher{}

	svc := newTestService(t, &knowledge.Index{}, embedder, searcher)

	_, err := svc.QueryNamespaces(context.Background(), "anything",
		[]string{"ns1", "ns2", "ns3", "ns4", "ns5", "ns6", "ns7"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, searcher.requests, 7)
}

func TestResultCacheRoundTripPreservesIndexMatch(t *testing.T) {
	original := &Result{
		Chunks: []string{"chunk"},
		Scores: []float64{0.9},
		IndexMatch: &knowledge.Match{
			Item: &knowledge.Item{
				ID:         "safety-supervision",
				Canonical:  true,
				BotMustSay: "Never dive alone.",
			},
			Score:        2075,
			MustTermHits: 2,
		},
		Verbatim:   true,
		BotMustSay: "Never dive alone.",
	}

	// The response cache stores the marshaled Result; a hit must hand back
	// the same shape a fresh call would, routing match included.
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var cached Result
	require.NoError(t, json.Unmarshal(data, &cached))

	require.NotNil(t, cached.IndexMatch)
	require.NotNil(t, cached.IndexMatch.Item)
	assert.Equal(t, "safety-supervision", cached.IndexMatch.Item.ID)
	assert.Equal(t, 2075.0, cached.IndexMatch.Score)
	assert.Equal(t, 2, cached.IndexMatch.MustTermHits)
	assert.True(t, cached.Verbatim)
}

func TestQueryMetadataOnlyWhenRequested(t *testing.T) {
	matches := map[string][]pinecone.Match{
		"": {
			{ID: "c1", Score: 0.9, Metadata: map[string]interface{}{
				"text":      "chunk text",
				"file_path": "docs/a.md",
			}},
		},
	}
	embedder := &fakeEmbedder{vector: []float32{0.1}}

	svc := newTestService(t, &knowledge.Index{}, embedder, &fakeSearcher{matches: matches})

	result, err := svc.Query(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk text"}, result.Chunks)
	assert.Empty(t, result.Metadata)

	svc = newTestService(t, &knowledge.Index{}, embedder, &fakeSearcher{matches: matches})

	result, err = svc.Query(context.Background(), "anything", Options{IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, result.Metadata, 1)
	assert.Equal(t, "docs/a.md", result.Metadata[0]["file_path"])
}

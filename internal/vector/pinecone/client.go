// Package pinecone is a REST client for one named, pre-populated Pinecone
// index. It resolves the index's data-plane host once through the control
// plane and caches it; if resolution fails it falls back to the name-based
// host so a single control-plane hiccup does not make retrieval unusable.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kovaldeep/backend/pkg/circuitbreaker"
	"github.com/kovaldeep/backend/pkg/logger"
)

var (
	ErrMissingAPIKey    = errors.New("pinecone: api key is not configured")
	ErrMissingIndexName = errors.New("pinecone: index name is not configured")
)

// MaxTopK is the absolute bound on requested candidates per query.
const MaxTopK = 1000

const statsCacheTTL = 5 * time.Minute

type Config struct {
	APIKey        string
	ControllerURL string
	IndexName     string
	Environment   string
	QueryTimeout  time.Duration
	QuickTimeout  time.Duration
}

type Client struct {
	httpClient    *http.Client
	apiKey        string
	controllerURL string
	indexName     string
	environment   string
	queryTimeout  time.Duration
	quickTimeout  time.Duration
	cb            *circuitbreaker.CircuitBreaker

	hostMu sync.Mutex
	host   string

	statsMu     sync.Mutex
	stats       *IndexStats
	statsExpiry time.Time
}

// QueryRequest is one kNN search. Namespace is a logical partition; queries
// never cross namespaces implicitly. Filter is the structured Pinecone
// metadata predicate ($eq, $in, $gte, $and, ...) passed through untouched.
type QueryRequest struct {
	Vector          []float32
	TopK            int
	Namespace       string
	Filter          map[string]interface{}
	IncludeMetadata bool
	Quick           bool
}

type Match struct {
	ID        string                 `json:"id"`
	Score     float64                `json:"score"`
	Metadata  map[string]interface{} `json:"metadata"`
	Namespace string                 `json:"-"`
}

type Vector struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type IndexStats struct {
	TotalVectorCount int            `json:"totalVectorCount"`
	IndexFullness    float64        `json:"indexFullness"`
	Dimension        int            `json:"dimension"`
	Namespaces       map[string]int `json:"namespaces"`
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, ErrMissingIndexName
	}

	controllerURL := strings.TrimRight(cfg.ControllerURL, "/")
	if controllerURL == "" {
		controllerURL = "https://api.pinecone.io"
	}

	queryTimeout := cfg.QueryTimeout
	if queryTimeout == 0 {
		queryTimeout = 10 * time.Second
	}
	quickTimeout := cfg.QuickTimeout
	if quickTimeout == 0 {
		quickTimeout = 5 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("pinecone", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Pinecone client initialized",
		zap.String("index", cfg.IndexName),
		zap.String("controller", controllerURL),
	)

	return &Client{
		httpClient:    &http.Client{},
		apiKey:        cfg.APIKey,
		controllerURL: controllerURL,
		indexName:     cfg.IndexName,
		environment:   cfg.Environment,
		queryTimeout:  queryTimeout,
		quickTimeout:  quickTimeout,
		cb:            cb,
	}, nil
}

// resolveHost returns the cached data-plane host, resolving it through the
// control plane on first use. Resolution failure falls back to the
// name-based host so queries can still be attempted.
func (c *Client) resolveHost(ctx context.Context) string {
	c.hostMu.Lock()
	defer c.hostMu.Unlock()

	if c.host != "" {
		return c.host
	}

	host, err := c.describeIndexHost(ctx)
	if err != nil {
		fallback := fmt.Sprintf("%s.svc.%s.pinecone.io", c.indexName, c.environment)
		logger.Warn("Failed to resolve index host, using name-based fallback",
			zap.String("index", c.indexName),
			zap.String("fallback", fallback),
			zap.Error(err),
		)
		c.host = fallback
		return c.host
	}

	logger.Info("Index host resolved",
		zap.String("index", c.indexName),
		zap.String("host", host),
	)
	c.host = host
	return c.host
}

func (c *Client) describeIndexHost(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.quickTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/indexes/%s", c.controllerURL, c.indexName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("pinecone: create describe request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinecone: describe index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("pinecone: describe index status %s: %s", resp.Status, readSnippet(resp.Body))
	}

	var decoded struct {
		Host string `json:"host"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("pinecone: decode describe response: %w", err)
	}
	if decoded.Host == "" {
		return "", errors.New("pinecone: describe response has no host")
	}

	return decoded.Host, nil
}

// Query performs one kNN search. Timeouts are context deadlines, so a
// timed-out request is aborted, not left running unobserved. This path is
// deliberately not retried; a single failure propagates to the caller.
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, errors.New("pinecone: query vector is empty")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	timeout := c.queryTimeout
	if req.Quick {
		timeout = c.quickTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]interface{}{
		"vector":          req.Vector,
		"topK":            topK,
		"includeMetadata": req.IncludeMetadata,
	}
	if req.Namespace != "" {
		payload["namespace"] = req.Namespace
	}
	if req.Filter != nil {
		payload["filter"] = req.Filter
	}

	var matches []Match
	err := c.cb.Execute(ctx, func() error {
		var decoded struct {
			Matches []Match `json:"matches"`
		}
		if err := c.post(ctx, "/query", payload, &decoded); err != nil {
			return err
		}
		matches = decoded.Matches
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range matches {
		matches[i].Namespace = req.Namespace
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.String("namespace", req.Namespace),
		zap.Int("matches", len(matches)),
	)

	return matches, nil
}

// Upsert writes vectors into a namespace. Ingestion only.
func (c *Client) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"vectors": vectors,
	}
	if namespace != "" {
		payload["namespace"] = namespace
	}

	if err := c.post(ctx, "/vectors/upsert", payload, nil); err != nil {
		return err
	}

	logger.Info("Vectors upserted",
		zap.String("namespace", namespace),
		zap.Int("count", len(vectors)),
	)
	return nil
}

// DeleteByIDs removes vectors from a namespace. Ingestion only, used when a
// source document's content hash changes and its stale chunks must go.
func (c *Client) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"ids": ids,
	}
	if namespace != "" {
		payload["namespace"] = namespace
	}

	return c.post(ctx, "/vectors/delete", payload, nil)
}

// DescribeIndexStats reports record count, fullness, and dimension. The
// values change slowly, so responses are cached for five minutes.
func (c *Client) DescribeIndexStats(ctx context.Context) (*IndexStats, error) {
	c.statsMu.Lock()
	if c.stats != nil && time.Now().Before(c.statsExpiry) {
		stats := c.stats
		c.statsMu.Unlock()
		return stats, nil
	}
	c.statsMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.quickTimeout)
	defer cancel()

	var decoded struct {
		TotalVectorCount int     `json:"totalVectorCount"`
		IndexFullness    float64 `json:"indexFullness"`
		Dimension        int     `json:"dimension"`
		Namespaces       map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := c.post(ctx, "/describe_index_stats", map[string]interface{}{}, &decoded); err != nil {
		return nil, err
	}

	stats := &IndexStats{
		TotalVectorCount: decoded.TotalVectorCount,
		IndexFullness:    decoded.IndexFullness,
		Dimension:        decoded.Dimension,
		Namespaces:       make(map[string]int, len(decoded.Namespaces)),
	}
	for name, ns := range decoded.Namespaces {
		stats.Namespaces[name] = ns.VectorCount
	}

	c.statsMu.Lock()
	c.stats = stats
	c.statsExpiry = time.Now().Add(statsCacheTTL)
	c.statsMu.Unlock()

	return stats, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return fmt.Errorf("pinecone: encode %s payload: %w", path, err)
	}

	base := c.resolveHost(ctx)
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	endpoint := base + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("pinecone: create %s request: %w", path, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone: %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("pinecone: %s status %s: %s", path, resp.Status, readSnippet(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pinecone: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func readSnippet(r io.Reader) string {
	snippet, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(snippet))
}

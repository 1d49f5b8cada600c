// Package embedding wraps the OpenAI embeddings API with input sanitization,
// bounded retry, circuit breaking, and an optional read-through Redis cache.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	rediscache "github.com/kovaldeep/backend/internal/cache/redis"
	"github.com/kovaldeep/backend/internal/metrics"
	"github.com/kovaldeep/backend/pkg/circuitbreaker"
	"github.com/kovaldeep/backend/pkg/hashutil"
	"github.com/kovaldeep/backend/pkg/logger"
	"github.com/kovaldeep/backend/pkg/retry"
)

// maxInputChars caps embedding input well under the model's token limit.
const maxInputChars = 8000

const batchSize = 100

type Client struct {
	client      *openai.Client
	model       string
	cache       *rediscache.Client
	cacheTTL    time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// NewClient builds the embedding client. cache may be nil, in which case
// every call goes to the API.
func NewClient(apiKey, model string, cache *rediscache.Client, cacheTTL time.Duration) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		cache:       cache,
		cacheTTL:    cacheTTL,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// Sanitize collapses runs of whitespace and truncates to the input cap,
// backing up to a rune boundary so the cut never produces invalid UTF-8.
// Exported so ingestion applies the same normalization before hashing.
func Sanitize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxInputChars {
		cut := maxInputChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// Embed returns one vector for text. A terminal failure after retries is an
// error the caller treats as "no results for this query", never a crash.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Sanitize(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	cacheKey := hashutil.Sum(c.model + ":" + text)
	if c.cache != nil {
		if cached, ok, err := c.cache.GetEmbedding(ctx, cacheKey); err == nil && ok {
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.model),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response has no data")
			}

			metrics.EmbeddingTokensUsed.WithLabelValues(c.model).Add(float64(resp.Usage.TotalTokens))

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		// Best effort; a cache write failure is not the caller's problem.
		if err := c.cache.SetEmbedding(ctx, cacheKey, embedding, c.cacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// EmbedBatch embeds many texts for ingestion, in API-sized batches.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	sanitized := make([]string, len(texts))
	for i, t := range texts {
		sanitized[i] = Sanitize(t)
	}

	var embeddings [][]float32
	for i := 0; i < len(sanitized); i += batchSize {
		end := i + batchSize
		if end > len(sanitized) {
			end = len(sanitized)
		}
		batch := sanitized[i:end]

		var batchVectors [][]float32
		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.model),
					},
				)
				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}

				metrics.EmbeddingTokensUsed.WithLabelValues(c.model).Add(float64(resp.Usage.TotalTokens))

				batchVectors = batchVectors[:0]
				for _, data := range resp.Data {
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					batchVectors = append(batchVectors, embedding)
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batchVectors...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

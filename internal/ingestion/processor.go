// Package ingestion builds the knowledge base the query path consumes: it
// walks a docs directory, extracts text, chunks it sentence-aware, embeds
// the chunks, upserts them into the vector index, and emits the knowledge
// index JSON catalog.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kovaldeep/backend/internal/embedding"
	"github.com/kovaldeep/backend/internal/knowledge"
	"github.com/kovaldeep/backend/internal/metrics"
	"github.com/kovaldeep/backend/internal/storage/models"
	"github.com/kovaldeep/backend/internal/storage/sqlite"
	"github.com/kovaldeep/backend/internal/vector/pinecone"
	"github.com/kovaldeep/backend/pkg/hashutil"
	"github.com/kovaldeep/backend/pkg/logger"
)

type Processor struct {
	db           *sqlite.Client
	vectorDB     *pinecone.Client
	embedder     *embedding.Client
	namespace    string
	chunkSize    int
	chunkOverlap int
}

// sidecar is the optional <name>.meta.json next to each source document,
// carrying the catalog fields that cannot be derived from the text.
type sidecar struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Author     string   `json:"author"`
	Canonical  bool     `json:"canonical"`
	Synonyms   []string `json:"synonyms"`
	MustTerms  []string `json:"must_terms"`
	BotMustSay string   `json:"bot_must_say"`
	Priority   int      `json:"priority"`
}

func NewProcessor(db *sqlite.Client, vectorDB *pinecone.Client, embedder *embedding.Client, namespace string, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		embedder:     embedder,
		namespace:    namespace,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Run ingests every supported document under docsDir and writes the
// resulting catalog to indexPath. Unchanged documents (same content hash)
// keep their existing vectors.
func (p *Processor) Run(ctx context.Context, docsDir, indexPath string) error {
	var items []knowledge.Item
	categories := map[string]bool{}

	err := filepath.Walk(docsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !supportedDocument(path) {
			return nil
		}

		item, err := p.ProcessDocument(ctx, path)
		if err != nil {
			logger.Error("Failed to process document", zap.String("path", path), zap.Error(err))
			return nil
		}

		items = append(items, *item)
		if item.Category != "" {
			categories[item.Category] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk docs dir: %w", err)
	}

	idx := &knowledge.Index{
		Items: items,
		Defaults: knowledge.Defaults{
			TopK:       10,
			Alpha:      0.5,
			Confidence: 0.85,
		},
	}
	for category := range categories {
		idx.Categories = append(idx.Categories, category)
	}

	if err := idx.Write(indexPath); err != nil {
		return err
	}

	logger.Info("Knowledge index written",
		zap.String("path", indexPath),
		zap.Int("items", len(items)),
	)
	return nil
}

// ProcessDocument ingests one source file and returns its catalog item.
func (p *Processor) ProcessDocument(ctx context.Context, path string) (*knowledge.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	text := extractText(path, string(raw))
	if text == "" {
		return nil, fmt.Errorf("no content extracted from %s", path)
	}

	meta := p.readSidecar(path)
	docID := hashutil.Sum(path)[:16]
	contentHash := hashutil.Sum(text)

	storedHash, err := p.db.GetDocumentHash(path)
	if err != nil {
		return nil, err
	}

	chunks, err := p.chunkText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	chunkIDs := make([]string, len(chunks))
	for i := range chunks {
		chunkIDs[i] = fmt.Sprintf("%s-%03d", docID, i)
	}

	if storedHash == contentHash {
		logger.Debug("Document unchanged, skipping re-embed", zap.String("path", path))
		return p.buildItem(docID, path, meta, chunkIDs, contentHash), nil
	}

	if storedHash != "" {
		// Content changed: the old vectors are stale and their count may
		// differ, so delete by the previously recorded ids before upserting.
		staleIDs, err := p.db.GetChunkIDs(docID)
		if err != nil {
			return nil, err
		}
		if err := p.vectorDB.DeleteByIDs(ctx, p.namespace, staleIDs); err != nil {
			return nil, fmt.Errorf("failed to delete stale vectors: %w", err)
		}
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(chunks))
	}

	item := p.buildItem(docID, path, meta, chunkIDs, contentHash)

	upserts := make([]pinecone.Vector, 0, len(chunks))
	dbChunks := make([]*models.DocumentChunk, 0, len(chunks))
	now := time.Now()
	for i, chunkText := range chunks {
		upserts = append(upserts, pinecone.Vector{
			ID:     chunkIDs[i],
			Values: vectors[i],
			Metadata: map[string]interface{}{
				"text":        chunkText,
				"file_path":   path,
				"title":       item.Title,
				"category":    item.Category,
				"chunk_index": i,
			},
		})
		dbChunks = append(dbChunks, &models.DocumentChunk{
			ID:         chunkIDs[i],
			DocID:      docID,
			ChunkIndex: i,
			Text:       chunkText,
			CreatedAt:  now,
		})
	}

	if err := p.vectorDB.Upsert(ctx, p.namespace, upserts); err != nil {
		return nil, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	doc := &models.Document{
		ID:          docID,
		FilePath:    path,
		Title:       item.Title,
		Category:    item.Category,
		Author:      item.Author,
		ContentHash: contentHash,
		ChunkCount:  len(chunks),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.db.UpsertDocument(doc); err != nil {
		return nil, err
	}
	if err := p.db.ReplaceChunks(docID, dbChunks); err != nil {
		return nil, err
	}

	metrics.DocumentsProcessed.Inc()

	logger.Info("Document processed",
		zap.String("doc_id", docID),
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
	)

	return item, nil
}

func (p *Processor) buildItem(docID, path string, meta sidecar, chunkIDs []string, contentHash string) *knowledge.Item {
	item := &knowledge.Item{
		ID:          meta.ID,
		Title:       meta.Title,
		Category:    meta.Category,
		Author:      meta.Author,
		Canonical:   meta.Canonical,
		Synonyms:    meta.Synonyms,
		MustTerms:   meta.MustTerms,
		BotMustSay:  meta.BotMustSay,
		FilePath:    path,
		ChunkIDs:    chunkIDs,
		Priority:    meta.Priority,
		ContentHash: contentHash,
	}
	if item.ID == "" {
		item.ID = docID
	}
	if item.Title == "" {
		item.Title = titleFromPath(path)
	}
	if item.Priority == 0 {
		item.Priority = 3
	}
	return item
}

func (p *Processor) readSidecar(path string) sidecar {
	var meta sidecar
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		logger.Warn("Malformed sidecar metadata, ignoring",
			zap.String("path", sidecarPath(path)),
			zap.Error(err),
		)
		return sidecar{}
	}
	return meta
}

func sidecarPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".meta.json"
}

func supportedDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".md", ".txt":
		return true
	default:
		return false
	}
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	return strings.TrimSpace(base)
}

// extractText pulls readable text out of a source file. HTML goes through
// goquery with boilerplate elements stripped; everything else is used as-is.
func extractText(path, raw string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".html" && ext != ".htm" {
		return strings.TrimSpace(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	return strings.Join(strings.Fields(text), " ")
}

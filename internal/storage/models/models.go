package models

import "time"

// Document is one ingested source file. ContentHash is the sha256 of the
// extracted text and drives change detection between ingestion runs.
type Document struct {
	ID          string
	FilePath    string
	Title       string
	Category    string
	Author      string
	ContentHash string
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentChunk records which vector ids belong to which document so a
// re-ingest can delete stale vectors by id.
type DocumentChunk struct {
	ID         string
	DocID      string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}

type QueryRecord struct {
	ID          string
	UserID      string
	QueryText   string
	ChunkCount  int
	TopScore    float64
	Verbatim    bool
	MatchedItem string
	LatencyMS   int
	CreatedAt   time.Time
}

type Feedback struct {
	ID            int
	QueryID       string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}

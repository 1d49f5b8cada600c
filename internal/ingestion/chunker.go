package ingestion

import (
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
)

// chunkText splits text into chunks of roughly chunkSize characters on
// sentence boundaries, with chunkOverlap characters of trailing sentences
// repeated at the start of the next chunk. Sentences are never cut:
// catalog content is surfaced near-verbatim, and a chunk that stops
// mid-sentence reads as corrupted.
func (p *Processor) chunkText(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to segment text: %w", err)
	}

	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Carry trailing sentences into the next chunk as overlap, never
		// exceeding the overlap budget.
		var overlap []string
		overlapLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			if overlapLen+len(current[i])+1 > p.chunkOverlap {
				break
			}
			overlap = append([]string{current[i]}, overlap...)
			overlapLen += len(current[i]) + 1
		}
		current = overlap
		currentLen = overlapLen
	}

	for _, sentence := range sentences {
		s := strings.TrimSpace(sentence.Text)
		if s == "" {
			continue
		}

		if currentLen+len(s)+1 > p.chunkSize && currentLen > 0 {
			flush()
		}

		current = append(current, s)
		currentLen += len(s) + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks, nil
}

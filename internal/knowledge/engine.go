// Package knowledge manages per-agent document collections: chunking on
// ingest, keyword-ranked retrieval at dispatch time.
package knowledge

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"agenthub/internal/domain"
)

// Engine chunks documents into the store and ranks chunks against queries.
// It implements domain.KnowledgeSearcher.
type Engine struct {
	store     domain.KnowledgeStore
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     domain.KnowledgeStore
	ChunkSize int // words per chunk (default: 512)
	Overlap   int // overlapping words between chunks (default: 50)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
	}
}

// AddDocument chunks the content and stores it under the agent's collection.
// The document id derives from the agent and content so re-ingesting the same
// file replaces rather than duplicates it.
func (e *Engine) AddDocument(ctx context.Context, agentID, name, mimeType, content string) (*domain.Document, error) {
	hash := sha256.Sum256([]byte(agentID + "\x00" + content))
	docID := fmt.Sprintf("%x", hash[:8])

	chunks := e.chunkText(content, docID, agentID)

	doc := domain.Document{
		ID:         docID,
		AgentID:    agentID,
		Name:       name,
		MimeType:   mimeType,
		Size:       int64(len(content)),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now(),
	}

	if err := e.store.AddDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	e.logger.Info("document added",
		"agent", agentID, "name", name, "chunks", len(chunks), "size", len(content))

	return &doc, nil
}

// Search returns the best-matching snippets from the agent's documents. The
// store does a broad substring prefilter; ranking happens here on word
// overlap with the query.
func (e *Engine) Search(ctx context.Context, agentID, query string, limit int) ([]domain.KnowledgeSnippet, error) {
	if limit <= 0 {
		limit = 5
	}

	candidates, err := e.store.SearchChunks(ctx, agentID, query, limit*4)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryWords := strings.Fields(strings.ToLower(query))

	type scored struct {
		chunk domain.DocumentChunk
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s := overlapScore(queryWords, strings.ToLower(c.Content))
		if s > 0 {
			ranked = append(ranked, scored{chunk: c, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	names, err := e.documentNames(ctx, agentID)
	if err != nil {
		e.logger.Warn("cannot resolve document names", "agent", agentID, "err", err)
		names = map[string]string{}
	}

	snippets := make([]domain.KnowledgeSnippet, 0, len(ranked))
	for _, r := range ranked {
		title := names[r.chunk.DocumentID]
		if title == "" {
			title = r.chunk.DocumentID
		}
		snippets = append(snippets, domain.KnowledgeSnippet{
			Title:   fmt.Sprintf("%s (part %d)", title, r.chunk.ChunkIndex+1),
			Snippet: r.chunk.Content,
			Score:   r.score,
		})
	}
	return snippets, nil
}

func (e *Engine) ListDocuments(ctx context.Context, agentID string) ([]domain.Document, error) {
	return e.store.ListDocuments(ctx, agentID)
}

func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	return e.store.DeleteDocument(ctx, id)
}

func (e *Engine) documentNames(ctx context.Context, agentID string) (map[string]string, error) {
	docs, err := e.store.ListDocuments(ctx, agentID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.Name
	}
	return names, nil
}

// overlapScore is the fraction of query words present in the chunk.
func overlapScore(queryWords []string, content string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	hits := 0
	for _, w := range queryWords {
		if strings.Contains(content, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryWords))
}

// chunkText splits text into overlapping chunks of approximately chunkSize words.
func (e *Engine) chunkText(text, docID, agentID string) []domain.DocumentChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []domain.DocumentChunk
	step := e.chunkSize - e.overlap
	if step <= 0 {
		step = e.chunkSize
	}

	for i := 0; i < len(words); i += step {
		end := i + e.chunkSize
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, domain.DocumentChunk{
			ID:         fmt.Sprintf("%s_%d", docID, len(chunks)),
			DocumentID: docID,
			AgentID:    agentID,
			Content:    strings.Join(words[i:end], " "),
			ChunkIndex: len(chunks),
			TokenCount: end - i,
		})

		if end >= len(words) {
			break
		}
	}

	return chunks
}

package domain

import (
	"context"
	"time"
)

// Document is an agent-scoped document in the knowledge base.
type Document struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentChunk is a single indexed chunk of a document.
type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	AgentID    string `json:"agent_id"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	TokenCount int    `json:"token_count"`
}

// KnowledgeSnippet is one ranked search hit.
type KnowledgeSnippet struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// KnowledgeSearcher returns ranked text snippets from an agent's documents.
// Agents without knowledge never trigger a search.
type KnowledgeSearcher interface {
	Search(ctx context.Context, agentID, query string, limit int) ([]KnowledgeSnippet, error)
}

// KnowledgeStore is the storage interface behind the knowledge engine.
type KnowledgeStore interface {
	AddDocument(ctx context.Context, doc Document, chunks []DocumentChunk) error
	SearchChunks(ctx context.Context, agentID, query string, limit int) ([]DocumentChunk, error)
	ListDocuments(ctx context.Context, agentID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

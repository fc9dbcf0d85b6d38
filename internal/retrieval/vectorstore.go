// Package retrieval provides embedding, vector storage, and similarity
// search over ingested legal document chunks.
package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for vector storage and similarity search
// backends. Two implementations exist: SQLite with brute-force cosine
// similarity (the default) and Pinecone over its REST API. All record data
// uses the same Record/ScoredRecord types regardless of backend.
type VectorStore interface {
	// Upsert adds or replaces chunk records.
	Upsert(ctx context.Context, records []Record) error

	// Query performs vector similarity search, returning the top-K most
	// similar records ordered by score descending.
	Query(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByDocument removes all chunk records belonging to a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record is one embedded chunk of a document.
type Record struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

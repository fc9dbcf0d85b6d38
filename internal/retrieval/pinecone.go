package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aprslabs/sahayak/internal/apperr"
)

// Compile-time check that PineconeStore implements VectorStore.
var _ VectorStore = (*PineconeStore)(nil)

// PineconeStore talks to a Pinecone serverless index over its data-plane
// REST API. Chunk text and document linkage travel in vector metadata so
// query results carry everything the retriever needs.
type PineconeStore struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

// NewPineconeStore creates a store for the given index host
// (e.g. "https://my-index-abc123.svc.us-east-1.pinecone.io").
func NewPineconeStore(host, apiKey string) *PineconeStore {
	return &PineconeStore{
		host:   host,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type pineconeMatch struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Values   []float32         `json:"values,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Upsert writes records to the index in a single call. Callers batch
// upstream; Pinecone caps one request at a few hundred vectors.
func (p *PineconeStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, len(records))
	for i, r := range records {
		vectors[i] = pineconeVector{
			ID:     r.ID,
			Values: r.Embedding,
			Metadata: map[string]string{
				"document_id": r.DocumentID,
				"chunk_index": fmt.Sprintf("%d", r.ChunkIndex),
				"content":     r.Content,
			},
		}
	}

	var resp struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	return p.post(ctx, "/vectors/upsert", map[string]interface{}{"vectors": vectors}, &resp)
}

// Query returns the top-K nearest records by cosine similarity.
func (p *PineconeStore) Query(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	var resp struct {
		Matches []pineconeMatch `json:"matches"`
	}
	err := p.post(ctx, "/query", map[string]interface{}{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredRecord, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		var chunkIndex int
		fmt.Sscanf(m.Metadata["chunk_index"], "%d", &chunkIndex)
		results = append(results, ScoredRecord{
			Record: Record{
				ID:         m.ID,
				DocumentID: m.Metadata["document_id"],
				ChunkIndex: chunkIndex,
				Content:    m.Metadata["content"],
				Embedding:  m.Values,
			},
			Score: m.Score,
		})
	}
	return results, nil
}

// DeleteByDocument removes all vectors whose metadata links to the document.
func (p *PineconeStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return p.post(ctx, "/vectors/delete", map[string]interface{}{
		"filter": map[string]interface{}{
			"document_id": map[string]string{"$eq": documentID},
		},
	}, nil)
}

// Count returns the total vector count reported by the index stats endpoint.
func (p *PineconeStore) Count(ctx context.Context) (int, error) {
	var resp struct {
		TotalVectorCount int `json:"totalVectorCount"`
	}
	if err := p.post(ctx, "/describe_index_stats", map[string]interface{}{}, &resp); err != nil {
		return 0, err
	}
	return resp.TotalVectorCount, nil
}

func (p *PineconeStore) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling pinecone request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating pinecone request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperr.Wrapf(apperr.ErrUpstream, "pinecone request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrapf(apperr.ErrUpstream, "reading pinecone response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		excerpt := string(data)
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		return apperr.Wrapf(apperr.ErrUpstream, "pinecone %s returned %d: %s", path, resp.StatusCode, excerpt)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrapf(apperr.ErrUpstream, "decoding pinecone response: %v", err)
	}
	return nil
}

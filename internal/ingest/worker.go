package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aprslabs/sahayak/internal/retrieval"
	"github.com/aprslabs/sahayak/internal/storage"
)

// JobTypeVectorize embeds a stored document's chunks into the vector store.
const JobTypeVectorize = "vectorize_document"

// JobStore abstracts the job queue and document metadata operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	UpdateDocumentVectors(id, vectorIDs string) error
}

// ContentEmbedder generates embeddings for text.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes records into the vector store.
type VectorUpserter interface {
	Upsert(ctx context.Context, records []retrieval.Record) error
}

// Worker processes vectorize jobs from the SQLite job queue.
type Worker struct {
	store       JobStore
	embedder    ContentEmbedder
	vectors     VectorUpserter
	chunkSize   int
	overlap     int
	upsertBatch int
	poll        time.Duration
	logger      *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorUpserter, chunkSize, overlap, upsertBatch int, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if upsertBatch <= 0 {
		upsertBatch = 100
	}
	return &Worker{
		store:       store,
		embedder:    embedder,
		vectors:     vectors,
		chunkSize:   chunkSize,
		overlap:     overlap,
		upsertBatch: upsertBatch,
		poll:        pollInterval,
		logger:      slog.Default().With("component", "ingest"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single vectorize job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeVectorize})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type vectorizePayload struct {
	DocumentID string `json:"document_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload vectorizePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}
	if doc.Content == "" {
		w.logger.Warn("document has no content, skipping vectorization", "document_id", doc.ID)
		return nil
	}

	chunks := Chunk(doc.Content, w.chunkSize, w.overlap)
	embeddings, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = uuid.New().String()
		records[i] = retrieval.Record{
			ID:         ids[i],
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    chunks[i],
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
	}

	// Upsert in batches so one oversized call cannot blow a backend limit.
	for start := 0; start < len(records); start += w.upsertBatch {
		end := start + w.upsertBatch
		if end > len(records) {
			end = len(records)
		}
		if err := w.vectors.Upsert(ctx, records[start:end]); err != nil {
			return fmt.Errorf("upserting chunks %d..%d: %w", start, end, err)
		}
	}

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshaling vector ids: %w", err)
	}
	if err := w.store.UpdateDocumentVectors(doc.ID, string(idsJSON)); err != nil {
		return fmt.Errorf("updating vector_ids: %w", err)
	}

	w.logger.Info("document vectorized", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}

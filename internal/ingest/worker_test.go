package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aprslabs/sahayak/internal/retrieval"
	"github.com/aprslabs/sahayak/internal/storage"
)

type mockJobStore struct {
	claimFn       func(types []string) (*storage.Job, error)
	getDocumentFn func(id string) (storage.Document, error)

	completed  []string
	failed     map[string]string
	vectorsSet map[string]string
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{
		failed:     map[string]string{},
		vectorsSet: map[string]string{},
	}
}

func (m *mockJobStore) ClaimNextJob(types []string) (*storage.Job, error) {
	if m.claimFn == nil {
		return nil, nil
	}
	return m.claimFn(types)
}

func (m *mockJobStore) CompleteJob(id string) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockJobStore) FailJob(id string, errMsg string) error {
	m.failed[id] = errMsg
	return nil
}

func (m *mockJobStore) GetDocument(id string) (storage.Document, error) {
	if m.getDocumentFn == nil {
		return storage.Document{}, storage.ErrNotFound
	}
	return m.getDocumentFn(id)
}

func (m *mockJobStore) UpdateDocumentVectors(id, vectorIDs string) error {
	m.vectorsSet[id] = vectorIDs
	return nil
}

type mockEmbedder struct {
	embedBatchFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedBatchFn == nil {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}
	return m.embedBatchFn(ctx, texts)
}

type mockUpserter struct {
	batches [][]retrieval.Record
	err     error
}

func (m *mockUpserter) Upsert(ctx context.Context, records []retrieval.Record) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, records)
	return nil
}

func vectorizeJob(docID string) *storage.Job {
	return &storage.Job{
		ID:          "job-1",
		Type:        JobTypeVectorize,
		PayloadJSON: `{"document_id":"` + docID + `"}`,
	}
}

func TestRunOnce_NoJob(t *testing.T) {
	w := NewWorker(newMockJobStore(), &mockEmbedder{}, &mockUpserter{}, 100, 20, 10, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("done = true with no claimable job")
	}
}

func TestRunOnce_VectorizesDocument(t *testing.T) {
	store := newMockJobStore()
	store.claimFn = func(types []string) (*storage.Job, error) {
		if len(types) != 1 || types[0] != JobTypeVectorize {
			t.Errorf("claimed types = %v", types)
		}
		return vectorizeJob("doc-1"), nil
	}
	store.getDocumentFn = func(id string) (storage.Document, error) {
		return storage.Document{ID: id, Content: strings.Repeat("legal text ", 40)}, nil
	}
	up := &mockUpserter{}
	w := NewWorker(store, &mockEmbedder{}, up, 100, 20, 2, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want true")
	}
	if len(store.completed) != 1 || store.completed[0] != "job-1" {
		t.Errorf("completed = %v", store.completed)
	}

	var total int
	for _, b := range up.batches {
		if len(b) > 2 {
			t.Errorf("batch size %d exceeds upsertBatch 2", len(b))
		}
		total += len(b)
	}
	if total == 0 {
		t.Fatal("no records upserted")
	}
	for _, b := range up.batches {
		for _, r := range b {
			if r.DocumentID != "doc-1" || r.ID == "" || r.Content == "" {
				t.Errorf("bad record %+v", r)
			}
		}
	}

	var ids []string
	if err := json.Unmarshal([]byte(store.vectorsSet["doc-1"]), &ids); err != nil {
		t.Fatalf("vector_ids not JSON: %v", err)
	}
	if len(ids) != total {
		t.Errorf("vector_ids = %d, want %d", len(ids), total)
	}
}

func TestRunOnce_EmptyContentCompletesWithoutVectors(t *testing.T) {
	store := newMockJobStore()
	store.claimFn = func(types []string) (*storage.Job, error) { return vectorizeJob("doc-1"), nil }
	store.getDocumentFn = func(id string) (storage.Document, error) {
		return storage.Document{ID: id}, nil
	}
	up := &mockUpserter{}
	w := NewWorker(store, &mockEmbedder{}, up, 100, 20, 10, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	if len(store.completed) != 1 {
		t.Errorf("completed = %v, want the job completed", store.completed)
	}
	if len(up.batches) != 0 {
		t.Errorf("upserted %d batches for empty content", len(up.batches))
	}
}

func TestRunOnce_EmbeddingFailureFailsJob(t *testing.T) {
	store := newMockJobStore()
	store.claimFn = func(types []string) (*storage.Job, error) { return vectorizeJob("doc-1"), nil }
	store.getDocumentFn = func(id string) (storage.Document, error) {
		return storage.Document{ID: id, Content: "some content"}, nil
	}
	w := NewWorker(store, &mockEmbedder{
		embedBatchFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("provider down")
		},
	}, &mockUpserter{}, 100, 20, 10, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	if len(store.completed) != 0 {
		t.Errorf("completed = %v, want none", store.completed)
	}
	if msg := store.failed["job-1"]; !strings.Contains(msg, "provider down") {
		t.Errorf("failure message = %q", msg)
	}
}

func TestRunOnce_MissingDocumentFailsJob(t *testing.T) {
	store := newMockJobStore()
	store.claimFn = func(types []string) (*storage.Job, error) { return vectorizeJob("gone"), nil }
	w := NewWorker(store, &mockEmbedder{}, &mockUpserter{}, 100, 20, 10, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	if _, ok := store.failed["job-1"]; !ok {
		t.Error("job not marked failed for missing document")
	}
}

package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aprslabs/sahayak/internal/engine"
)

type mockEngine struct {
	mu      sync.Mutex
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   []string
}

func (m *mockEngine) Chat(ctx context.Context, messages []engine.Message) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()
	if m.embedFn == nil {
		return []float32{1, 0}, nil
	}
	return m.embedFn(ctx, text)
}

func (m *mockEngine) Name() string { return "mock" }

func TestEmbedBatch(t *testing.T) {
	e := &mockEngine{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{float32(len(text))}, nil
		},
	}
	emb := NewEmbedder(e)

	texts := []string{"a", "bb", "ccc"}
	got, err := emb.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("vectors = %d, want 3", len(got))
	}
	// Results must land at the index of their input regardless of
	// completion order.
	for i, text := range texts {
		if got[i][0] != float32(len(text)) {
			t.Errorf("got[%d] = %v, want [%d]", i, got[i], len(text))
		}
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	emb := NewEmbedder(&mockEngine{})

	got, err := emb.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got != nil {
		t.Errorf("vectors = %v, want nil", got)
	}
}

func TestEmbedBatch_PropagatesError(t *testing.T) {
	e := &mockEngine{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			if text == "bad" {
				return nil, errors.New("embedding rejected")
			}
			return []float32{1}, nil
		},
	}
	emb := NewEmbedder(e)

	_, err := emb.EmbedBatch(context.Background(), []string{"ok", "bad", "ok"})
	if err == nil {
		t.Fatal("expected error from failing text")
	}
}

func TestRetrieve(t *testing.T) {
	vs := openTestVectorStore(t)
	ctx := context.Background()
	if err := vs.Upsert(ctx, []Record{
		rec("a", "doc1", 0, []float32{1, 0}),
		rec("b", "doc2", 0, []float32{0, 1}),
	}); err != nil {
		t.Fatal(err)
	}

	e := &mockEngine{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}
	r := NewRetriever(NewEmbedder(e), vs)

	chunks, err := r.Retrieve(ctx, "property dispute", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "a" {
		t.Fatalf("chunks = %+v, want [a]", chunks)
	}
	if chunks[0].Text != "chunk a" {
		t.Errorf("text = %q", chunks[0].Text)
	}
	if len(e.calls) != 1 || e.calls[0] != "property dispute" {
		t.Errorf("embed calls = %v", e.calls)
	}
}

func TestBuildContext(t *testing.T) {
	if got := BuildContext(nil); got != "" {
		t.Errorf("empty context = %q", got)
	}

	got := BuildContext([]ContextChunk{
		{Text: "first"},
		{Text: "second"},
	})
	want := "first\n\n---\n\nsecond"
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

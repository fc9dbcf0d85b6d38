package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aprslabs/sahayak/internal/engine"
	"github.com/aprslabs/sahayak/internal/ingest"
	"github.com/aprslabs/sahayak/internal/retrieval"
	"github.com/aprslabs/sahayak/internal/storage"
)

const defaultTopK = 5

const ragPrompt = `You are a legal assistant helping with a query about Indian law. Use the provided context passages when they are relevant; say so when they are not. Your response is for informational purposes only and is not legal advice.

CONTEXT:
%s

USER QUERY:
%s`

// ChunkResult is one ranked retrieval hit as returned to clients.
type ChunkResult struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// handleSearch serves /search and /legal-search: retrieval only, no
// generation. Empty result lists are a valid response.
func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, topK, err := parseQueryForm(r)
		if err != nil {
			httpError(w, err)
			return
		}

		chunks, err := deps.Retriever.Retrieve(r.Context(), query, topK)
		if err != nil {
			httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   query,
			"results": toChunkResults(chunks),
		})
	}
}

// handleRAG retrieves context and grounds a generation on it. With no
// matching chunks the model still answers, ungrounded.
func handleRAG(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, topK, err := parseQueryForm(r)
		if err != nil {
			httpError(w, err)
			return
		}

		chunks, err := deps.Retriever.Retrieve(r.Context(), query, topK)
		if err != nil {
			httpError(w, err)
			return
		}

		contextBlock := retrieval.BuildContext(chunks)
		if contextBlock == "" {
			contextBlock = "(no stored documents matched this query)"
		}

		answer, err := deps.Engine.Chat(r.Context(), []engine.Message{
			{Role: "user", Content: fmt.Sprintf(ragPrompt, contextBlock, query)},
		})
		if err != nil {
			httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   query,
			"answer":  answer,
			"results": toChunkResults(chunks),
		})
	}
}

func parseQueryForm(r *http.Request) (string, int, error) {
	if err := r.ParseForm(); err != nil {
		return "", 0, invalidInputf("parsing form: %v", err)
	}
	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		return "", 0, invalidInputf("query is required")
	}
	topK := defaultTopK
	if s := r.FormValue("top_k"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 50 {
			topK = v
		}
	}
	return query, topK, nil
}

func toChunkResults(chunks []retrieval.ContextChunk) []ChunkResult {
	results := make([]ChunkResult, len(chunks))
	for i, c := range chunks {
		results[i] = ChunkResult{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Score:      c.Score,
		}
	}
	return results
}

// handleVectorize stores submitted text as a document and queues it for
// background embedding.
func handleVectorize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			if err := r.ParseForm(); err != nil {
				httpError(w, invalidInputf("parsing form: %v", err))
				return
			}
		}

		title := strings.TrimSpace(r.FormValue("title"))
		content := strings.TrimSpace(r.FormValue("text"))
		if content == "" {
			content = strings.TrimSpace(r.FormValue("content"))
		}
		if content == "" {
			httpError(w, invalidInputf("text is required"))
			return
		}
		if title == "" {
			title = firstWords(content, 8)
		}

		doc := storage.Document{
			ID:        uuid.New().String(),
			Title:     title,
			Content:   content,
			Source:    "api:vectorize",
			DocType:   "uploaded",
			Tags:      "[]",
			CreatedAt: time.Now().UTC(),
			VectorIDs: "[]",
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			httpErrorf(w, http.StatusInternalServerError, "saving document: %v", err)
			return
		}
		if err := enqueueVectorize(deps.Store, doc.ID); err != nil {
			httpErrorf(w, http.StatusInternalServerError, "enqueueing job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     doc.ID,
			"status": "queued",
		})
	}
}

func enqueueVectorize(store *storage.Store, documentID string) error {
	payload, err := json.Marshal(map[string]string{"document_id": documentID})
	if err != nil {
		return err
	}
	return store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        ingest.JobTypeVectorize,
		PayloadJSON: string(payload),
	})
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

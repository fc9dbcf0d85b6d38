package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/config"
)

func newGeminiTest(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiWithBaseURL(config.GeminiConfig{APIKey: "gk", Model: "gemini-2.0-flash"}, srv.URL)
}

func TestGeminiChat(t *testing.T) {
	g := newGeminiTest(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var req geminiGenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) != 2 {
			t.Fatalf("contents = %d, want 2", len(req.Contents))
		}
		// OpenAI-style "assistant" must be sent as "model".
		if req.Contents[1].Role != "model" {
			t.Errorf("role = %q, want model", req.Contents[1].Role)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": "  the answer  "}},
				}},
			},
		})
	})

	got, err := g.Chat(context.Background(), []Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "earlier reply"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "the answer" {
		t.Errorf("answer = %q, want trimmed text", got)
	}
}

func TestGeminiChat_NoCandidates(t *testing.T) {
	g := newGeminiTest(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	})

	_, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "q"}})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestGeminiChat_NoAPIKey(t *testing.T) {
	g := NewGemini(config.GeminiConfig{Model: "gemini-2.0-flash"})

	_, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "q"}})
	if !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("err = %v, want ErrConfigurationMissing", err)
	}
}

func TestGeminiEmbed(t *testing.T) {
	g := newGeminiTest(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "text-embedding-004:embedContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{"values": []float32{0.1, 0.2}},
		})
	})

	got, err := g.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[0] != 0.1 {
		t.Errorf("embedding = %v", got)
	}
}

func TestGeminiEmbed_Empty(t *testing.T) {
	g := newGeminiTest(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": map[string]interface{}{"values": []float32{}}})
	})

	_, err := g.Embed(context.Background(), "some text")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestGeminiErrorStatus(t *testing.T) {
	g := newGeminiTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	})

	_, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "q"}})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

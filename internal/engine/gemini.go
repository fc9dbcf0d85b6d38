package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/config"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiEmbedModel   = "text-embedding-004"
	geminiChatTimeout  = 60 * time.Second
	geminiEmbedTimeout = 30 * time.Second
)

// Gemini calls the Google Generative Language REST API.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini engine from the Gemini configuration block.
func NewGemini(cfg config.GeminiConfig) *Gemini {
	return &Gemini{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: geminiChatTimeout},
	}
}

// NewGeminiWithBaseURL points the client at a custom base URL (for testing).
func NewGeminiWithBaseURL(cfg config.GeminiConfig, baseURL string) *Gemini {
	g := NewGemini(cfg)
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

func (g *Gemini) Name() string { return "gemini/" + g.model }

// Configured reports whether an API key is present.
func (g *Gemini) Configured() bool { return g.apiKey != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Chat sends messages as generateContent contents and returns the first
// candidate's text. Gemini uses the role "model" where OpenAI-style APIs say
// "assistant".
func (g *Gemini) Chat(ctx context.Context, messages []Message) (string, error) {
	if g.apiKey == "" {
		return "", apperr.Wrapf(apperr.ErrConfigurationMissing, "GEMINI_API_KEY not set")
	}

	contents := make([]geminiContent, len(messages))
	for i, m := range messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents[i] = geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}}
	}

	var result geminiGenerateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	if err := g.post(ctx, url, geminiGenerateRequest{Contents: contents}, &result); err != nil {
		return "", err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", apperr.Wrapf(apperr.ErrUpstream, "gemini returned no candidates")
	}
	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed returns the embedding vector for the given text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.apiKey == "" {
		return nil, apperr.Wrapf(apperr.ErrConfigurationMissing, "GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(ctx, geminiEmbedTimeout)
	defer cancel()

	var result geminiEmbedResponse
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", g.baseURL, geminiEmbedModel, g.apiKey)
	req := geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}}
	if err := g.post(ctx, url, req, &result); err != nil {
		return nil, err
	}

	if len(result.Embedding.Values) == 0 {
		return nil, apperr.Wrapf(apperr.ErrUpstream, "gemini returned empty embedding")
	}
	return result.Embedding.Values, nil
}

func (g *Gemini) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("gemini request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperr.Wrapf(apperr.ErrUpstream, "gemini returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("decoding gemini response: %w", err))
	}
	return nil
}

// Package asr wraps the locally hosted NeMo transcription sidecar used as a
// fallback when the remote Bhashini pipeline is unreachable.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const transcribeTimeout = 120 * time.Second

// Local is a client for the local ASR model server. The underlying model is
// loaded once and is not known to be re-entrant, so inference calls are
// serialized.
type Local struct {
	baseURL    string
	httpClient *http.Client

	mu sync.Mutex
}

// NewLocal creates a client for the sidecar at baseURL. An empty baseURL
// yields a disabled client whose Transcribe always errors.
func NewLocal(baseURL string) *Local {
	return &Local{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: transcribeTimeout},
	}
}

// Enabled reports whether a sidecar URL is configured.
func (l *Local) Enabled() bool { return l.baseURL != "" }

type transcribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe sends raw audio bytes to the sidecar and returns the transcript.
func (l *Local) Transcribe(ctx context.Context, wav []byte, lang string) (string, error) {
	if !l.Enabled() {
		return "", fmt.Errorf("local ASR not configured")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	url := fmt.Sprintf("%s/transcribe?lang=%s", l.baseURL, lang)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("creating transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("local ASR request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("local ASR returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding local ASR response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("local ASR: %s", result.Error)
	}
	return strings.TrimSpace(result.Text), nil
}

// Package ocr extracts text from scanned document images through the
// ULCA OCR service and tags the result by simple keyword rules.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aprslabs/sahayak/internal/apperr"
)

// Client talks to a ULCA-compatible OCR endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// New creates an OCR client. OCR jobs on large scans are slow, hence the
// long timeout.
func New(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type ocrRequest struct {
	ImageURI string `json:"imageUri,omitempty"`
	Image    string `json:"imageContent,omitempty"`
	Language string `json:"language"`
}

type ocrResponse struct {
	Predictions []struct {
		Text string `json:"text"`
	} `json:"predictions"`
	Error string `json:"error"`
}

// Recognize sends image bytes for OCR and returns the extracted text.
func (c *Client) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if len(image) == 0 {
		return "", apperr.Wrapf(apperr.ErrInvalidInput, "image is required")
	}
	if c.url == "" {
		return "", apperr.Wrapf(apperr.ErrConfigurationMissing, "OCR endpoint not configured")
	}
	if lang == "" {
		lang = "en"
	}

	body, err := json.Marshal(ocrRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Language: lang,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrapf(apperr.ErrUpstream, "ocr request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrapf(apperr.ErrUpstream, "reading ocr response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		excerpt := string(data)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return "", apperr.Wrapf(apperr.ErrUpstream, "ocr returned %d: %s", resp.StatusCode, excerpt)
	}

	var out ocrResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", apperr.Wrapf(apperr.ErrUpstream, "decoding ocr response: %v", err)
	}
	if out.Error != "" {
		return "", apperr.Wrapf(apperr.ErrUpstream, "ocr service error: %s", out.Error)
	}

	parts := make([]string, 0, len(out.Predictions))
	for _, p := range out.Predictions {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// tagKeywords maps a document tag to the words that indicate it.
var tagKeywords = map[string][]string{
	"contract": {"agreement", "contract", "party", "parties", "hereinafter", "witnesseth"},
	"evidence": {"exhibit", "evidence", "witness", "testimony", "affidavit"},
	"invoice":  {"invoice", "amount", "total", "payment", "due date", "gst"},
}

// Classify tags extracted text by keyword occurrence. Unmatched text gets
// the "general" tag.
func Classify(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, tag := range []string{"contract", "evidence", "invoice"} {
		for _, kw := range tagKeywords[tag] {
			if strings.Contains(lower, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}
	if len(tags) == 0 {
		tags = append(tags, "general")
	}
	return tags
}

// Package engine abstracts the generative/embedding backend. The service
// runs against Google Gemini by default and against a local Ollama instance
// when USE_OLLAMA is set; callers never care which.
package engine

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine is a text-generation and embedding backend.
type Engine interface {
	// Chat sends messages and returns the assistant's response text.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Embed returns the embedding vector for the given text. All ingestion
	// and retrieval must go through the same Engine instance: mixing
	// embedding models breaks similarity scores.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the backend for logs and status output.
	Name() string
}

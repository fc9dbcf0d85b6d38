package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aprslabs/sahayak/internal/engine"
	"github.com/aprslabs/sahayak/internal/retrieval"
	"github.com/aprslabs/sahayak/internal/storage"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// MCPGenerator abstracts LLM calls for conversation summaries.
type MCPGenerator interface {
	Chat(ctx context.Context, messages []engine.Message) (string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Retriever MCPRetriever
	Engine    MCPGenerator // optional; if nil, summarize_conversation returns an error
}

// NewMCPServer creates an MCP server exposing the legal knowledge base to
// MCP clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sahayak",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sahayak: legal document knowledge base for semantic search and case summaries."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("legal_search",
			mcp.WithDescription("Semantically search stored legal documents and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpLegalSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Store a legal document into the knowledge base and queue it for embedding."),
			mcp.WithString("title", mcp.Description("Title for the document")),
			mcp.WithString("content", mcp.Description("The document text to store"), mcp.Required()),
			mcp.WithString("doc_type", mcp.Description("Document category, e.g. case_law or statute")),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("summarize_conversation",
			mcp.WithDescription("Produce a structured legal summary of a client conversation."),
			mcp.WithString("messages", mcp.Description("JSON array of {role, content} message objects"), mcp.Required()),
		),
		mcpSummarizeConversation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"documents://recent",
			"Recent Documents",
			mcp.WithResourceDescription("Last 10 stored legal documents (metadata only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpLegalSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(toChunkResults(chunks))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")
		docType := req.GetString("doc_type", "uploaded")
		tags := req.GetStringSlice("tags", nil)

		tagsJSON := "[]"
		if len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		doc := storage.Document{
			ID:        uuid.New().String(),
			Title:     title,
			Content:   content,
			Source:    "mcp",
			DocType:   docType,
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
			VectorIDs: "[]",
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		if err := enqueueVectorize(deps.Store, doc.ID); err != nil {
			return mcpError(fmt.Sprintf("saved document but failed to queue embedding: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored document %s", doc.ID)), nil
	}
}

func mcpSummarizeConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Engine == nil {
			return mcpError("summarization not available: no model configured"), nil
		}

		messagesJSON, err := req.RequireString("messages")
		if err != nil {
			return mcpError("messages is required"), nil
		}

		var messages []engine.Message
		if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
			return mcpError(fmt.Sprintf("invalid messages JSON: %v", err)), nil
		}

		var conversationText string
		for _, m := range messages {
			conversationText += fmt.Sprintf("[%s]: %s\n", m.Role, m.Content)
		}

		summary, err := deps.Engine.Chat(ctx, []engine.Message{
			{
				Role:    "user",
				Content: "Summarize the following legal consultation concisely: the client's issue, laws discussed, advice given, and agreed next steps. Output a single paragraph.\n\n" + conversationText,
			},
		})
		if err != nil {
			return mcpError(fmt.Sprintf("summarization failed: %v", err)), nil
		}

		return mcpText(summary), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListDocuments("", 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		summaries := make([]DocumentSummary, len(docs))
		for i, d := range docs {
			summaries[i] = DocumentSummary{
				ID:        d.ID,
				Title:     d.Title,
				Source:    d.Source,
				DocType:   d.DocType,
				Tags:      d.Tags,
				CreatedAt: d.CreatedAt,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

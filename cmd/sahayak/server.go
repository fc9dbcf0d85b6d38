package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/aprslabs/sahayak/internal/api"
	"github.com/aprslabs/sahayak/internal/asr"
	"github.com/aprslabs/sahayak/internal/bhashini"
	"github.com/aprslabs/sahayak/internal/config"
	"github.com/aprslabs/sahayak/internal/engine"
	"github.com/aprslabs/sahayak/internal/ingest"
	"github.com/aprslabs/sahayak/internal/ocr"
	"github.com/aprslabs/sahayak/internal/retrieval"
	"github.com/aprslabs/sahayak/internal/scraper"
	"github.com/aprslabs/sahayak/internal/storage"
	"github.com/aprslabs/sahayak/internal/voice"
	"github.com/aprslabs/sahayak/internal/websearch"
)

func runServer() error {
	fmt.Fprintf(os.Stderr, "sahayak version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging once for the whole process.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if err := cfg.EnsureDataDirs(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}

	// Refuse to double-start: probe the health endpoint first.
	pidPath := cfg.PIDFile()
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sahayak is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sahayak is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Pick the generation/embedding engine: local Ollama when enabled and
	// reachable, Gemini otherwise.
	eng := selectEngine(ctx, cfg)
	slog.Info("engine selected", "engine", eng.Name())

	// Vector store: Pinecone when configured, local SQLite otherwise.
	var vectors retrieval.VectorStore
	if cfg.PineconeEnabled() {
		vectors = retrieval.NewPineconeStore(cfg.Pinecone.IndexHost, cfg.Pinecone.APIKey)
		slog.Info("vector store: pinecone", "host", cfg.Pinecone.IndexHost)
	} else {
		vectors = retrieval.NewSQLiteStore(store.DB())
		slog.Info("vector store: sqlite")
	}

	embedder := retrieval.NewEmbedder(eng)
	retriever := retrieval.NewRetriever(embedder, vectors)

	// Voice pipeline.
	speech := bhashini.New(cfg.Bhashini)
	localASR := asr.NewLocal(cfg.LocalASR.BaseURL)
	ttsEnabled := cfg.BhashiniEnabled() && cfg.Bhashini.TTSServiceID != ""
	orchestrator := voice.New(speech, localASR, eng, ttsEnabled)

	deps := api.Deps{
		Config:       &cfg,
		Store:        store,
		Vectors:      vectors,
		Retriever:    retriever,
		Engine:       eng,
		Orchestrator: orchestrator,
		Scraper:      scraper.New(),
		Search:       websearch.New(cfg.Search),
		OCR:          ocr.New(cfg.OCR.URL),
		BaseCtx:      ctx,
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(deps),
	}

	// Start ingest worker.
	worker := ingest.NewWorker(store, embedder, vectors,
		cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, cfg.Ingest.UpsertBatch,
		500*time.Millisecond)
	go worker.Run(ctx)

	// MCP server over stdio in a goroutine.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Retriever: retriever,
		Engine:    eng,
	})
	stdioSrv := mcpserver.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("sahayak listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// selectEngine prefers local Ollama when USE_OLLAMA is set and the daemon
// answers; Gemini otherwise. An unconfigured Gemini still returns a client
// so handlers get ConfigurationMissing instead of a nil dereference.
func selectEngine(ctx context.Context, cfg config.Config) engine.Engine {
	if cfg.Ollama.Enabled {
		ollama := engine.NewOllama(cfg.Ollama)
		if ollama.IsRunning(ctx) {
			return ollama
		}
		slog.Warn("USE_OLLAMA set but ollama is not reachable, falling back to gemini", "url", cfg.Ollama.BaseURL)
	}
	return engine.NewGemini(cfg.Gemini)
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aprslabs/sahayak/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sahayak server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sahayak server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sahayak system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest text or a document file into the knowledge base",
	Long: `Ingest content into the legal knowledge base.

Examples:
  sahayak ingest --text "Section 138 NI Act covers cheque dishonour" --title "NI Act note"
  sahayak ingest --file ./judgment.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
			if title == "" {
				title = filepath.Base(file)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postForm(cmd.Context(), "/vectorize", map[string]string{
			"text":  text,
			"title": title,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued document %s", result["id"])
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored legal documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postForm(cmd.Context(), "/search", map[string]string{
			"query": query,
			"top_k": strconv.Itoa(topK),
		})
		if err != nil {
			return err
		}

		var result struct {
			Results []struct {
				ID    string  `json:"id"`
				Text  string  `json:"text"`
				Score float32 `json:"score"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			printWarning("No matching documents")
			return nil
		}
		for _, r := range result.Results {
			excerpt := r.Text
			if len(excerpt) > 200 {
				excerpt = excerpt[:200] + "..."
			}
			fmt.Printf("%s  %.3f\n  %s\n\n", colorize(colorBold, r.ID), r.Score, excerpt)
		}
		return nil
	},
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List stored documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		docType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/documents/%s?limit=%d", docType, limit))
		if err != nil {
			return err
		}

		var result struct {
			Documents []struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				DocType   string `json:"doc_type"`
				CreatedAt string `json:"created_at"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			printWarning("No documents stored")
			return nil
		}
		for _, d := range result.Documents {
			fmt.Printf("%s  %-10s  %s  %s\n", colorize(colorBold, d.ID), d.DocType, d.CreatedAt, d.Title)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest")
	ingestCmd.Flags().String("title", "", "title for the document")
	searchCmd.Flags().Int("top-k", 5, "number of results")
	docsCmd.Flags().String("type", "all", "document type filter (all, case_law, statute, contract)")
	docsCmd.Flags().Int("limit", 50, "maximum documents to list")
}

// --- pid helpers ---

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := cfg.PIDFile()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sahayak is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sahayak (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sahayak (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.BhashiniEnabled() {
		printStatus("Bhashini", "configured (%s)", cfg.Bhashini.APIURL)
	} else {
		printStatus("Bhashini", "not configured")
	}
	if cfg.Ollama.Enabled {
		printStatus("Engine", "ollama (%s)", cfg.Ollama.Model)
	} else if cfg.Gemini.APIKey != "" {
		printStatus("Engine", "gemini (%s)", cfg.Gemini.Model)
	} else {
		printStatus("Engine", "not configured")
	}
	if cfg.PineconeEnabled() {
		printStatus("Vector store", "pinecone")
	} else {
		printStatus("Vector store", "sqlite")
	}

	// Show document count if the server is up.
	if resp != nil && resp.StatusCode == 200 {
		docsResp, err := client.Get(serverURL + "/documents/all?limit=200")
		if err == nil {
			var body struct {
				Documents []json.RawMessage `json:"documents"`
			}
			if json.NewDecoder(docsResp.Body).Decode(&body) == nil {
				printStatus("Documents", "%d", len(body.Documents))
			}
			docsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

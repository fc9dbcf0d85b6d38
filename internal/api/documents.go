package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/ingest"
	"github.com/aprslabs/sahayak/internal/storage"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// DocumentSummary is the listing shape; content is omitted to keep
// listings small.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	DocType   string    `json:"doc_type"`
	Tags      string    `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docType := chi.URLParam(r, "doc_type")
		if docType == "all" {
			docType = ""
		}
		limit := parseIntParam(r, "limit", 50, 200)

		docs, err := deps.Store.ListDocuments(docType, limit)
		if err != nil {
			httpErrorf(w, http.StatusInternalServerError, "listing documents: %v", err)
			return
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
		writeJSON(w, http.StatusOK, map[string]interface{}{"documents": summaries})
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "doc_id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, apperr.Wrapf(apperr.ErrNotFound, "document %s not found", id))
			return
		}
		if err != nil {
			httpErrorf(w, http.StatusInternalServerError, "loading document: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, doc)
	}
}

// handleDeleteDocument removes a document and its chunk vectors.
func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "doc_id")

		if _, err := deps.Store.GetDocument(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, apperr.Wrapf(apperr.ErrNotFound, "document %s not found", id))
			return
		} else if err != nil {
			httpErrorf(w, http.StatusInternalServerError, "loading document: %v", err)
			return
		}

		// Vectors go first so a failure leaves the document row intact and
		// the delete retryable.
		if err := deps.Vectors.DeleteByDocument(r.Context(), id); err != nil {
			httpError(w, err)
			return
		}
		if err := deps.Store.DeleteDocument(id); err != nil {
			httpErrorf(w, http.StatusInternalServerError, "deleting document: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
	}
}

// handleUploadDocuments accepts one or more files, saves them under the
// upload directory, extracts text, and queues each for embedding.
func handleUploadDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			httpError(w, invalidInputf("parsing multipart form: %v", err))
			return
		}
		if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
			httpError(w, invalidInputf("at least one file is required"))
			return
		}

		docType := strings.TrimSpace(r.FormValue("doc_type"))
		if docType == "" {
			docType = "uploaded"
		}

		var uploaded []DocumentSummary
		for _, header := range r.MultipartForm.File["files"] {
			doc, err := saveUpload(deps, header, docType)
			if err != nil {
				httpError(w, err)
				return
			}
			uploaded = append(uploaded, DocumentSummary{
				ID:        doc.ID,
				Title:     doc.Title,
				Source:    doc.Source,
				DocType:   doc.DocType,
				CreatedAt: doc.CreatedAt,
			})
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"documents": uploaded,
			"status":    "queued",
		})
	}
}

func saveUpload(deps Deps, header *multipart.FileHeader, docType string) (*storage.Document, error) {
	file, err := header.Open()
	if err != nil {
		return nil, invalidInputf("opening upload %s: %v", header.Filename, err)
	}
	defer file.Close()

	name := unsafePathChars.ReplaceAllString(filepath.Base(header.Filename), "_")
	path := filepath.Join(deps.Config.UploadDir(), fmt.Sprintf("%d_%s", time.Now().UnixNano(), name))

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return nil, fmt.Errorf("writing upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing upload file: %w", err)
	}

	content, err := ingest.ExtractText(path)
	if err != nil {
		return nil, invalidInputf("extracting text from %s: %v", header.Filename, err)
	}

	doc := storage.Document{
		ID:        uuid.New().String(),
		Title:     header.Filename,
		Content:   content,
		Source:    path,
		DocType:   docType,
		Tags:      "[]",
		CreatedAt: time.Now().UTC(),
		VectorIDs: "[]",
	}
	if err := deps.Store.SaveDocument(doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	if content != "" {
		if err := enqueueVectorize(deps.Store, doc.ID); err != nil {
			return nil, fmt.Errorf("enqueueing vectorize: %w", err)
		}
	}
	return &doc, nil
}

// handleUploadAudio saves a recording under the audio directory and
// returns its served path.
func handleUploadAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			httpError(w, invalidInputf("parsing multipart form: %v", err))
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			httpError(w, invalidInputf("audio file is required"))
			return
		}
		defer file.Close()

		name := unsafePathChars.ReplaceAllString(filepath.Base(header.Filename), "_")
		if name == "" || name == "." {
			name = "recording.wav"
		}
		fileName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), name)
		path := filepath.Join(deps.Config.AudioDir(), fileName)

		out, err := os.Create(path)
		if err != nil {
			httpErrorf(w, http.StatusInternalServerError, "creating audio file: %v", err)
			return
		}
		defer out.Close()
		if _, err := io.Copy(out, file); err != nil {
			httpErrorf(w, http.StatusInternalServerError, "writing audio file: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"file": fileName,
			"path": "/audio/" + fileName,
		})
	}
}

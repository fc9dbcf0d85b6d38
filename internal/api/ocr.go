package api

import (
	"io"
	"net/http"

	"github.com/aprslabs/sahayak/internal/ocr"
)

// handleOCR extracts text from an uploaded scan and tags it.
func handleOCR(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			httpError(w, invalidInputf("parsing multipart form: %v", err))
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			httpError(w, invalidInputf("file is required"))
			return
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			httpError(w, invalidInputf("reading upload: %v", err))
			return
		}

		lang := r.FormValue("language")

		text, err := deps.OCR.Recognize(r.Context(), image, lang)
		if err != nil {
			httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"text": text,
			"tags": ocr.Classify(text),
		})
	}
}

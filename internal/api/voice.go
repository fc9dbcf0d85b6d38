package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/aprslabs/sahayak/internal/voice"
)

// VoiceQueryResponse mirrors the frontend contract for /api/voice-query.
type VoiceQueryResponse struct {
	ASRText        string `json:"asr_text"`
	TranslatedText string `json:"translated_text"`
	AIResponseEN   string `json:"ai_response_en"`
	AIResponseTE   string `json:"ai_response_te"`
	Audio          string `json:"audio,omitempty"`
	UsedFallback   bool   `json:"used_fallback"`
	// LocalizationMissing marks ai_response_te as the untranslated
	// English answer after back-translation failed.
	LocalizationMissing bool `json:"localization_missing"`
}

func handleVoiceQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		req, err := parseVoiceRequest(r)
		if err != nil {
			httpError(w, err)
			return
		}

		res, err := deps.Orchestrator.Run(r.Context(), *req)
		if err != nil {
			httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, VoiceQueryResponse{
			ASRText:             res.ASRText,
			TranslatedText:      res.TranslatedText,
			AIResponseEN:        res.AIResponseEN,
			AIResponseTE:        res.AIResponseLocal,
			Audio:               res.AudioB64,
			UsedFallback:        res.UsedFallback,
			LocalizationMissing: res.LocalizationMissing,
		})
	}
}

// parseVoiceRequest accepts multipart or urlencoded forms with one of the
// audio/audio_base64/text fields. Validation of the "exactly one input"
// rule lives in the orchestrator.
func parseVoiceRequest(r *http.Request) (*voice.Request, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			return nil, invalidInputf("parsing multipart form: %v", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, invalidInputf("parsing form: %v", err)
		}
	}

	req := &voice.Request{
		Text:     strings.TrimSpace(r.FormValue("text")),
		Language: strings.TrimSpace(r.FormValue("language")),
	}

	if file, _, err := r.FormFile("audio"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, invalidInputf("reading audio upload: %v", err)
		}
		req.Audio = data
	} else if b64 := r.FormValue("audio_base64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, invalidInputf("decoding audio_base64: %v", err)
		}
		req.Audio = data
	}

	return req, nil
}

// Package bhashini implements a client for the Bhashini (ULCA/Dhruva)
// pipeline inference API: ASR, translation, and TTS tasks, individually or
// combined server-side in one request.
package bhashini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/config"
	"github.com/aprslabs/sahayak/internal/resilience"
)

const defaultTimeout = 45 * time.Second

// Language codes handled by the service.
const (
	LangTelugu  = "te"
	LangEnglish = "en"
)

var scriptForLang = map[string]string{
	LangTelugu:  "Telu",
	LangEnglish: "Latn",
}

// Client communicates with the Bhashini pipeline endpoint.
type Client struct {
	url        string
	apiKey     string
	cfg        config.BhashiniConfig
	httpClient *http.Client
}

// New creates a Client from the Bhashini configuration block.
func New(cfg config.BhashiniConfig) *Client {
	return &Client{
		url:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey: cfg.APIKey,
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// --- wire types ---

type languageSpec struct {
	SourceLanguage   string `json:"sourceLanguage"`
	SourceScriptCode string `json:"sourceScriptCode,omitempty"`
	TargetLanguage   string `json:"targetLanguage,omitempty"`
	TargetScriptCode string `json:"targetScriptCode,omitempty"`
}

type taskConfig struct {
	Language  languageSpec `json:"language"`
	ModelID   string       `json:"modelId,omitempty"`
	ServiceID string       `json:"serviceId,omitempty"`
	Voice     string       `json:"voice,omitempty"`
	Domain    []string     `json:"domain,omitempty"`
}

type pipelineTask struct {
	TaskType string     `json:"taskType"`
	Config   taskConfig `json:"config"`
}

type inputEntry struct {
	Source string `json:"source"`
}

type audioEntry struct {
	AudioContent string `json:"audioContent"`
}

type inputData struct {
	Input []inputEntry `json:"input"`
	Audio []audioEntry `json:"audio,omitempty"`
}

type pipelineRequest struct {
	PipelineTasks []pipelineTask `json:"pipelineTasks"`
	InputData     inputData      `json:"inputData"`
}

// pipelineResponse is the declared response schema. The API historically
// served more than one shape; anything that does not match this one is an
// upstream error, not something to silently probe around.
type pipelineResponse struct {
	PipelineResponse []taskResponse `json:"pipelineResponse"`
}

type taskResponse struct {
	TaskType string       `json:"taskType"`
	Output   []taskOutput `json:"output"`
	Audio    []audioEntry `json:"audio"`
}

type taskOutput struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// --- operations ---

// TranscribeTranslate runs the combined Telugu ASR + te→en translation
// pipeline over base64-encoded audio, returning the transcript and its
// English translation.
func (c *Client) TranscribeTranslate(ctx context.Context, audioB64 string) (asrText, enText string, err error) {
	req := pipelineRequest{
		PipelineTasks: []pipelineTask{
			{
				TaskType: "asr",
				Config: taskConfig{
					ServiceID: c.cfg.ASRServiceID,
					ModelID:   c.cfg.ASRModelID,
					Language:  languageSpec{SourceLanguage: LangTelugu, SourceScriptCode: "Telu"},
					Domain:    []string{"general"},
				},
			},
			translationTask(c.cfg, LangTelugu, LangEnglish),
		},
		InputData: inputData{Input: []inputEntry{}, Audio: []audioEntry{{AudioContent: audioB64}}},
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", "", err
	}

	asrOut, err := taskBySlot(resp, 0, "asr")
	if err != nil {
		return "", "", err
	}
	trOut, err := taskBySlot(resp, 1, "translation")
	if err != nil {
		return "", "", err
	}
	return asrOut.Source, trOut.Target, nil
}

// Transcribe runs English ASR over base64-encoded audio.
func (c *Client) Transcribe(ctx context.Context, audioB64 string) (string, error) {
	req := pipelineRequest{
		PipelineTasks: []pipelineTask{
			{
				TaskType: "asr",
				Config: taskConfig{
					ServiceID: c.cfg.ASREnServiceID,
					ModelID:   c.cfg.ASREnModelID,
					Language:  languageSpec{SourceLanguage: LangEnglish, SourceScriptCode: "Latn"},
					Domain:    []string{"general"},
				},
			},
		},
		InputData: inputData{Input: []inputEntry{}, Audio: []audioEntry{{AudioContent: audioB64}}},
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	out, err := taskBySlot(resp, 0, "asr")
	if err != nil {
		return "", err
	}
	return out.Source, nil
}

// Translate runs a single translation task between src and tgt language codes.
func (c *Client) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	req := pipelineRequest{
		PipelineTasks: []pipelineTask{translationTask(c.cfg, src, tgt)},
		InputData:     inputData{Input: []inputEntry{{Source: text}}},
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	out, err := taskBySlot(resp, 0, "translation")
	if err != nil {
		return "", err
	}
	if out.Target == "" {
		return "", apperr.Wrapf(apperr.ErrUpstream, "translation returned empty target for %s→%s", src, tgt)
	}
	return out.Target, nil
}

// Speak synthesizes speech for text in the given language, returning
// base64-encoded audio. Requires a configured TTS service.
func (c *Client) Speak(ctx context.Context, text, lang string) (string, error) {
	if c.cfg.TTSServiceID == "" {
		return "", apperr.Wrapf(apperr.ErrConfigurationMissing, "no TTS service configured")
	}
	req := pipelineRequest{
		PipelineTasks: []pipelineTask{
			{
				TaskType: "tts",
				Config: taskConfig{
					Language:  languageSpec{SourceLanguage: lang, SourceScriptCode: scriptForLang[lang]},
					Voice:     "default",
					ModelID:   c.cfg.TTSModelID,
					ServiceID: c.cfg.TTSServiceID,
				},
			},
		},
		InputData: inputData{Input: []inputEntry{{Source: text}}},
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.PipelineResponse) < 1 || len(resp.PipelineResponse[0].Audio) < 1 {
		return "", apperr.Wrapf(apperr.ErrUpstream, "tts response missing audio")
	}
	audio := resp.PipelineResponse[0].Audio[0].AudioContent
	if audio == "" {
		return "", apperr.Wrapf(apperr.ErrUpstream, "tts returned empty audio content")
	}
	return audio, nil
}

func translationTask(cfg config.BhashiniConfig, src, tgt string) pipelineTask {
	return pipelineTask{
		TaskType: "translation",
		Config: taskConfig{
			Language: languageSpec{
				SourceLanguage:   src,
				SourceScriptCode: scriptForLang[src],
				TargetLanguage:   tgt,
				TargetScriptCode: scriptForLang[tgt],
			},
			ModelID:   cfg.TranslationModelID,
			ServiceID: cfg.TranslationServiceID,
		},
	}
}

// do posts the pipeline request and decodes the declared response schema.
// Connectivity and timeout failures come back marked transient so callers
// can retry; application errors (non-2xx, shape mismatch) do not.
func (c *Client) do(ctx context.Context, req pipelineRequest) (*pipelineResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling pipeline request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating pipeline request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("pipeline request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("reading pipeline response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("bhashini pipeline error",
			"status", resp.StatusCode, "body", truncate(string(raw), 512))
		return nil, apperr.Wrapf(apperr.ErrUpstream, "pipeline returned status %d", resp.StatusCode)
	}

	var parsed pipelineResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Error("bhashini response unparseable", "body", truncate(string(raw), 512), "error", err)
		return nil, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("decoding pipeline response: %w", err))
	}
	if len(parsed.PipelineResponse) == 0 {
		slog.Error("bhashini response missing pipelineResponse", "body", truncate(string(raw), 512))
		return nil, apperr.Wrapf(apperr.ErrUpstream, "pipeline response has no task outputs")
	}
	return &parsed, nil
}

// taskBySlot returns the first output of the task at index i, checking the
// declared task type.
func taskBySlot(resp *pipelineResponse, i int, taskType string) (taskOutput, error) {
	if len(resp.PipelineResponse) <= i {
		return taskOutput{}, apperr.Wrapf(apperr.ErrUpstream, "pipeline response missing %s task at slot %d", taskType, i)
	}
	task := resp.PipelineResponse[i]
	if task.TaskType != "" && task.TaskType != taskType {
		return taskOutput{}, apperr.Wrapf(apperr.ErrUpstream, "expected %s at slot %d, got %s", taskType, i, task.TaskType)
	}
	if len(task.Output) == 0 {
		return taskOutput{}, apperr.Wrapf(apperr.ErrUpstream, "%s task returned no output", taskType)
	}
	return task.Output[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

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

type fakeEngine struct {
	chatFn  func(ctx context.Context, messages []engine.Message) (string, error)
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeEngine) Chat(ctx context.Context, messages []engine.Message) (string, error) {
	if f.chatFn == nil {
		return "canned answer", nil
	}
	return f.chatFn(ctx, messages)
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedFn == nil {
		return []float32{1, 0}, nil
	}
	return f.embedFn(ctx, text)
}

func (f *fakeEngine) Name() string { return "fake" }

type fakeSpeech struct{}

func (fakeSpeech) TranscribeTranslate(ctx context.Context, audioB64 string) (string, string, error) {
	return "", "", errors.New("no remote speech in tests")
}
func (fakeSpeech) Transcribe(ctx context.Context, audioB64 string) (string, error) {
	return "", errors.New("no remote speech in tests")
}
func (fakeSpeech) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	return text, nil
}
func (fakeSpeech) Speak(ctx context.Context, text, lang string) (string, error) {
	return "", errors.New("no tts in tests")
}

// backTranslationDownSpeech translates into English but refuses every other
// target language.
type backTranslationDownSpeech struct{ fakeSpeech }

func (backTranslationDownSpeech) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	if tgt != "en" {
		return "", errors.New("target language rejected")
	}
	return text, nil
}

type fakeLocalASR struct{}

func (fakeLocalASR) Enabled() bool { return false }
func (fakeLocalASR) Transcribe(ctx context.Context, wav []byte, lang string) (string, error) {
	return "", errors.New("disabled")
}

type testEnv struct {
	deps    Deps
	handler http.Handler
	store   *storage.Store
	vectors *retrieval.SQLiteStore
	engine  *fakeEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.DataDir = t.TempDir()
	if err := cfg.EnsureDataDirs(); err != nil {
		t.Fatalf("creating data dirs: %v", err)
	}

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := &fakeEngine{}
	vectors := retrieval.NewSQLiteStore(store.DB())
	embedder := retrieval.NewEmbedder(eng)
	retriever := retrieval.NewRetriever(embedder, vectors)

	deps := Deps{
		Config:       cfg,
		Store:        store,
		Vectors:      vectors,
		Retriever:    retriever,
		Engine:       eng,
		Orchestrator: voice.New(fakeSpeech{}, fakeLocalASR{}, eng, false),
		Scraper:      scraper.New(),
		Search:       websearch.New(config.SearchConfig{}),
		OCR:          ocr.New(""),
	}

	return &testEnv{
		deps:    deps,
		handler: NewRouter(deps),
		store:   store,
		vectors: vectors,
		engine:  eng,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("response not JSON: %v\n%s", err, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestVectorize_QueuesJob(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, postForm("/vectorize", url.Values{
		"title": {"Limitation note"},
		"text":  {"The limitation period for a money suit is three years."},
	}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "queued" || body["id"] == "" {
		t.Fatalf("body = %v", body)
	}

	doc, err := env.store.GetDocument(body["id"])
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if doc.Title != "Limitation note" {
		t.Errorf("title = %q", doc.Title)
	}

	job, err := env.store.ClaimNextJob([]string{ingest.JobTypeVectorize})
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("no vectorize job enqueued")
	}
	if !strings.Contains(job.PayloadJSON, body["id"]) {
		t.Errorf("payload = %q", job.PayloadJSON)
	}
}

func TestVectorize_MissingText(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, postForm("/vectorize", url.Values{"title": {"empty"}}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["detail"] == "" {
		t.Errorf("error body missing detail: %s", rec.Body.String())
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	seedVectors(t, env)

	rec := env.do(t, postForm("/search", url.Values{"query": {"limitation"}, "top_k": {"1"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Query   string        `json:"query"`
		Results []ChunkResult `json:"results"`
	}
	decodeBody(t, rec, &body)
	if body.Query != "limitation" {
		t.Errorf("query = %q", body.Query)
	}
	if len(body.Results) != 1 || body.Results[0].ID != "v1" {
		t.Fatalf("results = %+v", body.Results)
	}
	if body.Results[0].Text == "" || body.Results[0].Score == 0 {
		t.Errorf("result not hydrated: %+v", body.Results[0])
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, postForm("/legal-search", url.Values{}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRAG(t *testing.T) {
	env := newTestEnv(t)
	seedVectors(t, env)

	var prompt string
	env.engine.chatFn = func(ctx context.Context, messages []engine.Message) (string, error) {
		prompt = messages[0].Content
		return "grounded answer", nil
	}

	rec := env.do(t, postForm("/rag", url.Values{"query": {"limitation period"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Answer  string        `json:"answer"`
		Results []ChunkResult `json:"results"`
	}
	decodeBody(t, rec, &body)
	if body.Answer != "grounded answer" {
		t.Errorf("answer = %q", body.Answer)
	}
	if len(body.Results) == 0 {
		t.Error("no retrieval results returned")
	}
	if !strings.Contains(prompt, "three years") || !strings.Contains(prompt, "limitation period") {
		t.Errorf("prompt missing context or query: %q", prompt)
	}
}

func TestRAG_EmptyIndexStillAnswers(t *testing.T) {
	env := newTestEnv(t)

	var prompt string
	env.engine.chatFn = func(ctx context.Context, messages []engine.Message) (string, error) {
		prompt = messages[0].Content
		return "ungrounded answer", nil
	}

	rec := env.do(t, postForm("/rag", url.Values{"query": {"anything"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(prompt, "no stored documents matched") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestVoiceQuery_Text(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, postForm("/api/voice-query", url.Values{
		"text":     {"What is anticipatory bail?"},
		"language": {"en"},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body VoiceQueryResponse
	decodeBody(t, rec, &body)
	if body.ASRText != "What is anticipatory bail?" {
		t.Errorf("asr_text = %q", body.ASRText)
	}
	if body.AIResponseEN != "canned answer" || body.AIResponseTE != "canned answer" {
		t.Errorf("answers = %q / %q", body.AIResponseEN, body.AIResponseTE)
	}
	if body.UsedFallback {
		t.Error("used_fallback set for text input")
	}
}

func TestVoiceQuery_BackTranslationFailureSetsFlag(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Orchestrator = voice.New(backTranslationDownSpeech{}, fakeLocalASR{}, env.engine, false)
	env.handler = NewRouter(env.deps)

	rec := env.do(t, postForm("/api/voice-query", url.Values{
		"text":     {"ముందస్తు బెయిల్ అంటే ఏమిటి?"},
		"language": {"te"},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body VoiceQueryResponse
	decodeBody(t, rec, &body)
	if !body.LocalizationMissing {
		t.Error("localization_missing not set after back-translation failure")
	}
	if body.AIResponseTE != body.AIResponseEN {
		t.Errorf("ai_response_te = %q, want English answer %q", body.AIResponseTE, body.AIResponseEN)
	}
}

func TestVoiceQuery_NoInput(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, postForm("/api/voice-query", url.Values{}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.Contains(body["detail"], "audio or text") {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestListAndGetDocuments(t *testing.T) {
	env := newTestEnv(t)
	mustSaveDocument(t, env.store, storage.Document{
		ID: "d1", Title: "Case one", DocType: "case_law", Content: "text",
	})
	mustSaveDocument(t, env.store, storage.Document{
		ID: "d2", Title: "Upload one", DocType: "uploaded", Content: "text",
	})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/documents/case_law", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var listBody struct {
		Documents []DocumentSummary `json:"documents"`
	}
	decodeBody(t, rec, &listBody)
	if len(listBody.Documents) != 1 || listBody.Documents[0].ID != "d1" {
		t.Errorf("documents = %+v", listBody.Documents)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/documents/all", nil))
	decodeBody(t, rec, &listBody)
	if len(listBody.Documents) != 2 {
		t.Errorf("all documents = %d, want 2", len(listBody.Documents))
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/document/d1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/document/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var errBody map[string]string
	decodeBody(t, rec, &errBody)
	if errBody["detail"] == "" {
		t.Errorf("error body = %s", rec.Body.String())
	}
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t)
	mustSaveDocument(t, env.store, storage.Document{ID: "d1", Title: "doomed", DocType: "uploaded"})
	err := env.vectors.Upsert(context.Background(), []retrieval.Record{
		{ID: "v1", DocumentID: "d1", Content: "chunk", Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/document/d1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := env.store.GetDocument("d1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("document still present: %v", err)
	}
	n, err := env.vectors.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("vector count = %d, want 0 after delete", n)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/document/d1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", rec.Code)
	}
}

func TestUploadDocuments(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "note.txt")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, "uploaded legal note about stamp duty")
	mw.WriteField("doc_type", "statute")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload_documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Documents []DocumentSummary `json:"documents"`
		Status    string            `json:"status"`
	}
	decodeBody(t, rec, &body)
	if len(body.Documents) != 1 || body.Documents[0].DocType != "statute" {
		t.Fatalf("documents = %+v", body.Documents)
	}

	doc, err := env.store.GetDocument(body.Documents[0].ID)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if !strings.Contains(doc.Content, "stamp duty") {
		t.Errorf("content = %q", doc.Content)
	}

	job, err := env.store.ClaimNextJob([]string{ingest.JobTypeVectorize})
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Error("upload with content should enqueue a vectorize job")
	}
}

func TestUploadDocuments_NoFiles(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("doc_type", "statute")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload_documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadAudio(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio", "query.wav")
	fw.Write([]byte("RIFF fake wav"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload_audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.HasSuffix(body["file"], "query.wav") {
		t.Errorf("file = %q", body["file"])
	}
	if !strings.HasPrefix(body["path"], "/audio/") {
		t.Errorf("path = %q", body["path"])
	}
}

func TestGoogleSearch_Unconfigured(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, postForm("/google-search", url.Values{"query": {"bail"}}))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501 for unconfigured search", rec.Code)
	}
}

func TestKavvySearch_MissingQuery(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/kavvy-search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestOCR_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("language", "en")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ocr", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCrawl_NoSeeds(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCrawl_HostlessURLRejected(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(`{"urls":["not-a-url"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.Contains(body["detail"], "not-a-url") {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestLegalScrape_NoKeywords(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/legal-scrape", strings.NewReader(`{"keywords":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDownloadSummary(t *testing.T) {
	env := newTestEnv(t)
	env.engine.chatFn = func(ctx context.Context, messages []engine.Message) (string, error) {
		return "SUMMARY OF ISSUE\nA dispute.\n\nRELEVANT LAWS\nSome act.", nil
	}

	payload := `{"conversation":"landlord refuses to return deposit","client_info":{"name":"Asha"}}`
	req := httptest.NewRequest(http.MethodPost, "/download_summary", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.HasPrefix(body["file_name"], "legal_summary_Asha_") {
		t.Errorf("file_name = %q", body["file_name"])
	}
	if body["pdf"] == "" {
		t.Error("pdf payload missing")
	}

	// The export must be recorded for later listing.
	listRec := env.do(t, httptest.NewRequest(http.MethodGet, "/pdf-exports", nil))
	var listBody struct {
		Exports []storage.Report `json:"exports"`
	}
	decodeBody(t, listRec, &listBody)
	if len(listBody.Exports) != 1 || listBody.Exports[0].ClientName != "Asha" {
		t.Errorf("exports = %+v", listBody.Exports)
	}
}

func TestGeneratePDF_MissingBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/generate-pdf", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

// seedVectors loads one embedded chunk aligned with the fake engine's
// query embedding so retrieval ranks it first.
func seedVectors(t *testing.T, env *testEnv) {
	t.Helper()
	err := env.vectors.Upsert(context.Background(), []retrieval.Record{
		{
			ID:         "v1",
			DocumentID: "d1",
			ChunkIndex: 0,
			Content:    "The limitation period for a money suit is three years.",
			Embedding:  []float32{1, 0},
		},
		{
			ID:         "v2",
			DocumentID: "d1",
			ChunkIndex: 1,
			Content:    "Unrelated passage.",
			Embedding:  []float32{0, 1},
		},
	})
	if err != nil {
		t.Fatalf("seeding vectors: %v", err)
	}
}

var docSeq int64

// mustSaveDocument stores a document with a strictly increasing timestamp
// so list ordering is deterministic within a test.
func mustSaveDocument(t *testing.T, store *storage.Store, doc storage.Document) {
	t.Helper()
	if doc.CreatedAt.IsZero() {
		docSeq++
		doc.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(docSeq) * time.Second)
	}
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("saving document %s: %v", doc.ID, err)
	}
}

// Package config loads service configuration from environment variables.
//
// An optional .env file in the working directory is read first; real
// environment variables take precedence. Absence of an API credential never
// fails startup; the corresponding feature degrades to a disabled state and
// the handler reports it when asked.
package config

import (
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Bhashini BhashiniConfig
	Gemini   GeminiConfig
	Ollama   OllamaConfig
	LocalASR LocalASRConfig
	Search   SearchConfig
	Pinecone PineconeConfig
	OCR      OCRConfig
	Ingest   IngestConfig
}

type ServerConfig struct {
	Port int    `env:"PORT" env-default:"8000"`
	Host string `env:"HOST" env-default:"0.0.0.0"`
}

type StorageConfig struct {
	DataDir string `env:"DATA_DIR" env-default:"./data"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

type BhashiniConfig struct {
	APIURL string `env:"BHASHINI_API_URL" env-default:"https://dhruva-api.bhashini.gov.in/services/inference/pipeline"`
	APIKey string `env:"BHASHINI_API_KEY"`

	ASRModelID     string `env:"BHASHINI_ASR_MODEL_ID" env-default:"6411748db1463435d2fbaec5"`
	ASRServiceID   string `env:"BHASHINI_ASR_SERVICE_ID" env-default:"ai4bharat/conformer-multilingual-dravidian-gpu--t4"`
	ASREnModelID   string `env:"BHASHINI_ASR_EN_MODEL_ID" env-default:"641c0be440abd176d64c3f92"`
	ASREnServiceID string `env:"BHASHINI_ASR_EN_SERVICE_ID" env-default:"ai4bharat/whisper-medium-en--gpu--t4"`

	TranslationModelID   string `env:"BHASHINI_TRANSLATION_MODEL_ID" env-default:"641d1ca98ecee6735a1b3707"`
	TranslationServiceID string `env:"BHASHINI_TRANSLATION_SERVICE_ID" env-default:"ai4bharat/indictrans-v2-all-gpu--t4"`

	// TTS is optional; an empty service ID disables synthesis.
	TTSModelID   string `env:"BHASHINI_TTS_MODEL_ID" env-default:"6348db37fb796d5e100d4ffe"`
	TTSServiceID string `env:"BHASHINI_TTS_SERVICE_ID"`
}

type GeminiConfig struct {
	APIKey string `env:"GEMINI_API_KEY"`
	Model  string `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash"`
}

type OllamaConfig struct {
	Enabled    bool   `env:"USE_OLLAMA" env-default:"false"`
	BaseURL    string `env:"OLLAMA_URL" env-default:"http://localhost:11434"`
	Model      string `env:"OLLAMA_MODEL" env-default:"gemma3:1b"`
	EmbedModel string `env:"OLLAMA_EMBED_MODEL" env-default:"nomic-embed-text"`
}

type LocalASRConfig struct {
	// BaseURL of the local NeMo transcription sidecar. Empty disables the
	// local fallback entirely.
	BaseURL string `env:"LOCAL_ASR_URL" env-default:"http://localhost:8009"`
}

type SearchConfig struct {
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
	GoogleCSEID  string `env:"GOOGLE_CSE_ID"`
	SerpAPIKey   string `env:"SERPAPI_KEY"`
}

type PineconeConfig struct {
	APIKey    string `env:"PINECONE_API_KEY"`
	IndexHost string `env:"PINECONE_INDEX_HOST"`
}

type OCRConfig struct {
	URL string `env:"OCR_URL" env-default:"https://meity-dev.ulcacontrib.org/anuvaad/ocr/v0/ulca-ocr"`
}

type IngestConfig struct {
	ChunkSize    int `env:"INGEST_CHUNK_SIZE" env-default:"1000"`
	ChunkOverlap int `env:"INGEST_CHUNK_OVERLAP" env-default:"200"`
	UpsertBatch  int `env:"INGEST_UPSERT_BATCH" env-default:"100"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	// Missing .env is fine; env vars alone are a complete configuration.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BhashiniEnabled reports whether the remote speech/translation pipeline is
// usable.
func (c Config) BhashiniEnabled() bool {
	return c.Bhashini.APIKey != ""
}

// PineconeEnabled reports whether the remote vector index is configured.
// When false the SQLite-backed store is used instead.
func (c Config) PineconeEnabled() bool {
	return c.Pinecone.APIKey != "" && c.Pinecone.IndexHost != ""
}

// PIDFile returns the server PID file path under the data directory.
func (c Config) PIDFile() string {
	return filepath.Join(c.Storage.DataDir, "sahayak.pid")
}

// AudioDir is where synthesized and uploaded audio lands.
func (c Config) AudioDir() string {
	return filepath.Join(c.Storage.DataDir, "audio")
}

// PDFExportDir is where generated summary PDFs land.
func (c Config) PDFExportDir() string {
	return filepath.Join(c.Storage.DataDir, "pdf_exports")
}

// UploadDir is where uploaded source documents land.
func (c Config) UploadDir() string {
	return filepath.Join(c.Storage.DataDir, "uploaded_docs")
}

// EnsureDataDirs creates the directory layout the service writes into.
func (c Config) EnsureDataDirs() error {
	for _, dir := range []string{
		c.Storage.DataDir,
		c.AudioDir(),
		c.PDFExportDir(),
		c.UploadDir(),
		filepath.Join(c.Storage.DataDir, "legal_documents"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

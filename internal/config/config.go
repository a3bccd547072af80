package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

// Vector store backends.
const (
	VectorStoreMemory   = "memory"
	VectorStoreBadger   = "badger"
	VectorStoreWeaviate = "weaviate"
)

// Model providers shared by embeddings and the LLM.
const (
	ProviderHash   = "hash"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Job stores.
const (
	JobStoreMemory   = "memory"
	JobStorePostgres = "postgres"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docrag"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docrag"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort       int      `envconfig:"SERVER_PORT" default:"8081"`
	UploadDir        string   `envconfig:"UPLOAD_DIR" default:"./data/uploads"`
	MaxUploadSizeMB  int64    `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	SupportedFormats []string `envconfig:"SUPPORTED_FORMATS" default:".pdf,.png,.jpg,.jpeg,.tiff,.bmp,.txt,.md"`
	QueryLogPath     string   `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel         string   `envconfig:"LOG_LEVEL" default:"info"`

	// Chunking & retrieval
	ChunkSize     int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap  int `envconfig:"CHUNK_OVERLAP" default:"200"`
	RetrievalTopK int `envconfig:"RETRIEVAL_TOP_K" default:"3"`

	// Vector store
	VectorStoreType string  `envconfig:"VECTOR_STORE_TYPE" default:"badger"`
	VectorDBPath    string  `envconfig:"VECTORDB_PATH" default:"./data/vectorstore"`
	WeaviateHost    string  `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string  `envconfig:"WEAVIATE_SCHEME" default:"http"`
	SearchAlpha     float32 `envconfig:"SEARCH_ALPHA" default:"0.5"`

	// Embeddings
	EmbeddingProvider   string `envconfig:"EMBEDDING_PROVIDER" default:"hash"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingBaseURL    string `envconfig:"EMBEDDING_BASE_URL" default:"http://localhost:11434/v1"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`

	// LLM
	LLMProvider       string  `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMModel          string  `envconfig:"LLM_MODEL" default:"llama3"`
	LLMBaseURL        string  `envconfig:"LLM_BASE_URL" default:"http://localhost:11434/v1"`
	LLMAPIKey         string  `envconfig:"LLM_API_KEY"`
	LLMTemperature    float64 `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	LLMTimeoutSeconds int     `envconfig:"LLM_TIMEOUT_SECONDS" default:"120"`
	GeminiAPIKey      string  `envconfig:"GEMINI_API_KEY"`

	RerankProvider string `envconfig:"RERANK_PROVIDER" default:"none"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`

	// Invoice side path
	InvoiceExtractionEnabled bool     `envconfig:"INVOICE_EXTRACTION_ENABLED" default:"true"`
	InvoiceKeywords          []string `envconfig:"INVOICE_KEYWORDS" default:"invoice,bill,total,amount due,tax,invoice no,invoice #"`
	InvoiceMinMatches        int      `envconfig:"INVOICE_MIN_MATCHES" default:"2"`

	// Chat
	ChatHistoryTurns int `envconfig:"CHAT_HISTORY_TURNS" default:"10"`

	// Jobs
	JobStore   string `envconfig:"JOB_STORE" default:"memory"`
	JobWorkers int    `envconfig:"JOB_WORKERS" default:"0"`

	// Extraction tools
	OCRLanguages string `envconfig:"OCR_LANGUAGES" default:"eng"`
	PDFToTextBin string `envconfig:"PDFTOTEXT_BIN" default:"pdftotext"`
	PDFToPPMBin  string `envconfig:"PDFTOPPM_BIN" default:"pdftoppm"`
	TesseractBin string `envconfig:"TESSERACT_BIN" default:"tesseract"`

	// Audit events
	NSQDHost       string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP       string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	AuditTopic     string `envconfig:"AUDIT_TOPIC" default:"invoice.audit"`
	EnableAuditNSQ bool   `envconfig:"ENABLE_AUDIT_NSQ" default:"false"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("%w: RETRIEVAL_TOP_K must be positive", ErrInvalid)
	}
	if c.ChatHistoryTurns < 0 {
		return fmt.Errorf("%w: CHAT_HISTORY_TURNS must not be negative", ErrInvalid)
	}
	if c.InvoiceMinMatches < 1 {
		return fmt.Errorf("%w: INVOICE_MIN_MATCHES must be at least 1", ErrInvalid)
	}

	if !slices.Contains([]string{VectorStoreMemory, VectorStoreBadger, VectorStoreWeaviate}, c.VectorStoreType) {
		return fmt.Errorf("%w: VECTOR_STORE_TYPE %q", ErrInvalid, c.VectorStoreType)
	}
	if !slices.Contains([]string{ProviderHash, ProviderGemini, ProviderOpenAI}, c.EmbeddingProvider) {
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}
	if !slices.Contains([]string{ProviderGemini, ProviderOpenAI, ProviderNone}, c.LLMProvider) {
		return fmt.Errorf("%w: LLM_PROVIDER %q", ErrInvalid, c.LLMProvider)
	}
	if !slices.Contains([]string{JobStoreMemory, JobStorePostgres}, c.JobStore) {
		return fmt.Errorf("%w: JOB_STORE %q", ErrInvalid, c.JobStore)
	}

	if (c.EmbeddingProvider == ProviderGemini || c.LLMProvider == ProviderGemini) && c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.BootstrapRetryDelaySeconds) * time.Second
}

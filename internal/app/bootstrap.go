package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/generative-ai-go/genai"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docrag/features/invoice"
	"docrag/internal/adapter/gemini"
	"docrag/internal/adapter/hashembed"
	"docrag/internal/adapter/openai"
	wstore "docrag/internal/adapter/weaviate"
	"docrag/internal/audit"
	"docrag/internal/config"
	"docrag/internal/index"
)

// Dependencies holds the external resources the app is built on.
// DB, LLM and Publisher are nil when the configuration does not need them.
type Dependencies struct {
	DB        *sql.DB
	Backend   index.Backend
	Embedder  index.Embedder
	LLM       invoice.Completer
	Publisher audit.Publisher

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

// SchemaEnsurer is a backend that needs its schema created before use.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (_ *Dependencies, err error) {
	deps := &Dependencies{}
	defer func() {
		if err != nil {
			if cerr := deps.Close(); cerr != nil {
				slog.Warn("failed to release partial bootstrap", "error", cerr)
			}
		}
	}()

	if needsDatabase(cfg) {
		db, err := OpenDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.onClose(db.Close)

		if err := Migrate(db, cfg.MigrationPath); err != nil {
			return nil, err
		}
	}

	var gclient *genai.Client
	if cfg.EmbeddingProvider == config.ProviderGemini || cfg.LLMProvider == config.ProviderGemini {
		gclient, err = gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini client error: %w", err)
		}
		deps.onClose(gclient.Close)
	}

	deps.Embedder, err = newEmbedder(cfg, gclient)
	if err != nil {
		return nil, err
	}

	deps.Backend, err = newBackend(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	deps.LLM, err = newLLM(cfg, gclient)
	if err != nil {
		return nil, err
	}

	if cfg.EnableAuditNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.Publisher = producer
		deps.onClose(func() error {
			producer.Stop()
			return nil
		})
		createTopics(cfg.NSQDHTTP, cfg.AuditTopic)
	}

	return deps, nil
}

func needsDatabase(cfg *config.Config) bool {
	return cfg.InvoiceExtractionEnabled || cfg.JobStore == config.JobStorePostgres
}

// OpenDatabase connects to Postgres, retrying the ping while the server starts.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = retry(ctx, cfg.BootstrapRetryAttempts, cfg.RetryDelay(), func() error {
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			slog.Warn("failed to ping db, retrying...", "error", pingErr)
		}
		return pingErr
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

func newEmbedder(cfg *config.Config, gclient *genai.Client) (index.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		model := cfg.EmbeddingModel
		if model == "" {
			model = gemini.DefaultEmbeddingModel
		}
		return gemini.NewEmbedder(gclient, model), nil
	case config.ProviderOpenAI:
		e, err := openai.NewEmbedder(openai.Config{
			BaseURL: cfg.EmbeddingBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("embedder error: %w", err)
		}
		return e, nil
	default:
		return hashembed.New(cfg.EmbeddingDimensions), nil
	}
}

func newLLM(cfg *config.Config, gclient *genai.Client) (invoice.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		model := cfg.LLMModel
		if model == "" {
			model = gemini.DefaultChatModel
		}
		return gemini.NewCompleter(gclient, model, cfg.LLMTemperature, cfg.LLMTimeout()), nil
	case config.ProviderOpenAI:
		c, err := openai.NewCompleter(openai.Config{
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("llm error: %w", err)
		}
		return c, nil
	default:
		return nil, nil
	}
}

func newBackend(ctx context.Context, cfg *config.Config, deps *Dependencies) (index.Backend, error) {
	switch cfg.VectorStoreType {
	case config.VectorStoreMemory:
		return index.NewMemoryBackend(deps.Embedder), nil
	case config.VectorStoreWeaviate:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(wClient, deps.Embedder, cfg.SearchAlpha)
		if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, cfg.RetryDelay()); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return store, nil
	default:
		b, err := index.OpenBadgerBackend(cfg.VectorDBPath, deps.Embedder, slog.Default())
		if err != nil {
			return nil, err
		}
		deps.onClose(b.Close)
		return b, nil
	}
}

// createTopics pre-creates topics so consumers can attach before the first event.
func createTopics(nsqdHTTP string, topics ...string) {
	client := &http.Client{Timeout: 5 * time.Second}
	create := func(topic string) {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		resp, err := client.Post(u, "application/json", nil) // #nosec G107 -- URL is built from NSQ config
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, t := range topics {
			create(t)
		}
	}()
}

// EnsureSchemaWithRetry retries schema creation while the store starts up.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, func() error { return store.EnsureSchema(ctx) })
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}

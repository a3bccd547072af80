package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docrag/internal/config"
)

// IntegrationSuite starts Postgres (migrated), Weaviate and nsqd in containers.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	pgHost          string
	pgPort          int
	weaviateHost    string
	nsqTCP, nsqHTTP string

	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	nsqContainer      testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// MigrationPath points at the repository's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	// 1. Postgres
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("docrag_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	s.pgHost, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.pgPort = pgPort.Int()

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	// 2. Weaviate
	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:latest",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = weaviateC

	host, err := weaviateC.Host(ctx)
	require.NoError(s.T, err)
	port, err := weaviateC.MappedPort(ctx, "8080")
	require.NoError(s.T, err)
	s.weaviateHost = fmt.Sprintf("%s:%s", host, port.Port())

	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)

	// 3. NSQ
	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	nsqHost, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	tcpPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	httpPort, err := nsqC.MappedPort(ctx, "4151")
	require.NoError(s.T, err)
	s.nsqTCP = fmt.Sprintf("%s:%s", nsqHost, tcpPort.Port())
	s.nsqHTTP = fmt.Sprintf("%s:%s", nsqHost, httpPort.Port())

	s.NSQ, err = nsq.NewProducer(s.nsqTCP, nsq.NewConfig())
	require.NoError(s.T, err)
}

// GetAppConfig returns a config pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	return &config.Config{
		DBHost:        s.pgHost,
		DBPort:        s.pgPort,
		DBUser:        "test",
		DBPass:        "test",
		DBName:        "docrag_test",
		MigrationPath: MigrationPath(),

		ServerPort:       0,
		UploadDir:        s.T.TempDir(),
		MaxUploadSizeMB:  10,
		SupportedFormats: []string{".pdf", ".txt", ".md"},
		QueryLogPath:     filepath.Join(s.T.TempDir(), "query.log"),

		ChunkSize:     1000,
		ChunkOverlap:  200,
		RetrievalTopK: 3,

		VectorStoreType: config.VectorStoreWeaviate,
		WeaviateHost:    s.weaviateHost,
		WeaviateScheme:  "http",
		SearchAlpha:     0.5,

		EmbeddingProvider:   config.ProviderHash,
		EmbeddingDimensions: 64,
		LLMProvider:         config.ProviderNone,
		RerankProvider:      "none",

		InvoiceExtractionEnabled: true,
		InvoiceKeywords:          []string{"invoice", "bill", "total", "amount due", "tax"},
		InvoiceMinMatches:        2,

		JobStore: config.JobStorePostgres,

		NSQDHost:       s.nsqTCP,
		NSQDHTTP:       s.nsqHTTP,
		AuditTopic:     config.TopicInvoiceAudit,
		EnableAuditNSQ: true,

		BootstrapRetryAttempts:     5,
		BootstrapRetryDelaySeconds: 1,
	}
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		s.weaviateContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
}

package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/app"
	"docrag/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()
	require.NotNil(t, deps.DB)

	for _, table := range []string{"invoices", "jobs"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	assert.Equal(t, "weaviate", deps.Backend.Name())
	require.NotNil(t, deps.Publisher)
	assert.NoError(t, deps.Publisher.Publish(cfg.AuditTopic, []byte(`{"type":"invoice.skipped"}`)))

	a, err := app.New(cfg, deps, nil)
	require.NoError(t, err)
	defer a.Close()

	n, err := a.Ingest.AddTexts(context.Background(), []string{"Weaviate keeps the chunks"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := a.Retrieval.Search(context.Background(), "Weaviate keeps the chunks", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Weaviate keeps the chunks", res[0].Content)
}

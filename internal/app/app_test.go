package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/config"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	mysqlp "github.com/bryanwahyu/sentiment-api/internal/infra/db/mysql"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.LocalStore.Path = filepath.Join(t.TempDir(), "local.db")
	cfg.Classifier.APIKey = ""
	cfg.AI.OpenAIAPIKey = ""
	cfg.AI.AnthropicAPIKey = ""
	cfg.Minio.Endpoint = ""
	cfg.Analysis.ExternalTimeout = 2 * time.Second
	return cfg
}

func TestBuildKeepsRemoteWhenDatabaseIsDown(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Driver = config.DriverMySQL
	cfg.Database.DSN = "u:p@tcp(127.0.0.1:1)/db"

	a, err := Build(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.IsType(t, &mysqlp.Repository{}, a.History.Remote)
	require.True(t, a.Checks["remote_db"].Optional)
	require.Equal(t, 2*time.Second, a.History.Timeout)

	rec := domain.NewRecord("alice", domain.KindText, domain.Source{}, domain.Result{OriginalText: "saved during outage"})
	out, err := a.History.Save(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, domain.OriginLocal, out.Origin)

	rep, err := a.History.Restore(ctx, "alice")
	require.NoError(t, err)
	require.False(t, rep.Reachable)
	require.Equal(t, 1, rep.Remaining)
}

func TestBuildWithoutRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = config.DriverNone

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NotContains(t, a.Checks, "remote_db")
	require.Contains(t, a.Checks, "local_store")
	require.Nil(t, a.Analysis.Classifier)
	require.Nil(t, a.Analysis.Generator)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/app"
	"github.com/bryanwahyu/sentiment-api/internal/config"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

func setupApp(t *testing.T) *app.App {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Database.Driver = config.DriverNone
	cfg.LocalStore.Path = filepath.Join(t.TempDir(), "local.db")
	cfg.Classifier.APIKey = ""
	cfg.AI.OpenAIAPIKey = ""
	cfg.AI.AnthropicAPIKey = ""
	cfg.Minio.Endpoint = ""

	a, err := app.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func run(t *testing.T, a *app.App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cliApp := newCLIApp(a)
	cliApp.Writer = &out
	err := cliApp.Run(append([]string{"sentimentctl"}, args...))
	return out.String(), err
}

func TestAnalyzeTextSavesLocally(t *testing.T) {
	a := setupApp(t)

	out, err := run(t, a, "analyze", "--owner", "alice", "--text", "I love this wonderful product, it works great")
	require.NoError(t, err)

	var res struct {
		ID      string `json:"id"`
		Storage string `json:"storage"`
		domain.Result
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "local", res.Storage)
	require.Equal(t, domain.Positive, res.PrimarySentiment.Label)

	out, err = run(t, a, "status", "--owner", "alice")
	require.NoError(t, err)
	var st domain.StorageStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	require.Equal(t, 1, st.LocalRecords)
	require.False(t, st.RemoteReachable)

	out, err = run(t, a, "history", "--owner", "alice", "--search", "wonderful")
	require.NoError(t, err)
	var recs []domain.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	require.Equal(t, res.ID, recs[0].ID)
}

func TestAnalyzeRejectsMissingInput(t *testing.T) {
	a := setupApp(t)
	_, err := run(t, a, "analyze")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No input provided")
}

func TestExtractFile(t *testing.T) {
	a := setupApp(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	_, err := run(t, a, "extract", "--file", path)
	require.Error(t, err)
	require.Contains(t, err.Error(), domain.CodeUnsupportedFileType)
}

func TestSyncWithoutRemote(t *testing.T) {
	a := setupApp(t)
	_, err := run(t, a, "analyze", "--owner", "bob", "--text", "The delivery was late and the box was damaged badly")
	require.NoError(t, err)

	out, err := run(t, a, "sync", "--owner", "bob")
	require.NoError(t, err)
	var report domain.RestoreReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.False(t, report.Reachable)
	require.Equal(t, 1, report.Remaining)
}

func TestExportWritesFile(t *testing.T) {
	a := setupApp(t)
	_, err := run(t, a, "analyze", "--owner", "carol", "--text", "Great service and friendly staff at the hotel")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "h.xlsx")
	_, err = run(t, a, "export", "--owner", "carol", "--out", path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 10*time.Second, cfg.Analysis.ExternalTimeout)
	require.Equal(t, 50, cfg.Analysis.BatchLimit)
	require.Equal(t, 5*time.Minute, cfg.Analysis.BatchTimeout)
	require.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	require.Equal(t, int64(10<<20), cfg.Analysis.MaxUploadBytes)
	require.Equal(t, "en", cfg.Analysis.TargetLanguage)
	require.Equal(t, DriverMySQL, cfg.Database.Driver)
	require.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	require.Empty(t, cfg.Sync.Schedule)
	require.Empty(t, cfg.DSN())
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: 9090
database:
  driver: postgres
  host: db
  port: 5432
  user: app
  password: secret
  name: sentiments
ai:
  provider: anthropic
  anthropicApiKey: from-file
analysis:
  externalTimeout: 3s
sync:
  schedule: "*/10 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("PORT", "7070")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("API_KEYS", "alice:k1, bob:k2,broken")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 3*time.Second, cfg.Analysis.ExternalTimeout)
	require.Equal(t, "from-env", cfg.GeneratorAPIKey())
	require.Equal(t, map[string]string{"alice": "k1", "bob": "k2"}, cfg.Auth.APIKeys)
	require.Equal(t, "postgres://app:secret@db:5432/sentiments?sslmode=disable", cfg.DSN())
	require.NoError(t, cfg.Validate())
}

func TestMySQLDSN(t *testing.T) {
	var cfg Config
	cfg.Database.Driver = DriverMySQL
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 3306
	cfg.Database.User = "root"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "app"
	require.Equal(t, "root:pw@tcp(localhost:3306)/app?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DSN())
}

func TestValidateRejects(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.Database.Driver = "mongo"
	cfg.AI.Provider = "gemini"
	cfg.Analysis.BatchLimit = -1
	cfg.Analysis.BatchTimeout = -time.Second
	cfg.Sync.Schedule = "sometimes"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "mongo")
	require.Contains(t, err.Error(), "gemini")
	require.Contains(t, err.Error(), "batchLimit")
	require.Contains(t, err.Error(), "batchTimeout")
	require.Contains(t, err.Error(), "sometimes")
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

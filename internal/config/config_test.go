package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, ProviderAICore, cfg.LLM.Provider)
	assert.Equal(t, 800, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, 15*time.Second, cfg.LLM.TokenTimeout)
	assert.Equal(t, 60*time.Second, cfg.LLM.InferenceTimeout)
	assert.Equal(t, "default", cfg.LLM.AICore.ResourceGroup)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "data/st22.db", cfg.Storage.Path)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
llm:
  provider: Ollama
  maxTokens: 1200
  temperature: 0.2
  local:
    url: http://localhost:11434/generate
storage:
  driver: postgres
  database:
    host: db
    port: 5432
    user: st22
    password: secret
    name: dumps
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, ProviderLocal, cfg.LLM.ProviderKind())
	assert.Equal(t, 1200, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Empty(t, cfg.LLM.Missing())
	assert.Equal(t, "host=db port=5432 user=st22 password=secret dbname=dumps sslmode=disable", cfg.PostgresDSN())
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, `
llm:
  provider: local
  local:
    url: http://from-file
`)
	t.Setenv("LLM_PROVIDER", "sap_aicore")
	t.Setenv("AI_CORE_TOKEN_URL", "https://auth.example/oauth/token")
	t.Setenv("AI_CORE_CLIENT_ID", "client")
	t.Setenv("AI_CORE_CLIENT_SECRET", "secret")
	t.Setenv("AI_CORE_INFERENCE_URL", "https://infer.example/chat/completions")
	t.Setenv("LLM_MAX_TOKENS", "256")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("STORAGE_DB", "/tmp/x.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderAICore, cfg.LLM.ProviderKind())
	assert.Equal(t, "https://auth.example/oauth/token", cfg.LLM.AICore.TokenURL)
	assert.Equal(t, "http://from-file", cfg.LLM.Local.URL)
	assert.Equal(t, 256, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.Path)
	assert.Empty(t, cfg.LLM.Missing())
}

func TestMissing(t *testing.T) {
	c := LLMConfig{Provider: ProviderAICore, AICore: AICoreConfig{ClientID: "id"}}
	assert.Equal(t, []string{"AI_CORE_TOKEN_URL", "AI_CORE_CLIENT_SECRET", "AI_CORE_INFERENCE_URL"}, c.Missing())

	c = LLMConfig{Provider: "vllm"}
	assert.Equal(t, []string{"LOCAL_LLM_URL"}, c.Missing())

	c = LLMConfig{Provider: "bard"}
	assert.Equal(t, "bard", c.ProviderKind())
	assert.Empty(t, c.Missing())
}

func TestMySQLDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Database = DatabaseConfig{Host: "h", Port: 3306, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "u:p@tcp(h:3306)/n?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}

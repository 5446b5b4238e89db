// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
server:
  http_addr: "0.0.0.0:8080"

auth:
  token: "secret-token"

database:
  path: "./test.db"

assistant:
  base_url: "https://api.openai.com"
  api_key: "sk-test"
  model: "gpt-4o-mini"
  poll_interval: "500ms"
  poll_max_attempts: 10

imagery:
  workers: 3
  batch_timeout: "90s"

logging:
  level: "debug"
  format: "json"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "secret-token", cfg.Auth.Token)
	assert.Equal(t, "./test.db", cfg.Database.Path)
	assert.Equal(t, "gpt-4o-mini", cfg.Assistant.Model)
	assert.Equal(t, 500*time.Millisecond, cfg.Assistant.PollInterval)
	assert.Equal(t, 10, cfg.Assistant.PollMaxAttempts)
	assert.Equal(t, 3, cfg.Imagery.Workers)
	assert.Equal(t, 90*time.Second, cfg.Imagery.BatchTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
auth:
  token: "t"
database:
  path: "./test.db"
assistant:
  model: "gpt-4o-mini"
`))
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Assistant.PollInterval)
	assert.Equal(t, 240, cfg.Assistant.PollMaxAttempts)
	assert.Equal(t, "assistant_cache.json", cfg.Assistant.CacheFile)
	assert.Equal(t, 5, cfg.Imagery.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Imagery.BatchTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CHOWLINE_TEST_TOKEN", "expanded-secret")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
auth:
  token: "${CHOWLINE_TEST_TOKEN}"
database:
  path: "./test.db"
assistant:
  model: "gpt-4o-mini"
`))
	require.NoError(t, err)
	assert.Equal(t, "expanded-secret", cfg.Auth.Token)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
auth:
  token: "t"
database:
  path: "./test.db"
assistant:
  model: "m"
`,
			wantErr: "server.http_addr",
		},
		{
			name: "missing token",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
assistant:
  model: "m"
`,
			wantErr: "auth.token",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
auth:
  token: "t"
assistant:
  model: "m"
`,
			wantErr: "database.path",
		},
		{
			name: "missing model",
			content: `
server:
  http_addr: ":8080"
auth:
  token: "t"
database:
  path: "./test.db"
`,
			wantErr: "assistant.model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
auth:
  token: "t"
database:
  path: "./test.db"
assistant:
  model: "m"
  poll_interval: "not-a-duration"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

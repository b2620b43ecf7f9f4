package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults, yaml layers and env overrides", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
jwt:
  secret: ${TEST_JWT_SECRET}
llm:
  provider: ollama
  model: llama3
agent:
  max_history: 6
`), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(`
storage:
  driver: memory
`), 0o600))
		t.Setenv("TEST_JWT_SECRET", "shh")
		t.Setenv("LLM_MODEL", "llama3.1")

		cfg, err := Load("test", dir)
		require.NoError(t, err)
		assert.Equal(t, "shh", cfg.JWT.Secret)
		assert.Equal(t, "memory", cfg.Storage.Driver)
		assert.Equal(t, "ollama", cfg.LLM.Provider)
		assert.Equal(t, "llama3.1", cfg.LLM.Model)
		assert.Equal(t, 6, cfg.Agent.MaxHistory)
		assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, "todo", cfg.Agent.Adapter)
	})

	t.Run("Should reject config without a jwt secret", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("log:\n  level: info\n"), 0o600))
		t.Setenv("JWT_SECRET", "")

		_, err := Load("local", dir)
		assert.ErrorContains(t, err, "jwt.secret")
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "x"
	require.NoError(t, cfg.Validate())

	cfg.Storage.Driver = "sqlite"
	cfg.LLM.Provider = "mystery"
	cfg.LLM.Timeout = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "storage.driver")
	assert.ErrorContains(t, err, "llm.provider")
	assert.ErrorContains(t, err, "llm.timeout")
}

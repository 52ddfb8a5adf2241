package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	t.Setenv("OPENROUTER_API_KEY", "")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", c.DefaultModel)
	assert.Equal(t, "openai/gpt-4o-mini", c.SelectorModel)
	assert.Equal(t, "economist", c.DefaultPersona)
	assert.Equal(t, 5, c.MaxToolRounds)
	assert.Equal(t, 1, c.RetryMaxAttempts)
	assert.Equal(t, ":8080", c.ServerAddr)
	assert.NotEmpty(t, c.ProjectsDir)
	assert.NoError(t, c.Validate())
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_model: anthropic/claude-3.5-sonnet\nmax_tool_rounds: 3\n"), 0o600))
	t.Setenv("SURVEYLOOM_MAX_TOOL_ROUNDS", "4")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", c.DefaultModel)
	assert.Equal(t, 4, c.MaxToolRounds)
	assert.Equal(t, "sk-test", c.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("OPENROUTER_API_KEY", "")
	c, err := Load(path)
	require.NoError(t, err)
	c.DefaultPersona = "policy-brief"
	c.AllowedOrigins = []string{"http://localhost:3000"}
	require.NoError(t, Save(c, path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "policy-brief", back.DefaultPersona)
	assert.Equal(t, []string{"http://localhost:3000"}, back.AllowedOrigins)
}

func TestValidateRejects(t *testing.T) {
	c := &Global{DefaultProvider: "bedrock", DefaultModel: "m", SelectorModel: "s", MaxToolRounds: 5, HTTPTimeoutSec: 1, RetryMaxAttempts: 1}
	assert.Error(t, c.Validate())
	c.DefaultProvider = "ollama"
	assert.NoError(t, c.Validate())
	c.MaxToolRounds = 0
	assert.Error(t, c.Validate())
	c.MaxToolRounds = 5
	c.LogLevel = "loud"
	assert.Error(t, c.Validate())
}

func TestEnsureSessionSecret(t *testing.T) {
	c := &Global{}
	s, generated, err := c.EnsureSessionSecret()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, s, 64)

	c.SessionSecret = "0123456789abcdef0123456789abcdef"
	s, generated, err = c.EnsureSessionSecret()
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, c.SessionSecret, s)
}

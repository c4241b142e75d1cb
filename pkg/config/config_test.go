package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsSecretsFromEnv(t *testing.T) {
	t.Setenv("DOCQA_LLM_APIKEY", "sk-test")
	t.Setenv("DOCQA_AUTH_JWTSECRET", "topsecret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "topsecret", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 100, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, "embedding", cfg.Selector.Strategy)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("DOCQA_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.apiKey")

	cfg.LLM.APIKey = "sk-test"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwtSecret")

	cfg.Auth.JWTSecret = "topsecret"
	assert.NoError(t, cfg.Validate())
}

package config_test

import (
	"os"
	"testing"

	"github.com/memg/memg-core/pkg/config"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MEMG_SCHEMA_REGISTRY", "MEMG_STORE_DATA_DIR", "MEMG_STORE_IN_MEMORY",
		"MEMG_STORE_VECTOR_COLLECTION", "MEMG_EMBEDDING_PROVIDER", "MEMG_EMBEDDING_DIMENSIONS",
		"MEMG_RETRIEVAL_NEIGHBOR_DECAY", "MEMG_RETRIEVAL_DEFAULT_LIMIT", "MEMG_RETRIEVAL_MAX_LIMIT",
		"MEMG_HTTP_PORT", "MEMG_AUTH_ENABLED", "MEMG_AUTH_TOKENS",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg := config.LoadFromEnv()

	require.Equal(t, "./schema.yaml", cfg.Schema.RegistryPath)
	require.Equal(t, "memories", cfg.Store.VectorCollection)
	require.Equal(t, "stub", cfg.Embedding.Provider)
	require.Equal(t, 0.9, cfg.Retrieval.NeighborDecay)
	require.False(t, cfg.Auth.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMG_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("MEMG_RETRIEVAL_NEIGHBOR_DECAY", "0.5")
	t.Setenv("MEMG_AUTH_TOKENS", "u1:hash1,u2:hash2")

	cfg := config.LoadFromEnv()
	require.Equal(t, 768, cfg.Embedding.Dimensions)
	require.Equal(t, 0.5, cfg.Retrieval.NeighborDecay)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "hash1", cfg.Auth.TokenHashes["u1"])
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadNeighborDecay(t *testing.T) {
	clearEnv(t)
	cfg := config.LoadFromEnv()
	cfg.Retrieval.NeighborDecay = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsAuthEnabledWithoutTokens(t *testing.T) {
	clearEnv(t)
	cfg := config.LoadFromEnv()
	cfg.Auth.Enabled = true
	cfg.Auth.TokenHashes = nil
	require.Error(t, cfg.Validate())
}

func TestStringOmitsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMG_AUTH_TOKENS", "u1:supersecrethash")
	cfg := config.LoadFromEnv()
	require.NotContains(t, cfg.String(), "supersecrethash")
}

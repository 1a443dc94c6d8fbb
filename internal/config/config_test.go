package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "gemini", cfg.LLM.Provider)
	require.Equal(t, "GEMINI_API_KEY", cfg.LLM.APIKeyEnv)
	require.Equal(t, 5, cfg.Resolver.TopK)
	require.Equal(t, 0.70, cfg.Resolver.MatchThreshold)
	require.Equal(t, 0.50, cfg.Resolver.AmbiguousFloor)
	require.Equal(t, 10*time.Second, cfg.Resolver.ClassifyTimeout)
	require.Equal(t, 30*time.Second, cfg.Resolver.OracleTimeout)
	require.NotEmpty(t, cfg.Database.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VENDORMATCH_LLM_PROVIDER", "heuristic")
	t.Setenv("VENDORMATCH_RESOLVER_TOP_K", "8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "heuristic", cfg.LLM.Provider)
	require.Equal(t, 8, cfg.Resolver.TopK)
}

func TestResolveAPIKeyPrefersLiteral(t *testing.T) {
	t.Setenv("VM_TEST_KEY", "from-env")

	c := LLMConfig{APIKey: "literal", APIKeyEnv: "VM_TEST_KEY"}
	require.Equal(t, "literal", c.ResolveAPIKey())

	c.APIKey = ""
	require.Equal(t, "from-env", c.ResolveAPIKey())
}

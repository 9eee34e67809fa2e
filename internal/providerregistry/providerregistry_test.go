package providerregistry

import (
	"testing"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestMaterialize_ClaudeIsUnconfigured(t *testing.T) {
	env := Materialize(domain.ProviderClaude)
	require.Empty(t, env)
}

func TestMaterialize_GLMSetsOpusModel(t *testing.T) {
	t.Setenv("Z_AI_API_KEY", "secret")
	env := Materialize(domain.ProviderGLM)
	require.Equal(t, "https://api.z.ai/api/anthropic", env["ANTHROPIC_BASE_URL"])
	require.Equal(t, "secret", env["ANTHROPIC_AUTH_TOKEN"])
	require.Equal(t, "glm-4.7", env["ANTHROPIC_DEFAULT_OPUS_MODEL"])
}

func TestMaterialize_DeepSeekHasNoOpusModel(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "secret")
	env := Materialize(domain.ProviderDeepSeek)
	require.Equal(t, "https://api.deepseek.com/anthropic", env["ANTHROPIC_BASE_URL"])
	require.NotContains(t, env, "ANTHROPIC_DEFAULT_OPUS_MODEL")
}

func TestPoolCapMatchesConfiguredLimits(t *testing.T) {
	require.Equal(t, 2, PoolCap(domain.ProviderClaude))
	require.Equal(t, 4, PoolCap(domain.ProviderGLM))
	require.Equal(t, 6, PoolCap(domain.ProviderDeepSeek))
	require.Equal(t, 2, PoolCap(domain.ProviderOpenRouter))
}

// Package providerregistry maps a domain.Provider to the environment bundle
// a spawned agent process needs to reach that provider's API endpoint, and
// to the concurrent-agent pool capacity assigned to it.
package providerregistry

import (
	"fmt"
	"os"

	"github.com/hekateai/hekate/internal/domain"
)

// entry is the static description of one provider's wiring.
type entry struct {
	baseURLEnv     string
	baseURL        string
	authTokenEnv   string
	defaultModel   string
	defaultModelEnv string
	poolCap        int
}

var registry = map[domain.Provider]entry{
	domain.ProviderClaude: {
		poolCap: 2,
	},
	domain.ProviderGLM: {
		baseURLEnv:      "ANTHROPIC_BASE_URL",
		baseURL:         "https://api.z.ai/api/anthropic",
		authTokenEnv:    "Z_AI_API_KEY",
		defaultModel:    "glm-4.7",
		defaultModelEnv: "ANTHROPIC_DEFAULT_OPUS_MODEL",
		poolCap:         4,
	},
	domain.ProviderDeepSeek: {
		baseURLEnv:   "ANTHROPIC_BASE_URL",
		baseURL:      "https://api.deepseek.com/anthropic",
		authTokenEnv: "DEEPSEEK_API_KEY",
		poolCap:      6,
	},
	domain.ProviderOpenRouter: {
		baseURLEnv:   "ANTHROPIC_BASE_URL",
		baseURL:      "https://openrouter.ai/api",
		authTokenEnv: "OPENROUTER_API_KEY",
		poolCap:      2,
	},
}

// AutoPoolCap is the concurrent-agent cap for "auto" routing. No caller
// applies it: the router always yields a concrete provider, which is capped
// by PoolCap.
const AutoPoolCap = 2

// PoolCap returns the configured concurrent-agent cap for a provider.
func PoolCap(p domain.Provider) int {
	return registry[p].poolCap
}

// Materialize returns the environment variables a child process needs to
// reach p's API, layered on top of the supervisor's own environment so the
// child inherits PATH, HOME, and similar ambient state.
func Materialize(p domain.Provider) map[string]string {
	e, ok := registry[p]
	env := map[string]string{}
	if !ok || e.baseURLEnv == "" {
		// Claude uses the operator's default Anthropic configuration untouched.
		return env
	}

	env[e.baseURLEnv] = e.baseURL
	env["ANTHROPIC_AUTH_TOKEN"] = os.Getenv(e.authTokenEnv)
	if e.defaultModelEnv != "" {
		env[e.defaultModelEnv] = e.defaultModel
	}
	return env
}

// EnvSlice formats Materialize's output as NAME=value pairs suitable for
// appending to exec.Cmd.Env.
func EnvSlice(p domain.Provider) []string {
	m := Materialize(p)
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

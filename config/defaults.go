// =============================================================================
// Hekate default configuration
// =============================================================================
// Reasonable defaults for every configuration section.
// =============================================================================
package config

// DefaultConfig returns the built-in configuration used when no config file
// is found at any of DefaultSearchPaths.
func DefaultConfig() *Config {
	return &Config{
		Providers:        DefaultProvidersConfig(),
		AgentPools:       DefaultAgentPoolsConfig(),
		IterationBudgets: DefaultIterationBudgetsConfig(),
		QuotaThresholds:  DefaultQuotaThresholdsConfig(),
		Redis:            DefaultRedisConfig(),
		Qdrant:           DefaultQdrantConfig(),
		Log:              DefaultLogConfig(),
	}
}

// DefaultProvidersConfig returns the per-provider quota and pool defaults.
// Quota limits mirror each provider's typical daily request allowance;
// operators with a different plan should override via config.yaml.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Claude: ProviderConfig{
			Type: "claude", QuotaLimit: 45, WindowHours: 5, BufferPercent: 20, PoolSize: 2,
		},
		GLM: ProviderConfig{
			Type: "glm", QuotaLimit: 120, WindowHours: 24, BufferPercent: 15, PoolSize: 3,
		},
		DeepSeek: ProviderConfig{
			Type: "deepseek", QuotaLimit: 200, WindowHours: 24, BufferPercent: 10, PoolSize: 4,
		},
		OpenRouter: ProviderConfig{
			Type: "openrouter", QuotaLimit: 100, WindowHours: 24, BufferPercent: 15, PoolSize: 2,
		},
	}
}

// DefaultAgentPoolsConfig returns the default total concurrent agent cap.
func DefaultAgentPoolsConfig() AgentPoolsConfig {
	return AgentPoolsConfig{TotalAgents: 8}
}

// DefaultIterationBudgetsConfig returns the default per-complexity-band
// iteration caps handed to spawned agents.
func DefaultIterationBudgetsConfig() IterationBudgetsConfig {
	return IterationBudgetsConfig{Simple: 10, Medium: 25, Complex: 50}
}

// DefaultQuotaThresholdsConfig returns the default conservative-usage
// cutoffs the router checks before preferring Claude.
func DefaultQuotaThresholdsConfig() QuotaThresholdsConfig {
	return QuotaThresholdsConfig{ClaudeConservative: 0.5, GLMConservative: 0.7}
}

// DefaultRedisConfig returns the default coordination store connection.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultQdrantConfig returns the default semantic memory index connection,
// targeting the "sessions" collection spec.md §6 names.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:                 "localhost",
		Port:                 6333,
		APIKey:               "",
		Collection:           "sessions",
		AutoCreateCollection: true,
	}
}

// DefaultLogConfig returns the default zap logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

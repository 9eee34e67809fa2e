// =============================================================================
// Hekate configuration loader
// =============================================================================
// Unified config loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("HEKATE").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables
// =============================================================================
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is hekate's complete configuration, matching spec.md §6's schema:
// providers.<name>, agent_pools, iteration_budgets, quota_thresholds, redis.
type Config struct {
	Providers        ProvidersConfig        `yaml:"providers" env:"PROVIDERS"`
	AgentPools       AgentPoolsConfig       `yaml:"agent_pools" env:"AGENT_POOLS"`
	IterationBudgets IterationBudgetsConfig `yaml:"iteration_budgets" env:"ITERATION_BUDGETS"`
	QuotaThresholds  QuotaThresholdsConfig  `yaml:"quota_thresholds" env:"QUOTA_THRESHOLDS"`
	Redis            RedisConfig            `yaml:"redis" env:"REDIS"`
	Qdrant           QdrantConfig           `yaml:"qdrant" env:"QDRANT"`
	Log              LogConfig              `yaml:"log" env:"LOG"`
}

// ProviderConfig is one provider's quota and pool sizing.
type ProviderConfig struct {
	Type          string `yaml:"type" env:"TYPE"`
	QuotaLimit    int    `yaml:"quota_limit" env:"QUOTA_LIMIT"`
	WindowHours   int    `yaml:"window_hours" env:"WINDOW_HOURS"`
	BufferPercent int    `yaml:"buffer_percent" env:"BUFFER_PERCENT"`
	PoolSize      int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// ProvidersConfig holds one ProviderConfig per closed provider variant.
type ProvidersConfig struct {
	Claude     ProviderConfig `yaml:"claude" env:"CLAUDE"`
	GLM        ProviderConfig `yaml:"glm" env:"GLM"`
	DeepSeek   ProviderConfig `yaml:"deepseek" env:"DEEPSEEK"`
	OpenRouter ProviderConfig `yaml:"openrouter" env:"OPENROUTER"`
}

// AgentPoolsConfig caps the number of concurrently supervised agents.
type AgentPoolsConfig struct {
	TotalAgents int `yaml:"total_agents" env:"TOTAL_AGENTS"`
}

// IterationBudgetsConfig bounds the agent iteration count by task complexity band.
type IterationBudgetsConfig struct {
	Simple  int `yaml:"simple" env:"SIMPLE"`
	Medium  int `yaml:"medium" env:"MEDIUM"`
	Complex int `yaml:"complex" env:"COMPLEX"`
}

// QuotaThresholdsConfig sets the conservative-usage cutoffs the router
// checks before preferring Claude for medium-complexity implementation work.
type QuotaThresholdsConfig struct {
	ClaudeConservative float64 `yaml:"claude_conservative" env:"CLAUDE_CONSERVATIVE"`
	GLMConservative    float64 `yaml:"glm_conservative" env:"GLM_CONSERVATIVE"`
}

// RedisConfig configures the coordination store connection, matching
// spec.md's redis.{host, port, db}.
type RedisConfig struct {
	Host         string `yaml:"host" env:"HOST"`
	Port         int    `yaml:"port" env:"PORT"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// Addr returns the host:port address store.Config expects.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QdrantConfig configures the memory bus's semantic vector index, persisted
// as the "sessions" collection per spec.md §6.
type QdrantConfig struct {
	Host                 string `yaml:"host" env:"HOST"`
	Port                 int    `yaml:"port" env:"PORT"`
	APIKey               string `yaml:"api_key" env:"API_KEY"`
	Collection           string `yaml:"collection" env:"COLLECTION"`
	AutoCreateCollection bool   `yaml:"auto_create_collection" env:"AUTO_CREATE_COLLECTION"`
}

// BaseURL returns the Qdrant REST endpoint built from Host/Port.
func (q QdrantConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", q.Host, q.Port)
}

// LogConfig configures the zap logger shared by the supervisor and every hook.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads a Config using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "HEKATE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after load.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// DefaultSearchPaths returns the config search order spec.md §6 names:
// ~/.hekate/config.yaml, ~/.config/hekate/config.yaml, then the bundled default.
func DefaultSearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".hekate", "config.yaml"),
		filepath.Join(home, ".config", "hekate", "config.yaml"),
	}
}

// ResolveConfigPath returns the first existing path in DefaultSearchPaths,
// or "" if none exist, meaning the caller should fall back to defaults.
func ResolveConfigPath() string {
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load loads the configuration.
// Precedence: defaults -> YAML file -> environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively applies environment overrides to a struct.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration, searching DefaultSearchPaths when path is
// empty, and panics on failure.
func MustLoad(path string) *Config {
	if path == "" {
		path = ResolveConfigPath()
	}
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for the invariants spec.md's boundary
// examples depend on (a zero or negative quota limit would make CanUse
// meaningless; a zero total_agents would starve the supervisor loop).
func (c *Config) Validate() error {
	var errs []string

	for name, p := range map[string]ProviderConfig{
		"claude":     c.Providers.Claude,
		"glm":        c.Providers.GLM,
		"deepseek":   c.Providers.DeepSeek,
		"openrouter": c.Providers.OpenRouter,
	} {
		if p.QuotaLimit <= 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.quota_limit must be positive", name))
		}
		if p.BufferPercent < 0 || p.BufferPercent > 100 {
			errs = append(errs, fmt.Sprintf("providers.%s.buffer_percent must be in [0, 100]", name))
		}
	}

	if c.AgentPools.TotalAgents <= 0 {
		errs = append(errs, "agent_pools.total_agents must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the coordination substrate every supervisor instance and every
// hook subprocess talks to. All methods enforce their own deadline so a
// slow or unreachable Redis never blocks a caller indefinitely.
type Store struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Config configures the underlying Redis connection.
type Config struct {
	Addr                string        `yaml:"addr" json:"addr"`
	Password            string        `yaml:"password" json:"password"`
	DB                  int           `yaml:"db" json:"db"`
	DefaultTTL          time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	PoolSize            int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns        int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	// OpTimeout bounds every individual Redis round trip. Callers that need a
	// longer-lived operation (none currently do) should use their own context.
	OpTimeout time.Duration `yaml:"op_timeout" json:"op_timeout"`
}

// DefaultConfig returns the defaults used when config.yaml omits the redis section.
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DB:                  0,
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
		OpTimeout:           2 * time.Second,
	}
}

// ErrMiss is returned when a key does not exist.
var ErrMiss = errors.New("store: key miss")

// IsMiss reports whether err is (or wraps) ErrMiss.
func IsMiss(err error) bool { return errors.Is(err, ErrMiss) }

// New dials Redis, verifies connectivity, and starts the background health
// check loop when config.HealthCheckInterval is positive.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connect to redis: %w", err)
	}

	s := &Store{
		redis:  client,
		config: cfg,
		logger: logger.With(zap.String("component", "store")),
	}

	if cfg.HealthCheckInterval > 0 {
		go s.healthCheckLoop()
	}

	s.logger.Info("coordination store initialized", zap.String("addr", cfg.Addr))
	return s, nil
}

// Client exposes the underlying redis.Client for components (pattern CAS
// loops) that need WATCH/MULTI semantics store's higher-level API doesn't cover.
func (s *Store) Client() *redis.Client { return s.redis }

func (s *Store) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

func (s *Store) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store: closed")
	}
	return nil
}

// Get returns the string value of key, or ErrMiss if absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	val, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("store: get %q: %w", key, err)
	}
	return val, nil
}

// Set writes key=value with the given ttl (or the store's default when ttl is 0).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.guard(); err != nil {
		return err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if ttl == 0 {
		ttl = s.config.DefaultTTL
	}
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// ClaimNX attempts to atomically claim key=value if absent, returning true
// on success. This is the sole mutual-exclusion primitive used to claim a task.
func (s *Store) ClaimNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	ok, err := s.redis.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: claim %q: %w", key, err)
	}
	return ok, nil
}

// IncrBy atomically adds delta to the integer stored at key and returns the
// new value. Used for quota counts and epic completion counters.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	v, err := s.redis.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("store: incrby %q: %w", key, err)
	}
	return v, nil
}

// LPushTrim pushes values onto the head of a list and trims it to the most
// recent maxLen entries, forming a bounded FIFO.
func (s *Store) LPushTrim(ctx context.Context, key string, maxLen int64, values ...string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	pipe := s.redis.TxPipeline()
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	pipe.LPush(ctx, key, args...)
	pipe.LTrim(ctx, key, 0, maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: lpushtrim %q: %w", key, err)
	}
	return nil
}

// LRange returns up to count entries from the head of a list.
func (s *Store) LRange(ctx context.Context, key string, count int64) ([]string, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	vals, err := s.redis.LRange(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: lrange %q: %w", key, err)
	}
	return vals, nil
}

// SAdd adds members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.redis.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("store: sadd %q: %w", key, err)
	}
	return nil
}

// ScanPrefix returns every key matching prefix+"*" using cursor-based SCAN,
// never the blocking KEYS command.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("store: scan %q: %w", prefix, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// GetJSON unmarshals the value stored at key into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("store: unmarshal %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and stores it at key with the given ttl.
func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal %q: %w", key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}

// Delete removes one or more keys. A no-op if keys is empty.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

// Exists returns the number of the given keys that exist.
func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	count, err := s.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("store: exists: %w", err)
	}
	return count, nil
}

// Expire sets a new TTL on an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.guard(); err != nil {
		return err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("store: expire %q: %w", key, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	return s.redis.Ping(ctx).Err()
}

// Close shuts down the Redis connection. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing coordination store")
	return s.redis.Close()
}

func (s *Store) healthCheckLoop() {
	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Ping(ctx); err != nil {
			s.logger.Warn("store health check failed", zap.Error(err))
		}
		cancel()
	}
}

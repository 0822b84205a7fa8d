package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-ledger-cache/internal/cacheinfra"
)

// Backend names. The memory backend lives inside one process, so its
// invalidations never reach other replicas; deployments running more than one
// instance against the same database must use redis.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend      string        `mapstructure:"backend"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	SingleFlight bool          `mapstructure:"single_flight"`
	Memory       MemoryConfig  `mapstructure:"memory"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// MemoryConfig mirrors the in-process sturdyc options.
type MemoryConfig struct {
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	MaxTTL             time.Duration `mapstructure:"max_ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval"`
}

// RedisConfig mirrors the redis client options.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ScanCount    int64         `mapstructure:"scan_count"`
}

// DefaultTTL is the lifetime of a cached aggregate when none is configured.
const DefaultTTL = time.Hour

// DefaultOpTimeout bounds every backend round trip.
const DefaultOpTimeout = 250 * time.Millisecond

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	mem := cacheinfra.DefaultMemoryConfig()
	rds := cacheinfra.DefaultRedisConfig()

	return Config{
		Backend:    BackendMemory,
		DefaultTTL: DefaultTTL,
		OpTimeout:  DefaultOpTimeout,
		Memory: MemoryConfig{
			Capacity:           mem.Capacity,
			NumShards:          mem.NumShards,
			MaxTTL:             mem.MaxTTL,
			EvictionPercentage: mem.EvictionPercentage,
			EvictionInterval:   mem.EvictionInterval,
		},
		Redis: RedisConfig{
			Addr:         rds.Addr,
			DialTimeout:  rds.DialTimeout,
			ReadTimeout:  rds.ReadTimeout,
			WriteTimeout: rds.WriteTimeout,
			ScanCount:    rds.ScanCount,
		},
	}
}

// Validate checks whether the configuration values are valid. Only the
// selected backend's section is checked.
func (c Config) Validate() error {
	var problems []string

	if c.DefaultTTL <= 0 {
		problems = append(problems, "default_ttl must be greater than 0")
	}
	if c.OpTimeout < 0 {
		problems = append(problems, "op_timeout must be non-negative")
	}

	switch c.Backend {
	case BackendMemory:
		if err := c.Memory.toInternal().Validate(); err != nil {
			problems = append(problems, "memory: "+err.Error())
		}
	case BackendRedis:
		if err := c.Redis.toInternal().Validate(); err != nil {
			problems = append(problems, "redis: "+err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("backend %q must be %q or %q", c.Backend, BackendMemory, BackendRedis))
	}

	if len(problems) > 0 {
		return errors.New("invalid cache config: "+strings.Join(problems, "; "), errors.CategoryValidation)
	}
	return nil
}

// Shared reports whether the backend is visible to every process that uses
// the same configuration.
func (c Config) Shared() bool {
	return c.Backend == BackendRedis
}

// NewBackend constructs the configured backend.
func NewBackend(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendRedis {
		rds, err := cacheinfra.NewRedisBackend(cfg.Redis.toInternal())
		if err != nil {
			return nil, err
		}
		return rds, nil
	}

	mem, err := cacheinfra.NewMemoryBackend(cfg.Memory.toInternal())
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (c MemoryConfig) toInternal() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		ScanCount:    c.ScanCount,
	}
}

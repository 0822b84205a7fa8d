// Package config loads the process configuration from an optional YAML file,
// a .env file and LEDGER_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/goliatone/go-ledger-cache/cache"
	"github.com/goliatone/go-ledger-cache/internal/amqp"
	"github.com/goliatone/go-ledger-cache/internal/httpapi"
	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/internal/storage"
	"github.com/goliatone/go-ledger-cache/report"
)

// EnvPrefix namespaces environment overrides, e.g. LEDGER_CACHE_BACKEND.
const EnvPrefix = "LEDGER"

// ReportConfig controls the monthly report job.
type ReportConfig struct {
	Currency     string        `mapstructure:"currency"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

type Config struct {
	Log     logging.Config    `mapstructure:"log"`
	Storage storage.Config    `mapstructure:"storage"`
	Cache   cache.Config      `mapstructure:"cache"`
	Server  httpapi.Config    `mapstructure:"server"`
	AMQP    amqp.Config       `mapstructure:"amqp"`
	Mail    report.MailConfig `mapstructure:"mail"`
	Report  ReportConfig      `mapstructure:"report"`
}

func Default() Config {
	return Config{
		Log:     logging.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
		Server:  httpapi.DefaultConfig(),
		AMQP:    amqp.DefaultConfig(),
		Mail:    report.DefaultMailConfig(),
		Report: ReportConfig{
			Currency:     report.DefaultCurrency,
			TickInterval: time.Hour,
		},
	}
}

// Load reads the configuration. An empty path looks for config.yaml in the
// working directory and carries on without it; an explicit path must exist.
func Load(path string) (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "read config").
				WithTextCode("CONFIG_UNREADABLE")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "decode config").
			WithTextCode("CONFIG_UNREADABLE")
	}
	return &cfg, nil
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	for _, err := range []error{
		c.Storage.Validate(),
		c.Cache.Validate(),
		c.Server.Validate(),
		c.AMQP.Validate(),
		c.Mail.Validate(),
		c.Report.Validate(),
	} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c ReportConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Currency) == "" {
		problems = append(problems, "currency is required")
	}
	if c.TickInterval <= 0 {
		problems = append(problems, "tick_interval must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid report config: "+strings.Join(problems, "; "), errors.CategoryValidation).
			WithTextCode("INVALID_REPORT_CONFIG")
	}
	return nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.max_open_conns", d.Storage.MaxOpenConns)
	v.SetDefault("storage.max_idle_conns", d.Storage.MaxIdleConns)
	v.SetDefault("storage.conn_max_lifetime", d.Storage.ConnMaxLifetime)
	v.SetDefault("storage.auto_migrate", d.Storage.AutoMigrate)
	v.SetDefault("storage.debug", d.Storage.Debug)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.op_timeout", d.Cache.OpTimeout)
	v.SetDefault("cache.single_flight", d.Cache.SingleFlight)
	v.SetDefault("cache.memory.capacity", d.Cache.Memory.Capacity)
	v.SetDefault("cache.memory.num_shards", d.Cache.Memory.NumShards)
	v.SetDefault("cache.memory.max_ttl", d.Cache.Memory.MaxTTL)
	v.SetDefault("cache.memory.eviction_percentage", d.Cache.Memory.EvictionPercentage)
	v.SetDefault("cache.memory.eviction_interval", d.Cache.Memory.EvictionInterval)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.pool_size", d.Cache.Redis.PoolSize)
	v.SetDefault("cache.redis.dial_timeout", d.Cache.Redis.DialTimeout)
	v.SetDefault("cache.redis.read_timeout", d.Cache.Redis.ReadTimeout)
	v.SetDefault("cache.redis.write_timeout", d.Cache.Redis.WriteTimeout)
	v.SetDefault("cache.redis.scan_count", d.Cache.Redis.ScanCount)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("amqp.url", d.AMQP.URL)
	v.SetDefault("amqp.exchange", d.AMQP.Exchange)
	v.SetDefault("amqp.queue", d.AMQP.Queue)
	v.SetDefault("amqp.prefetch", d.AMQP.Prefetch)
	v.SetDefault("amqp.publish_timeout", d.AMQP.PublishTimeout)

	v.SetDefault("mail.host", d.Mail.Host)
	v.SetDefault("mail.port", d.Mail.Port)
	v.SetDefault("mail.username", d.Mail.Username)
	v.SetDefault("mail.password", d.Mail.Password)
	v.SetDefault("mail.from", d.Mail.From)

	v.SetDefault("report.currency", d.Report.Currency)
	v.SetDefault("report.tick_interval", d.Report.TickInterval)
}

package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// LoadConfig loads the configuration from file and environment variables.
// It returns the viper instance as well so callers can watch the file.
func LoadConfig(paths ...string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	// Load from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("/etc/psn/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, errors.ErrInternal("failed to read config file").WithCause(err)
		}
	}

	// Load from environment variables
	v.SetEnvPrefix("PSN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, errors.ErrInternal("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.ErrInternal("invalid configuration").WithCause(err)
	}

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "psn")
	v.SetDefault("database.database", "psn")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 3600)
	v.SetDefault("database.max_conn_idle_time", 600)
	v.SetDefault("database.health_check_period", 30)
	v.SetDefault("database.conn_timeout", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.domain_ttl", constants.DomainConfigCacheTTL.String())

	v.SetDefault("vault.address", "http://localhost:8200")
	v.SetDefault("vault.timeout", "5s")

	v.SetDefault("kafka.audit_topic", "psn.audit")
	v.SetDefault("kafka.write_timeout", "5s")

	v.SetDefault("auth.issuer", "psn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("pseudonym.retry_budget", constants.DefaultRetryBudget)
	v.SetDefault("pseudonym.default_success_probability", constants.DefaultSuccessProbability)
	v.SetDefault("pseudonym.minimum_length", constants.MinimumPseudonymLength)
	v.SetDefault("pseudonym.max_batch_size", constants.DefaultMaxBatchSize)

	v.SetDefault("access_cache.ttl", constants.AccessPathCacheTTL.String())
	v.SetDefault("access_cache.wait_timeout", constants.AccessPathCacheWaitTimeout.String())
	v.SetDefault("access_cache.poll_interval", constants.AccessPathCachePollInterval.String())
}

// WatchLogLevel re-reads log.level whenever the config file changes and hands it to apply.
func WatchLogLevel(v *viper.Viper, log logger.Logger, apply func(level string) error) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("log.level")
		if err := apply(level); err != nil {
			log.Warn(context.Background(), "Ignoring invalid log level from config change",
				logger.String("file", e.Name),
				logger.String("level", level),
			)
			return
		}
		log.Info(context.Background(), "Log level updated from config change",
			logger.String("file", e.Name),
			logger.String("level", level),
		)
	})
	v.WatchConfig()
}

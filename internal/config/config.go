package config

import (
	"fmt"
	"time"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Pseudonym   PseudonymConfig   `mapstructure:"pseudonym"`
	AccessCache AccessCacheConfig `mapstructure:"access_cache"`
}

type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	EnablePprof        bool          `mapstructure:"enable_pprof"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	SSLMode           string `mapstructure:"ssl_mode"`
	MaxConns          int    `mapstructure:"max_conns"`
	MinConns          int    `mapstructure:"min_conns"`
	MaxConnLifetime   int    `mapstructure:"max_conn_lifetime"`   // in seconds
	MaxConnIdleTime   int    `mapstructure:"max_conn_idle_time"`  // in seconds
	HealthCheckPeriod int    `mapstructure:"health_check_period"` // in seconds
	ConnTimeout       int    `mapstructure:"conn_timeout"`        // in seconds
	AutoMigrate       bool   `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DomainTTL    time.Duration `mapstructure:"domain_ttl"`
}

type VaultConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Address string        `mapstructure:"address"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SigningKey, when set, adds an HMAC-SHA256 signature header to every audit message.
	SigningKey string `mapstructure:"signing_key"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	// PathPrefix is stripped from identity provider paths before they are matched against domain names.
	PathPrefix string `mapstructure:"path_prefix"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type PseudonymConfig struct {
	RetryBudget               int     `mapstructure:"retry_budget"`
	DefaultSuccessProbability float64 `mapstructure:"default_success_probability"`
	MinimumLength             int     `mapstructure:"minimum_length"`
	MaxBatchSize              int     `mapstructure:"max_batch_size"`
}

type AccessCacheConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Pseudonym.RetryBudget <= 0 {
		return fmt.Errorf("pseudonym.retry_budget must be positive")
	}
	if p := c.Pseudonym.DefaultSuccessProbability; p <= 0 || p >= 1 {
		return fmt.Errorf("pseudonym.default_success_probability must lie in (0, 1): %v", p)
	}
	if c.Pseudonym.MinimumLength < 1 {
		return fmt.Errorf("pseudonym.minimum_length must be positive")
	}
	if c.Pseudonym.MaxBatchSize <= 0 {
		return fmt.Errorf("pseudonym.max_batch_size must be positive")
	}
	if c.AccessCache.TTL <= 0 || c.AccessCache.WaitTimeout <= 0 || c.AccessCache.PollInterval <= 0 {
		return fmt.Errorf("access_cache durations must be positive")
	}
	if c.AccessCache.PollInterval > c.AccessCache.WaitTimeout {
		return fmt.Errorf("access_cache.poll_interval exceeds wait_timeout")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if c.Auth.Enabled && !c.Vault.Enabled {
		return fmt.Errorf("vault must be enabled to resolve authorization paths")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`

	// Upstream hotel provider.
	UpstreamBaseURL      string        `mapstructure:"UPSTREAM_BASE_URL"`
	UpstreamUsername     string        `mapstructure:"UPSTREAM_USERNAME"`
	UpstreamPassword     string        `mapstructure:"UPSTREAM_PASSWORD"`
	UpstreamLoginPath    string        `mapstructure:"UPSTREAM_LOGIN_PATH"`
	UpstreamTimeout      time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	UpstreamLoginTimeout time.Duration `mapstructure:"UPSTREAM_LOGIN_TIMEOUT"`
	UpstreamTokenTTL     time.Duration `mapstructure:"UPSTREAM_TOKEN_TTL"`
	UpstreamRPS          float64       `mapstructure:"UPSTREAM_RPS"`
	UpstreamBurst        int           `mapstructure:"UPSTREAM_BURST"`

	// TokenStore selects where the upstream bearer token is cached: postgres or redis.
	TokenStore string `mapstructure:"TOKEN_STORE"`
	RedisURL   string `mapstructure:"REDIS_URL"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Audit events. An empty broker list disables publishing.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaAuditTopic string `mapstructure:"KAFKA_AUDIT_TOPIC"`
	AuditBuffer     int    `mapstructure:"AUDIT_BUFFER"`
}

const (
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
)

var keys = []string{
	"APP_PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS",
	"UPSTREAM_BASE_URL", "UPSTREAM_USERNAME", "UPSTREAM_PASSWORD", "UPSTREAM_LOGIN_PATH",
	"UPSTREAM_TIMEOUT", "UPSTREAM_LOGIN_TIMEOUT", "UPSTREAM_TOKEN_TTL", "UPSTREAM_RPS", "UPSTREAM_BURST",
	"TOKEN_STORE", "REDIS_URL", "JWT_SECRET", "KAFKA_BROKERS", "KAFKA_AUDIT_TOPIC", "AUDIT_BUFFER",
}

// Load reads an optional .env file, then a config.yaml from the working
// directory or ./config, then the environment. Environment values win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("UPSTREAM_LOGIN_PATH", "/api/auth/login")
	v.SetDefault("UPSTREAM_TIMEOUT", "30s")
	v.SetDefault("UPSTREAM_LOGIN_TIMEOUT", "15s")
	v.SetDefault("UPSTREAM_TOKEN_TTL", "55m")
	v.SetDefault("UPSTREAM_RPS", 0)
	v.SetDefault("UPSTREAM_BURST", 10)
	v.SetDefault("TOKEN_STORE", TokenStorePostgres)
	v.SetDefault("KAFKA_AUDIT_TOPIC", "pricing.audit")
	v.SetDefault("AUDIT_BUFFER", 1024)

	// AutomaticEnv only answers Get; Unmarshal needs every key to be known.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.UpstreamBaseURL == "" {
		problems = append(problems, "UPSTREAM_BASE_URL is required")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required in production")
	}
	switch c.TokenStore {
	case TokenStorePostgres:
	case TokenStoreRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required when TOKEN_STORE=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("TOKEN_STORE must be %q or %q, got %q", TokenStorePostgres, TokenStoreRedis, c.TokenStore))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hotelhub")
	t.Setenv("UPSTREAM_BASE_URL", "https://supplier.example.com")
	t.Setenv("UPSTREAM_LOGIN_TIMEOUT", "5s")
	t.Setenv("UPSTREAM_RPS", "2.5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AppPort != "8080" || cfg.Env != "development" || cfg.TokenStore != TokenStorePostgres {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.UpstreamLoginPath != "/api/auth/login" || cfg.UpstreamTokenTTL != 55*time.Minute || cfg.UpstreamTimeout != 30*time.Second {
		t.Fatalf("upstream defaults not applied: %+v", cfg)
	}
	if cfg.UpstreamLoginTimeout != 5*time.Second || cfg.UpstreamRPS != 2.5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.DBMaxConns != 20 || cfg.AuditBuffer != 1024 {
		t.Fatalf("numeric defaults not applied: %+v", cfg)
	}
	brokers := cfg.KafkaBrokerList()
	if len(brokers) != 2 || brokers[0] != "kafka-1:9092" || brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected broker list %v", brokers)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("UPSTREAM_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "UPSTREAM_BASE_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Config{DatabaseURL: "postgres://db", UpstreamBaseURL: "https://up", TokenStore: TokenStorePostgres}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "redis without url", mutate: func(c *Config) { c.TokenStore = TokenStoreRedis }, wantErr: "REDIS_URL"},
		{name: "redis with url", mutate: func(c *Config) { c.TokenStore = TokenStoreRedis; c.RedisURL = "redis://cache:6379/0" }},
		{name: "unknown store", mutate: func(c *Config) { c.TokenStore = "memcached" }, wantErr: "TOKEN_STORE"},
		{name: "production without secret", mutate: func(c *Config) { c.Env = "production" }, wantErr: "JWT_SECRET"},
		{name: "production with secret", mutate: func(c *Config) { c.Env = "production"; c.JWTSecret = "s3cret" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tc.wantErr, err)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func validConfig() Config {
	return Config{
		LogLevel:     "INFO",
		HTTP:         HTTPConfig{Address: ":8080", Timeout: 5 * time.Second},
		Storage:      StorageConfig{Driver: DriverMemory},
		Auth:         AuthConfig{Secret: secret, TokenTTL: time.Hour},
		Breaker:      BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second},
		HistoryLimit: 200,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, "JWT_SECRET"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "TOKEN_TTL"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "STORAGE_DRIVER"},
		{"postgres without address", func(c *Config) { c.Storage.Driver = DriverPostgres }, "DB_ADDRESS"},
		{"mongo without address", func(c *Config) { c.Storage.Driver = DriverMongo }, "DB_ADDRESS"},
		{"history limit too high", func(c *Config) { c.HistoryLimit = 500 }, "HISTORY_LIMIT"},
		{"history limit zero", func(c *Config) { c.HistoryLimit = 0 }, "HISTORY_LIMIT"},
		{"zero breaker timeout", func(c *Config) { c.Breaker.OpenTimeout = 0 }, "AUDIT_BREAKER_TIMEOUT"},
	}

	for _, tt := range tests {
		cfg := validConfig()
		tt.mutate(&cfg)

		err := cfg.Validate()
		if tt.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Fatalf("%s: expected error mentioning %s, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestLoad_FallsBackToEnv(t *testing.T) {
	unsetEnv(t, "TOKEN_TTL")
	unsetEnv(t, "API_ADDRESS")
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("STORAGE_DRIVER", DriverMemory)
	t.Setenv("HISTORY_LIMIT", "50")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HistoryLimit != 50 || cfg.Storage.Driver != DriverMemory {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Auth.TokenTTL != time.Hour || cfg.HTTP.Address != ":8080" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()

	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset %s: %v", key, err)
	}
}

func TestLoad_File(t *testing.T) {
	unsetEnv(t, "JWT_SECRET")
	unsetEnv(t, "STORAGE_DRIVER")
	unsetEnv(t, "HISTORY_LIMIT")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "storage:\n  driver: memory\nauth:\n  jwt_secret: " + secret + "\nhistory_limit: 100\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HistoryLimit != 100 || cfg.Auth.Secret != secret {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	unsetEnv(t, "JWT_SECRET")
	t.Setenv("STORAGE_DRIVER", DriverMemory)

	if _, err := Load(""); err == nil {
		t.Fatalf("expected an error without JWT_SECRET")
	}
}

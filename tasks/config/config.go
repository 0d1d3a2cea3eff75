package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"

	minSecretLen    = 32
	maxHistoryLimit = 200
)

type HTTPConfig struct {
	Address string        `yaml:"address" env:"API_ADDRESS" env-default:":8080"`
	Timeout time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"5s"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Address  string `yaml:"address" env:"DB_ADDRESS"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"teamtask"`
}

type AuthConfig struct {
	Secret   string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" env:"AUDIT_BREAKER_FAILURES" env-default:"5"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"AUDIT_BREAKER_TIMEOUT" env-default:"30s"`
}

type Config struct {
	LogLevel     string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"DEBUG"`
	LogFile      string        `yaml:"log_file" env:"LOG_FILE"`
	HTTP         HTTPConfig    `yaml:"api_server"`
	Storage      StorageConfig `yaml:"storage"`
	Auth         AuthConfig    `yaml:"auth"`
	Breaker      BreakerConfig `yaml:"audit_breaker"`
	HistoryLimit int           `yaml:"history_limit" env:"HISTORY_LIMIT" env-default:"200"`
}

func MustLoad(configPath string) Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("config: %s", err)
	}
	return cfg
}

// Load reads configPath and falls back to the environment when the path is
// empty or the file does not exist.
func Load(configPath string) (Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("cannot read env: %w", err)
		}
		return cfg, cfg.Validate()
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("cannot read config %q: %w", configPath, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("cannot read env: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	if len(c.Auth.Secret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("API_TIMEOUT must be positive"))
	}

	switch c.Storage.Driver {
	case DriverPostgres, DriverMongo:
		if c.Storage.Address == "" {
			errs = append(errs, fmt.Errorf("DB_ADDRESS is required for the %s driver", c.Storage.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > maxHistoryLimit {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be within 1..%d", maxHistoryLimit))
	}
	if c.Breaker.OpenTimeout <= 0 {
		errs = append(errs, errors.New("AUDIT_BREAKER_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

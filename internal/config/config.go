// Package config loads rch's configuration from environment variables
// (with an optional .env file for local development, per the
// teacher's godotenv use), with a YAML file overlay available for
// operators who prefer a config file to a long env var list (grounded
// on forgedlabs-mail_sorter's verifier service). Malformed values are
// fatal at startup (spec §6): this package never silently defaults a
// value the operator tried and failed to set.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL string

	DatabaseMaxConnections uint32
	MinTaskConcurrency     int
	MaxFetchConcurrency    int

	HTTPHost net.IP
	HTTPPort uint16

	ProxyHost string
	ProxyPort int

	FromEmail string

	SaasifySecret string

	BulkEnabled     bool
	BulkMaxItems    int
	BulkMaxBodySize int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

const (
	defaultDatabaseMaxConnections = 5
	defaultMinTaskConcurrency     = 10
	defaultMaxFetchConcurrency    = 20
	defaultHTTPPort               = 8080
	defaultSaasifySecret          = "reacher_dev_secret"
	defaultFromEmail              = "user@example.org"
	defaultBulkMaxItems           = 5000
	defaultBulkMaxBodySize        = 16 * 1024
	defaultRedisAddr              = "localhost:6379"
)

// fileOverlay is the subset of settings an operator may place in a
// YAML config file; env vars always take precedence over it.
type fileOverlay struct {
	Database struct {
		MaxConnections *uint32 `yaml:"max_connections"`
	} `yaml:"database"`
	HTTP struct {
		Host *string `yaml:"host"`
		Port *uint16 `yaml:"port"`
	} `yaml:"http"`
	Worker struct {
		MinConcurrency  *int `yaml:"min_concurrency"`
		MaxFetchWorkers *int `yaml:"max_fetch_concurrency"`
	} `yaml:"worker"`
}

// Load resolves configuration from, in increasing priority: built-in
// defaults, an optional YAML file at yamlPath (if non-empty and
// present), a .env file in the working directory (if present), then
// real process environment variables.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Load() // local dev convenience; absence is not an error

	cfg := Config{
		DatabaseMaxConnections: defaultDatabaseMaxConnections,
		MinTaskConcurrency:     defaultMinTaskConcurrency,
		MaxFetchConcurrency:    defaultMaxFetchConcurrency,
		HTTPHost:               net.ParseIP("127.0.0.1"),
		HTTPPort:               defaultHTTPPort,
		FromEmail:              defaultFromEmail,
		SaasifySecret:          defaultSaasifySecret,
		BulkEnabled:            true,
		BulkMaxItems:           defaultBulkMaxItems,
		BulkMaxBodySize:        defaultBulkMaxBodySize,
		RedisAddr:              defaultRedisAddr,
	}

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			var overlay fileOverlay
			if err := yaml.Unmarshal(data, &overlay); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
			}
			if err := applyOverlay(&cfg, overlay); err != nil {
				return Config{}, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyOverlay(cfg *Config, overlay fileOverlay) error {
	if overlay.Database.MaxConnections != nil {
		cfg.DatabaseMaxConnections = *overlay.Database.MaxConnections
	}
	if overlay.HTTP.Host != nil {
		ip := net.ParseIP(*overlay.HTTP.Host)
		if ip == nil {
			return fmt.Errorf("config: http.host: invalid IP %q", *overlay.HTTP.Host)
		}
		cfg.HTTPHost = ip
	}
	if overlay.HTTP.Port != nil {
		cfg.HTTPPort = *overlay.HTTP.Port
	}
	if overlay.Worker.MinConcurrency != nil {
		cfg.MinTaskConcurrency = *overlay.Worker.MinConcurrency
	}
	if overlay.Worker.MaxFetchWorkers != nil {
		cfg.MaxFetchConcurrency = *overlay.Worker.MaxFetchWorkers
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if v, ok := os.LookupEnv("RCH_DATABASE_MAX_CONNECTIONS"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: RCH_DATABASE_MAX_CONNECTIONS: %w", err)
		}
		cfg.DatabaseMaxConnections = uint32(n)
	}

	if v, ok := os.LookupEnv("RCH_MINIMUM_TASK_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RCH_MINIMUM_TASK_CONCURRENCY: %w", err)
		}
		cfg.MinTaskConcurrency = n
	}

	if v, ok := os.LookupEnv("RCH_MAXIMUM_CONCURRENT_TASK_FETCH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RCH_MAXIMUM_CONCURRENT_TASK_FETCH: %w", err)
		}
		cfg.MaxFetchConcurrency = n
	}

	if v, ok := os.LookupEnv("RCH_HTTP_HOST"); ok {
		ip := net.ParseIP(v)
		if ip == nil {
			return fmt.Errorf("config: RCH_HTTP_HOST: invalid IP %q", v)
		}
		cfg.HTTPHost = ip
	}

	if v, ok := os.LookupEnv("PORT"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.HTTPPort = uint16(n)
	}

	if v, ok := os.LookupEnv("RCH_PROXY_HOST"); ok {
		cfg.ProxyHost = v
	}
	if v, ok := os.LookupEnv("RCH_PROXY_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RCH_PROXY_PORT: %w", err)
		}
		cfg.ProxyPort = n
	}

	if v, ok := os.LookupEnv("RCH_FROM_EMAIL"); ok {
		cfg.FromEmail = v
	}

	if v, ok := os.LookupEnv("RCH_SAASIFY_SECRET"); ok {
		cfg.SaasifySecret = v
	}

	if v, ok := os.LookupEnv("RCH_BULK_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: RCH_BULK_ENABLED: %w", err)
		}
		cfg.BulkEnabled = b
	}

	if v, ok := os.LookupEnv("RCH_BULK_MAX_ITEMS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RCH_BULK_MAX_ITEMS: %w", err)
		}
		cfg.BulkMaxItems = n
	}

	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		cfg.RedisPassword = v
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}

	return nil
}

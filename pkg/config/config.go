package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config is the addon process configuration, loaded from a YAML file and
// overridable per field via ADDON_* environment variables.
type Config struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"baseUrl"`

	Storage struct {
		Backend  string `yaml:"backend"`
		BoltPath string `yaml:"boltPath"`
		Postgres string `yaml:"postgres"`
	} `yaml:"storage"`

	Security struct {
		// JWKSURL points at the Clockify signing keys. When empty and no
		// PEM key is given, signature verification is disabled (local
		// development only).
		JWKSURL         string `yaml:"jwksUrl"`
		PublicKeyPEM    string `yaml:"publicKeyPem"`
		HMACSecret      string `yaml:"hmacSecret"`
		ExpectedSubject string `yaml:"expectedSubject"`
	} `yaml:"security"`

	Dedup struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"dedup"`

	Rules struct {
		ApplyChanges bool          `yaml:"applyChanges"`
		CacheTTL     time.Duration `yaml:"cacheTtl"`
	} `yaml:"rules"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file or environment is
// present.
func Default() *Config {
	cfg := &Config{
		Addr: ":8080",
	}
	cfg.Storage.Backend = BackendMemory
	cfg.Storage.BoltPath = "addon.db"
	cfg.Dedup.TTL = 10 * time.Minute
	cfg.Rules.CacheTTL = 30 * time.Second
	cfg.RateLimit.RPS = 50
	cfg.RateLimit.Burst = 100
	cfg.Log.Level = "info"
	cfg.Log.JSON = true
	return cfg
}

// Load reads the YAML file (skipped when path is empty), merges a .env file
// from the working directory into the environment, then applies environment
// overrides and validates the result. Real environment variables beat both
// files.
func Load(path string) (*Config, error) {
	cfg := Default()
	loadDotEnv(".env")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads KEY=VALUE lines into the process environment without
// overriding variables already set.
func loadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("ADDON_ADDR", &c.Addr)
	setString("ADDON_BASE_URL", &c.BaseURL)
	setString("ADDON_STORAGE_BACKEND", &c.Storage.Backend)
	setString("ADDON_STORAGE_BOLT_PATH", &c.Storage.BoltPath)
	setString("ADDON_STORAGE_POSTGRES", &c.Storage.Postgres)
	setString("ADDON_JWKS_URL", &c.Security.JWKSURL)
	setString("ADDON_PUBLIC_KEY_PEM", &c.Security.PublicKeyPEM)
	setString("ADDON_HMAC_SECRET", &c.Security.HMACSecret)
	setString("ADDON_EXPECTED_SUBJECT", &c.Security.ExpectedSubject)
	setString("ADDON_LOG_LEVEL", &c.Log.Level)

	if v, ok := os.LookupEnv("ADDON_DEDUP_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Dedup.TTL = d
		}
	}
	if v, ok := os.LookupEnv("ADDON_RULES_APPLY_CHANGES"); ok {
		c.Rules.ApplyChanges = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := os.LookupEnv("ADDON_RATE_LIMIT_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit.RPS = f
		}
	}
	if v, ok := os.LookupEnv("ADDON_LOG_JSON"); ok {
		c.Log.JSON = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("storage.boltPath is required for the bolt backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres == "" {
			return fmt.Errorf("storage.postgres DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rateLimit.rps must not be negative")
	}
	return nil
}

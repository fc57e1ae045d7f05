package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
)

type Config struct {
	// Engine
	CatalogPath   string        `env:"CATALOG_PATH" envDefault:"catalog.yaml"`
	RawNamespace  string        `env:"RAW_NAMESPACE" envDefault:"typing_internal"`
	Workers       int           `env:"WORKERS" envDefault:"4"`
	StreamTimeout time.Duration `env:"STREAM_TIMEOUT" envDefault:"30m"` // max time for one stream (inspect + all steps)
	Streams       []string      `env:"STREAMS" envSeparator:","`         // optional "namespace.name" filter

	// Connection retry (bootstrap only; the engine itself never retries)
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`

	ConnPoolSize    int           `env:"CONN_POOL_SIZE" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`

	// Observability
	EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
	EnablePprof       bool `env:"ENABLE_PPROF" envDefault:"false"`
	MetricsPort       int  `env:"METRICS_PORT" envDefault:"9091"` // 0 disables the HTTP server
	DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`

	// Vault
	VaultEnabled    bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr       string `env:"VAULT_ADDR" envDefault:"https://127.0.0.1:8200"`
	VaultToken      string `env:"VAULT_TOKEN"`
	VaultCACert     string `env:"VAULT_CACERT"`
	VaultSkipVerify bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`
	VaultMountPath  string `env:"VAULT_MOUNT_PATH" envDefault:"secret"`
	DstSecretPath   string `env:"DST_SECRET_PATH"`
	DstUsernameKey  string `env:"DST_USERNAME_KEY" envDefault:"username"`
	DstPasswordKey  string `env:"DST_PASSWORD_KEY" envDefault:"password"`

	Audit AuditConfig `envPrefix:"AUDIT_"`

	DstDB DatabaseConfig `envPrefix:"DST_"`
}

// AuditConfig controls the archive of executed SQL.
type AuditConfig struct {
	Dir        string `env:"DIR"`
	S3Bucket   string `env:"S3_BUCKET"`
	S3Prefix   string `env:"S3_PREFIX" envDefault:"dbtyper/audit"`
	S3Region   string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint string `env:"S3_ENDPOINT"`
}

// Enabled reports whether executed SQL should be archived at all.
func (a AuditConfig) Enabled() bool {
	return a.Dir != ""
}

type DatabaseConfig struct {
	Dialect  string `env:"DIALECT,required"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"0"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	DBName   string `env:"DBNAME,required"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	opts := env.Options{RequiredIfNoDef: false}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

var supportedDialects = map[string]bool{
	"mysql":    true,
	"postgres": true,
	"sqlite":   true,
}

func validateConfig(cfg *Config) error {
	cfg.DstDB.Dialect = strings.ToLower(cfg.DstDB.Dialect)
	if !supportedDialects[cfg.DstDB.Dialect] {
		return fmt.Errorf("invalid destination dialect: %s. Valid options: %v",
			cfg.DstDB.Dialect, getMapKeys(supportedDialects))
	}

	validatePort := func(port int, name string) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s port: %d", name, port)
		}
		return nil
	}
	if cfg.DstDB.Dialect != "sqlite" {
		if cfg.DstDB.Port == 0 {
			cfg.DstDB.Port = defaultPort(cfg.DstDB.Dialect)
		}
		if err := validatePort(cfg.DstDB.Port, "destination"); err != nil {
			return err
		}
	}
	// 0 mematikan HTTP server
	if cfg.MetricsPort != 0 {
		if err := validatePort(cfg.MetricsPort, "metrics"); err != nil {
			return err
		}
	}

	if strings.TrimSpace(cfg.RawNamespace) == "" {
		return fmt.Errorf("raw namespace cannot be empty")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.StreamTimeout <= 0 {
		return fmt.Errorf("stream timeout must be positive")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if cfg.ConnPoolSize <= 0 {
		return fmt.Errorf("connection pool size must be positive")
	}
	if cfg.Audit.S3Bucket != "" && cfg.Audit.Dir == "" {
		return fmt.Errorf("AUDIT_S3_BUCKET requires AUDIT_DIR to stage archives locally")
	}

	validSSL := map[string]bool{
		"disable":     true,
		"allow":       true,
		"prefer":      true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if isSSLModeRelevant(cfg.DstDB.Dialect) && !validSSL[strings.ToLower(cfg.DstDB.SSLMode)] {
		return fmt.Errorf("invalid SSL mode for destination DB: %s", cfg.DstDB.SSLMode)
	}

	return nil
}

func defaultPort(dialect string) int {
	switch dialect {
	case "mysql":
		return 3306
	case "postgres":
		return 5432
	default:
		return 0
	}
}

func getMapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isSSLModeRelevant(dialect string) bool {
	switch strings.ToLower(dialect) {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}

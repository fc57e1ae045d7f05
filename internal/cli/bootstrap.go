package cli

import (
	"context"
	"errors"
	"io/fs"
	stdlog "log"
	"strings"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/audit"
	"github.com/arwahdevops/dbtyper/internal/config"
	"github.com/arwahdevops/dbtyper/internal/db"
	"github.com/arwahdevops/dbtyper/internal/logger"
	"github.com/arwahdevops/dbtyper/internal/metrics"
	"github.com/arwahdevops/dbtyper/internal/naming"
	"github.com/arwahdevops/dbtyper/internal/secrets"
	"github.com/arwahdevops/dbtyper/internal/typing"
)

// app is everything a command needs once the destination is reachable.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Store
	conn       *db.Connector
	streams    []typing.StreamConfig
	reconciler *typing.Reconciler
	archive    *audit.Archive // nil unless AUDIT_DIR is set
}

// bootstrap loads configuration, connects to the destination, builds the
// streams from the catalog and prepares the destination for them.
func bootstrap(ctx context.Context, opts *RootOptions) (*app, error) {
	// 1. Load environment variables (.env overrides)
	if err := godotenv.Overload(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		stdlog.Printf("Warning: Could not load %s: %v. Relying on environment variables.\n", opts.EnvFile, err)
	}

	// 2. Setting logger dibaca lebih dulu supaya error config pun ter-log rapi
	preCfg := &struct {
		EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
		DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	}{}
	if err := env.Parse(preCfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse pre-configuration for logger", err)
	}

	// 3. Initialize Zap logger
	if err := logger.Init(preCfg.DebugMode, preCfg.EnableJsonLogging); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}

	// 4. Load and validate full configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuration loading error", err)
	}
	applyCliOverrides(cfg, opts)
	logLoadedConfig(cfg)

	a := &app{cfg: cfg, metrics: metrics.NewMetricsStore()}

	// 5. Secret managers dan kredensial
	vaultMgr, err := secrets.NewVaultManager(cfg, logger.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize Vault secret manager", err)
	}
	var managers []secrets.SecretManager
	if vaultMgr.IsEnabled() {
		managers = append(managers, vaultMgr)
	}
	creds, err := loadCredentials(ctx, cfg, managers)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load destination credentials", err)
	}

	// 6. Connect with retry
	a.conn, err = connectDBWithRetry(ctx, cfg.DstDB, creds.Username, creds.Password, cfg.MaxRetries, cfg.RetryInterval, a.metrics)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to establish destination connection", err)
	}
	if err := a.conn.Optimize(cfg.ConnPoolSize, cfg.ConnMaxLifetime); err != nil {
		logger.Log.Warn("Failed to optimize destination DB pool", zap.Error(err))
	}

	// 7. Catalog -> streams
	if err := a.buildReconciler(); err != nil {
		a.Close()
		return nil, err
	}

	// 8. Namespaces, state table, cast helpers
	if err := a.reconciler.Prepare(ctx, a.streams); err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to prepare destination", err)
	}
	return a, nil
}

func (a *app) buildReconciler() error {
	cfg := a.cfg
	cat, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	decls, err := cat.Filter(cfg.Streams)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stream filter", err)
	}

	proto, err := typing.NewDialect(cfg.DstDB.Dialect, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported destination", err)
	}
	tr := naming.NewTransformer(proto.Capabilities().MaxIdentifierLength)
	rawNs := tr.Identifier(cfg.RawNamespace)
	dialect, err := typing.NewDialect(cfg.DstDB.Dialect, rawNs)
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported destination", err)
	}

	a.streams, err = typing.BuildStreams(decls, tr, cfg.RawNamespace)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stream declaration", err)
	}

	a.reconciler = typing.NewReconciler(
		typing.NewSQLBuilder(dialect),
		a.conn,
		typing.NewSchemaInspector(a.conn.DB, dialect, logger.Log),
		typing.NewGormStateStore(a.conn.DB, dialect, rawNs, logger.Log),
		a.metrics,
		logger.Log,
		typing.Options{RawNamespace: rawNs, Workers: cfg.Workers, StreamTimeout: cfg.StreamTimeout},
	)
	return nil
}

// enableAudit attaches the SQL archive when AUDIT_DIR is configured.
func (a *app) enableAudit(ctx context.Context) error {
	if !a.cfg.Audit.Enabled() {
		return nil
	}
	var uploader audit.Uploader
	if a.cfg.Audit.S3Bucket != "" {
		s3u, err := audit.NewS3Uploader(ctx, a.cfg.Audit.S3Bucket, a.cfg.Audit.S3Region, a.cfg.Audit.S3Endpoint)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to initialize audit uploader", err)
		}
		uploader = s3u
	}
	a.archive = audit.NewArchive(a.cfg.Audit.Dir, a.cfg.Audit.S3Prefix, uploader, logger.Log)
	a.reconciler.WithRecorder(a.archive)
	logger.Log.Info("SQL audit archive enabled",
		zap.String("run_id", a.archive.RunID()),
		zap.String("dir", a.cfg.Audit.Dir),
		zap.Bool("upload", uploader != nil))
	return nil
}

func (a *app) Close() {
	if a.conn != nil {
		logger.Log.Info("Closing database connections...")
		if err := a.conn.Close(); err != nil {
			logger.Log.Error("Error closing destination DB", zap.Error(err))
		}
		a.conn = nil
	}
	_ = logger.Log.Sync()
}

// applyCliOverrides menerapkan nilai dari flag CLI ke struct Config.
func applyCliOverrides(cfg *config.Config, opts *RootOptions) {
	if opts.CatalogPath != "" {
		logger.Log.Info("Overriding CATALOG_PATH with CLI flag", zap.String("env_value", cfg.CatalogPath), zap.String("cli_value", opts.CatalogPath))
		cfg.CatalogPath = opts.CatalogPath
	}
	if opts.Workers > 0 {
		logger.Log.Info("Overriding WORKERS with CLI flag", zap.Int("env_value", cfg.Workers), zap.Int("cli_value", opts.Workers))
		cfg.Workers = opts.Workers
	}
	if opts.StreamTimeout > 0 {
		logger.Log.Info("Overriding STREAM_TIMEOUT with CLI flag", zap.Duration("env_value", cfg.StreamTimeout), zap.Duration("cli_value", opts.StreamTimeout))
		cfg.StreamTimeout = opts.StreamTimeout
	}
	if len(opts.Streams) > 0 {
		logger.Log.Info("Overriding STREAMS with CLI flag", zap.Strings("env_value", cfg.Streams), zap.Strings("cli_value", opts.Streams))
		cfg.Streams = opts.Streams
	}
}

// logLoadedConfig mencatat konfigurasi final yang digunakan.
func logLoadedConfig(cfg *config.Config) {
	passSource := "not set"
	if cfg.DstDB.Password != "" {
		passSource = "env var"
	} else if cfg.VaultEnabled && cfg.DstSecretPath != "" {
		passSource = "vault"
	}

	logger.Log.Info("Final configuration in use",
		zap.String("catalog_path", cfg.CatalogPath),
		zap.String("raw_namespace", cfg.RawNamespace),
		zap.Int("workers", cfg.Workers),
		zap.Duration("stream_timeout", cfg.StreamTimeout),
		zap.String("streams_filter", strings.Join(cfg.Streams, ",")),
		zap.String("dst_dialect", cfg.DstDB.Dialect), zap.String("dst_host", cfg.DstDB.Host), zap.Int("dst_port", cfg.DstDB.Port), zap.String("dst_user", cfg.DstDB.User), zap.String("dst_password_source", passSource), zap.String("dst_dbname", cfg.DstDB.DBName), zap.String("dst_sslmode", cfg.DstDB.SSLMode),
		zap.Int("max_retries", cfg.MaxRetries), zap.Duration("retry_interval", cfg.RetryInterval),
		zap.Int("conn_pool_size", cfg.ConnPoolSize), zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		zap.Bool("json_logging", cfg.EnableJsonLogging), zap.Bool("enable_pprof", cfg.EnablePprof), zap.Int("metrics_port", cfg.MetricsPort), zap.Bool("debug_mode", cfg.DebugMode),
		zap.Bool("vault_enabled", cfg.VaultEnabled), zap.String("vault_addr", cfg.VaultAddr), zap.Bool("vault_token_present", cfg.VaultToken != ""), zap.String("vault_mount", cfg.VaultMountPath),
		zap.String("dst_secret_path", cfg.DstSecretPath), zap.String("dst_username_key", cfg.DstUsernameKey), zap.String("dst_password_key", cfg.DstPasswordKey),
		zap.Bool("audit_enabled", cfg.Audit.Enabled()), zap.String("audit_s3_bucket", cfg.Audit.S3Bucket),
	)
}

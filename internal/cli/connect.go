package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/config"
	"github.com/arwahdevops/dbtyper/internal/db"
	"github.com/arwahdevops/dbtyper/internal/logger"
	"github.com/arwahdevops/dbtyper/internal/metrics"
	"github.com/arwahdevops/dbtyper/internal/secrets"
)

// loadCredentials memuat kredensial dari env var atau secret manager.
// SQLite has no credentials.
func loadCredentials(ctx context.Context, cfg *config.Config, secretManagers []secrets.SecretManager) (*secrets.Credentials, error) {
	dbCfg := cfg.DstDB
	log := logger.Log.With(zap.String("db", "destination"))

	if dbCfg.Dialect == "sqlite" {
		return &secrets.Credentials{Source: "none"}, nil
	}
	if dbCfg.Password != "" {
		log.Info("Using password directly from environment variable for DB.")
		if dbCfg.User == "" {
			return nil, fmt.Errorf("password provided via DST_PASSWORD, but DST_USER is missing")
		}
		return &secrets.Credentials{Username: dbCfg.User, Password: dbCfg.Password, Source: "env"}, nil
	}
	log.Info("Password not found in direct environment variable for this DB. Checking secret managers...")

	if cfg.DstSecretPath == "" {
		log.Info("Secret path is not configured for this DB. Cannot use secret managers.")
		return nil, fmt.Errorf("could not load destination credentials. Set DST_PASSWORD, or VAULT_ENABLED=true with DST_SECRET_PATH")
	}
	if len(secretManagers) == 0 {
		log.Warn("Secret path is configured, but no secret managers are active/enabled.")
	}
	for _, sm := range secretManagers {
		log.Info("Attempting to retrieve credentials from configured secret manager",
			zap.String("manager_type", fmt.Sprintf("%T", sm)),
			zap.String("path_or_id", cfg.DstSecretPath),
		)
		getCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		creds, err := sm.GetCredentials(getCtx, cfg.DstSecretPath, cfg.DstUsernameKey, cfg.DstPasswordKey)
		cancel()
		if err != nil || creds == nil {
			log.Warn("Failed to retrieve credentials from secret manager. Trying next if available.",
				zap.String("manager_type", fmt.Sprintf("%T", sm)), zap.Error(err))
			continue
		}
		if creds.Password == "" {
			return nil, fmt.Errorf("retrieved credentials from %T, but password field is empty", sm)
		}
		// Username kosong di secret: pakai DST_USER
		if creds.Username == "" {
			log.Warn("Username field empty in retrieved secret. Falling back to DB config username.", zap.String("db_config_user", dbCfg.User))
			creds.Username = dbCfg.User
			if creds.Username == "" {
				return nil, fmt.Errorf("password retrieved, but username is missing in both secret and DST_USER")
			}
		}
		log.Info("Successfully retrieved credentials from secret manager.", zap.String("source", creds.Source))
		return creds, nil
	}
	return nil, fmt.Errorf("no enabled secret manager provided valid credentials for %s", cfg.DstSecretPath)
}

// connectDBWithRetry mencoba menghubungkan ke DB dengan logika retry.
func connectDBWithRetry(
	ctx context.Context,
	dbCfg config.DatabaseConfig,
	username string,
	password string,
	maxRetries int,
	retryInterval time.Duration,
	metricsStore *metrics.Store,
) (*db.Connector, error) {
	const dbLabel = "destination"
	gl := logger.GetGormLogger()
	var lastErr error

	dsn := buildDSN(dbCfg, username, password)
	if dsn == "" {
		metricsStore.SyncErrorsTotal.WithLabelValues("connection", "").Inc()
		return nil, fmt.Errorf("could not build DSN (unsupported dialect: %s)", dbCfg.Dialect)
	}

	for i := 0; i <= maxRetries; i++ {
		attemptStartTime := time.Now()
		if i > 0 {
			logger.Log.Warn("Retrying database connection",
				zap.String("db", dbLabel),
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", maxRetries+1),
				zap.Duration("wait_interval", retryInterval),
				zap.NamedError("previous_error", lastErr))
			timer := time.NewTimer(retryInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				metricsStore.SyncErrorsTotal.WithLabelValues("connection_cancelled", "").Inc()
				return nil, fmt.Errorf("context cancelled while waiting to retry connection (attempt %d): %w; last error: %v", i+1, ctx.Err(), lastErr)
			}
		}

		logger.Log.Info("Attempting to connect",
			zap.String("db", dbLabel),
			zap.String("dialect", dbCfg.Dialect),
			zap.String("host", dbCfg.Host),
			zap.Int("port", dbCfg.Port),
			zap.String("dbname", dbCfg.DBName),
			zap.String("user", username),
			zap.Int("attempt", i+1))

		conn, err := db.New(dbCfg.Dialect, dsn, gl)
		if err != nil {
			lastErr = fmt.Errorf("connect attempt %d/%d failed: %w", i+1, maxRetries+1, err)
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := conn.Ping(pingCtx)
		pingCancel()
		if pingErr != nil {
			lastErr = fmt.Errorf("ping attempt %d/%d failed: %w", i+1, maxRetries+1, pingErr)
			_ = conn.Close()
			continue
		}

		logger.Log.Info("Database connection successful",
			zap.String("db", dbLabel),
			zap.Duration("connect_duration", time.Since(attemptStartTime)))
		return conn, nil
	}

	logger.Log.Error("Failed to connect to database after all retries",
		zap.String("db", dbLabel),
		zap.Int("attempts", maxRetries+1),
		zap.NamedError("final_error", lastErr))
	metricsStore.SyncErrorsTotal.WithLabelValues("connection_failed", "").Inc()
	return nil, fmt.Errorf("failed to connect to %s at %s:%d after %d attempts: %w", dbCfg.Dialect, dbCfg.Host, dbCfg.Port, maxRetries+1, lastErr)
}

// buildDSN membangun Data Source Name (DSN) string. Sessions run in UTC so
// _extracted_at literals compare the same way on every dialect.
func buildDSN(cfg config.DatabaseConfig, username, password string) string {
	sslmode := strings.ToLower(cfg.SSLMode)

	switch strings.ToLower(cfg.Dialect) {
	case "mysql":
		sslParam := "tls=false"
		switch sslmode {
		case "", "disable":
		case "allow", "prefer":
			sslParam = "tls=skip-verify"
		default:
			// verify-ca/verify-full butuh mysql.RegisterTLSConfig; DSN saja tidak cukup
			sslParam = "tls=true"
			if sslmode == "verify-ca" || sslmode == "verify-full" {
				logger.Log.Warn("MySQL SSL modes 'verify-ca' or 'verify-full' require additional TLS configuration beyond the DSN. Using 'tls=true'.", zap.String("sslmode", sslmode))
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&time_zone=%s&timeout=10s&readTimeout=0&writeTimeout=0&%s",
			username, password, cfg.Host, cfg.Port, cfg.DBName, url.QueryEscape("'+00:00'"), sslParam)
	case "postgres":
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=10 TimeZone=UTC",
			cfg.Host, cfg.Port, username, quotePgValue(password), cfg.DBName, sslmode)
	case "sqlite":
		return fmt.Sprintf("file:%s?cache=shared&_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", cfg.DBName)
	default:
		logger.Log.Error("Cannot build DSN: Unsupported database dialect", zap.String("dialect", cfg.Dialect))
		return ""
	}
}

// quotePgValue quotes a keyword/value DSN value when it contains spaces or quotes.
func quotePgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
}

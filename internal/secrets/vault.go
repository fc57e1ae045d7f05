package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/config"
)

// VaultManager implements the SecretManager interface for HashiCorp Vault.
type VaultManager struct {
	client *vault.Client
	cfg    *config.Config
	logger *zap.Logger
}

var _ SecretManager = (*VaultManager)(nil)

func NewVaultManager(cfg *config.Config, baseLogger *zap.Logger) (*VaultManager, error) {
	log := baseLogger.Named("vault-manager")
	if !cfg.VaultEnabled {
		log.Info("Vault secret manager is disabled via configuration.")
		return &VaultManager{cfg: cfg, logger: log}, nil
	}

	log.Info("Initializing Vault secret manager",
		zap.String("address", cfg.VaultAddr),
		zap.String("mount", cfg.VaultMountPath))

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.VaultAddr
	vConfig.Timeout = 10 * time.Second

	tlsConfig := &vault.TLSConfig{
		CACert:   cfg.VaultCACert,
		Insecure: cfg.VaultSkipVerify,
	}
	if err := vConfig.ConfigureTLS(tlsConfig); err != nil {
		return nil, fmt.Errorf("failed to configure Vault TLS: %w", err)
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.VaultToken != "" {
		log.Info("Using Vault token authentication")
		client.SetToken(cfg.VaultToken)
	} else {
		log.Warn("Vault is enabled, but no VAULT_TOKEN provided and other auth methods are not implemented yet.")
	}

	return &VaultManager{client: client, cfg: cfg, logger: log}, nil
}

func (m *VaultManager) IsEnabled() bool {
	return m.cfg != nil && m.cfg.VaultEnabled && m.client != nil
}

// GetCredentials reads a KV v2 secret under the configured mount. Only the
// password is mandatory; some destinations (sqlite) have no user.
func (m *VaultManager) GetCredentials(ctx context.Context, path, usernameKey, passwordKey string) (*Credentials, error) {
	if !m.IsEnabled() {
		return nil, fmt.Errorf("Vault manager is not enabled or not initialized")
	}
	if path == "" {
		return nil, fmt.Errorf("Vault secret path cannot be empty")
	}
	if usernameKey == "" {
		usernameKey = "username"
	}
	if passwordKey == "" {
		passwordKey = "password"
	}

	mount := m.cfg.VaultMountPath
	if mount == "" {
		mount = "secret"
	}
	log := m.logger.With(zap.String("vault_path", path), zap.String("mount", mount))
	log.Info("Attempting to read secret from Vault KV v2", zap.String("username_key", usernameKey), zap.String("password_key", passwordKey))

	secret, err := m.client.KVv2(mount).Get(ctx, path)
	if err != nil {
		var vaultErr *vault.ResponseError
		if errors.As(err, &vaultErr) && vaultErr.StatusCode == http.StatusNotFound {
			log.Error("Secret not found in Vault", zap.Error(err))
			return nil, fmt.Errorf("secret '%s' not found in Vault: %w", path, err)
		}
		log.Error("Failed to read secret from Vault", zap.Error(err))
		return nil, fmt.Errorf("failed to read secret '%s' from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		log.Error("Vault secret data is empty")
		return nil, fmt.Errorf("secret data for '%s' is empty", path)
	}

	creds, err := credentialsFromData(secret.Data, usernameKey, passwordKey)
	if err != nil {
		log.Error("Vault secret does not hold usable credentials", zap.Error(err))
		return nil, fmt.Errorf("secret '%s': %w", path, err)
	}
	log.Info("Successfully retrieved credentials from Vault")
	return creds, nil
}

func credentialsFromData(data map[string]interface{}, usernameKey, passwordKey string) (*Credentials, error) {
	passwordVal, ok := data[passwordKey]
	if !ok || passwordVal == nil {
		return nil, fmt.Errorf("password key '%s' not found or is null", passwordKey)
	}
	password, ok := passwordVal.(string)
	if !ok || password == "" {
		return nil, fmt.Errorf("password value for key '%s' is not a non-empty string", passwordKey)
	}

	username := ""
	if v, ok := data[usernameKey]; ok && v != nil {
		username, _ = v.(string)
	}
	return &Credentials{Username: username, Password: password, Source: "vault"}, nil
}

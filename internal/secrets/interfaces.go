package secrets

import "context"

// Credentials are the destination login. Source names where they came from
// ("env", "vault", ...) and is only logged.
type Credentials struct {
	Username string
	Password string
	Source   string
}

// SecretManager is a backend that can hand out destination credentials.
type SecretManager interface {
	// GetCredentials reads the secret at pathOrID and picks the username and
	// password out of it by key.
	GetCredentials(ctx context.Context, pathOrID string, usernameKey string, passwordKey string) (*Credentials, error)

	IsEnabled() bool
}

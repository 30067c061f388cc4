package secrets

import "context"

// Provider abstracts a secrets backend. The production implementation is AWS
// Secrets Manager; tests inject a map-backed fake.
type Provider interface {
	// GetSecret retrieves a secret by name and returns its key-value payload.
	GetSecret(ctx context.Context, name string) (map[string]string, error)

	// ListSecrets returns the names of all secrets matching the given prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}

// Package settings stores the operator-managed state of the ListBridge
// service: upstream API credentials, the webhook signing secret, and the
// product-to-group mapping table. Credentials live here rather than in
// process environment so the admin API can rotate them at runtime.
package settings

import (
	"context"
	"sync"

	"listbridge/internal/types"
)

// Setting keys for the secrets table.
const (
	KeyStripeSecretKey  = "stripe_secret_key"
	KeyMailerLiteAPIKey = "mailerlite_api_key"
	KeyWebhookSecret    = "webhook_secret"
)

// Secrets holds the three credentials the service needs. A zero value means
// the credential has not been configured yet.
type Secrets struct {
	StripeSecretKey  types.SecretString
	MailerLiteAPIKey types.SecretString
	WebhookSecret    types.SecretString
}

// SecretsUpdate is a partial update: nil fields are left untouched, so an
// operator can rotate one credential without re-submitting the others.
type SecretsUpdate struct {
	StripeSecretKey  *string
	MailerLiteAPIKey *string
	WebhookSecret    *string
}

// SecretStore persists API credentials.
type SecretStore interface {
	GetSecrets(ctx context.Context) (Secrets, error)
	UpdateSecrets(ctx context.Context, update SecretsUpdate) error
}

// MappingStore persists the product-to-group mapping table. Group IDs are
// opaque strings; the sentinel types.GroupNone marks a product explicitly
// unmapped.
type MappingStore interface {
	GetMappings(ctx context.Context) (map[string]string, error)
	ReplaceMappings(ctx context.Context, mappings map[string]string) error
}

// Store is the full settings surface.
type Store interface {
	SecretStore
	MappingStore
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	secrets  Secrets
	mappings map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mappings: make(map[string]string)}
}

func (s *MemoryStore) GetSecrets(ctx context.Context) (Secrets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secrets, nil
}

func (s *MemoryStore) UpdateSecrets(ctx context.Context, update SecretsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.StripeSecretKey != nil {
		s.secrets.StripeSecretKey = types.SecretString(*update.StripeSecretKey)
	}
	if update.MailerLiteAPIKey != nil {
		s.secrets.MailerLiteAPIKey = types.SecretString(*update.MailerLiteAPIKey)
	}
	if update.WebhookSecret != nil {
		s.secrets.WebhookSecret = types.SecretString(*update.WebhookSecret)
	}
	return nil
}

func (s *MemoryStore) GetMappings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.mappings))
	for k, v := range s.mappings {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) ReplaceMappings(ctx context.Context, mappings map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = make(map[string]string, len(mappings))
	for k, v := range mappings {
		s.mappings[k] = v
	}
	return nil
}

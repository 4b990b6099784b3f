package settings

import (
	"context"

	"listbridge/internal/types"
)

// Credentials adapts a SecretStore to the per-call credential lookups the
// external clients perform.
type Credentials struct {
	store SecretStore
}

// NewCredentials wraps a SecretStore as a credential source.
func NewCredentials(store SecretStore) *Credentials {
	return &Credentials{store: store}
}

func (c *Credentials) StripeSecretKey(ctx context.Context) (types.SecretString, error) {
	secrets, err := c.store.GetSecrets(ctx)
	if err != nil {
		return "", err
	}
	return secrets.StripeSecretKey, nil
}

func (c *Credentials) MailerLiteAPIKey(ctx context.Context) (types.SecretString, error) {
	secrets, err := c.store.GetSecrets(ctx)
	if err != nil {
		return "", err
	}
	return secrets.MailerLiteAPIKey, nil
}

// WebhookSecret returns the shared webhook signing secret. An empty value
// means webhook ingestion is not yet configured.
func (c *Credentials) WebhookSecret(ctx context.Context) (types.SecretString, error) {
	secrets, err := c.store.GetSecrets(ctx)
	if err != nil {
		return "", err
	}
	return secrets.WebhookSecret, nil
}

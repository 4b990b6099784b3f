package external

import (
	"context"

	"listbridge/internal/types"
)

// WebhookVerifier authenticates an inbound webhook delivery against a shared
// signing secret. Implementations must reject the delivery with a typed error
// rather than panicking or silently accepting.
type WebhookVerifier interface {
	// Verify checks the signature header against the raw request payload.
	// A nil return means the delivery is authentic and fresh.
	Verify(payload []byte, sigHeader string, secret string) error
}

// PaymentsClient is the read-side view of the payments platform: the catalog
// for the admin mapping screen, and the purchased items of a completed
// checkout session.
type PaymentsClient interface {
	ListProducts(ctx context.Context) ([]types.Product, error)
	ListLineItems(ctx context.Context, sessionID string) ([]types.LineItem, error)
}

// MailingListClient is the write-side view of the mailing-list platform.
// UpsertSubscriber is idempotent: calling it for an existing email returns the
// existing subscriber's ID.
type MailingListClient interface {
	ListGroups(ctx context.Context) ([]types.Group, error)
	UpsertSubscriber(ctx context.Context, email string) (string, error)
	AssignToGroup(ctx context.Context, subscriberID, groupID string) error
}

// CredentialSource supplies API credentials at call time. Credentials live in
// the settings store rather than process environment so an operator can rotate
// them without a redeploy; clients therefore resolve them per request.
type CredentialSource interface {
	StripeSecretKey(ctx context.Context) (types.SecretString, error)
	MailerLiteAPIKey(ctx context.Context) (types.SecretString, error)
}

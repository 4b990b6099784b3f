package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	stripe "github.com/stripe/stripe-go/v82"

	"listbridge/internal/types"
)

// stripeAPIBaseURL is the production Stripe API endpoint.
const stripeAPIBaseURL = "https://api.stripe.com"

// stripeListLimit caps paginated list requests. The admin catalog is small;
// one page is enough in practice.
const stripeListLimit = 100

// StripeClient talks to the Stripe REST API. Authentication uses the secret
// key from the credential source, resolved on every call so key rotation via
// the admin API takes effect immediately.
type StripeClient struct {
	base        *BaseClient
	baseURL     string
	credentials CredentialSource
	logger      *slog.Logger
}

// StripeClientOption configures a StripeClient.
type StripeClientOption func(*StripeClient)

// WithStripeBaseURL overrides the API base URL. Test use only.
func WithStripeBaseURL(baseURL string) StripeClientOption {
	return func(c *StripeClient) {
		c.baseURL = baseURL
	}
}

// NewStripeClient creates a Stripe API client backed by the shared resilience
// layer.
func NewStripeClient(
	base *BaseClient,
	credentials CredentialSource,
	logger *slog.Logger,
	opts ...StripeClientOption,
) *StripeClient {
	c := &StripeClient{
		base:        base,
		baseURL:     stripeAPIBaseURL,
		credentials: credentials,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// stripeProductList mirrors the envelope of GET /v1/products.
type stripeProductList struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// stripeLineItemList mirrors the envelope of
// GET /v1/checkout/sessions/{id}/line_items. The price.product field holds
// the product identifier when the session is fetched without expansion.
type stripeLineItemList struct {
	Data []struct {
		Price struct {
			Product string `json:"product"`
		} `json:"price"`
	} `json:"data"`
}

// ListProducts returns the active product catalog for the admin mapping
// screen.
func (c *StripeClient) ListProducts(ctx context.Context) ([]types.Product, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", stripeListLimit))
	query.Set("active", "true")

	var list stripeProductList
	if err := c.getJSON(ctx, "/v1/products?"+query.Encode(), &list); err != nil {
		return nil, err
	}

	products := make([]types.Product, 0, len(list.Data))
	for _, p := range list.Data {
		products = append(products, types.Product{ID: p.ID, Name: p.Name})
	}
	return products, nil
}

// ListLineItems returns the purchased items of a completed checkout session.
// Sessions with zero items yield an empty slice and no error.
func (c *StripeClient) ListLineItems(ctx context.Context, sessionID string) ([]types.LineItem, error) {
	if sessionID == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"checkout session id must not be empty",
			nil,
		)
	}

	path := fmt.Sprintf("/v1/checkout/sessions/%s/line_items?limit=%d",
		url.PathEscape(sessionID), stripeListLimit)

	var list stripeLineItemList
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}

	items := make([]types.LineItem, 0, len(list.Data))
	for _, li := range list.Data {
		items = append(items, types.LineItem{ProductID: li.Price.Product})
	}
	return items, nil
}

// getJSON performs an authenticated GET and decodes the JSON response body.
func (c *StripeClient) getJSON(ctx context.Context, path string, dst any) error {
	key, err := c.credentials.StripeSecretKey(ctx)
	if err != nil {
		return err
	}
	if !key.IsSet() {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"stripe secret key is not configured",
			nil,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build stripe request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+key.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := c.base.Do(req)
	if err != nil {
		return c.wrapUpstream(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("stripe API returned non-200",
			slog.Int("status", resp.StatusCode),
			slog.String("path", path),
			slog.String("body", string(body)),
		)
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("stripe API returned %d", resp.StatusCode),
			nil,
			map[string]any{"status": resp.StatusCode},
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode stripe response",
			err,
		)
	}
	return nil
}

// wrapUpstream retags generic transport failures with the Stripe-specific
// code while preserving the original error chain.
func (c *StripeClient) wrapUpstream(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		"stripe request failed",
		err,
	)
}

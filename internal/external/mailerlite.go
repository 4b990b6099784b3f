package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"listbridge/internal/types"
)

// mailerLiteAPIBaseURL is the production MailerLite "connect" API endpoint.
const mailerLiteAPIBaseURL = "https://connect.mailerlite.com"

// mailerLiteListLimit caps paginated group listings.
const mailerLiteListLimit = 100

// MailerLiteClient talks to the MailerLite REST API. Like the Stripe client,
// it resolves its API key from the credential source on every call.
type MailerLiteClient struct {
	base        *BaseClient
	baseURL     string
	credentials CredentialSource
	logger      *slog.Logger
}

// MailerLiteClientOption configures a MailerLiteClient.
type MailerLiteClientOption func(*MailerLiteClient)

// WithMailerLiteBaseURL overrides the API base URL. Test use only.
func WithMailerLiteBaseURL(baseURL string) MailerLiteClientOption {
	return func(c *MailerLiteClient) {
		c.baseURL = baseURL
	}
}

// NewMailerLiteClient creates a MailerLite API client backed by the shared
// resilience layer.
func NewMailerLiteClient(
	base *BaseClient,
	credentials CredentialSource,
	logger *slog.Logger,
	opts ...MailerLiteClientOption,
) *MailerLiteClient {
	c := &MailerLiteClient{
		base:        base,
		baseURL:     mailerLiteAPIBaseURL,
		credentials: credentials,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mailerLiteGroupList mirrors the envelope of GET /api/groups.
type mailerLiteGroupList struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// mailerLiteSubscriber mirrors the envelope of POST /api/subscribers.
type mailerLiteSubscriber struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListGroups returns the mailing-list groups for the admin mapping screen.
func (c *MailerLiteClient) ListGroups(ctx context.Context) ([]types.Group, error) {
	path := fmt.Sprintf("/api/groups?limit=%d", mailerLiteListLimit)

	resp, err := c.doAuthenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.unexpectedStatus(resp, path)
	}

	var list mailerLiteGroupList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMailerLite,
			"failed to decode mailerlite response",
			err,
		)
	}

	groups := make([]types.Group, 0, len(list.Data))
	for _, g := range list.Data {
		groups = append(groups, types.Group{ID: g.ID, Name: g.Name})
	}
	return groups, nil
}

// UpsertSubscriber creates or updates a subscriber by email and returns the
// subscriber's ID. MailerLite answers 201 for a new subscriber and 200 for an
// existing one; both are success here, which is what makes webhook redelivery
// idempotent.
func (c *MailerLiteClient) UpsertSubscriber(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscriber email must not be empty",
			nil,
		)
	}

	body := map[string]string{"email": email}

	resp, err := c.doAuthenticated(ctx, http.MethodPost, "/api/subscribers", body)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeSubscriberCreateFailed,
			"subscriber upsert failed",
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", types.NewAppError(
			types.ErrCodeSubscriberCreateFailed,
			fmt.Sprintf("subscriber upsert returned %d", resp.StatusCode),
			c.unexpectedStatus(resp, "/api/subscribers"),
		)
	}

	var sub mailerLiteSubscriber
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", types.NewAppError(
			types.ErrCodeSubscriberIDMissing,
			"failed to decode subscriber response",
			err,
		)
	}
	if sub.Data.ID == "" {
		return "", types.NewAppError(
			types.ErrCodeSubscriberIDMissing,
			"subscriber response contained no id",
			nil,
		)
	}

	return sub.Data.ID, nil
}

// AssignToGroup attaches an existing subscriber to a group. Re-attaching a
// subscriber already in the group succeeds.
func (c *MailerLiteClient) AssignToGroup(ctx context.Context, subscriberID, groupID string) error {
	if subscriberID == "" || groupID == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscriber id and group id must not be empty",
			nil,
		)
	}

	path := fmt.Sprintf("/api/subscribers/%s/groups/%s",
		url.PathEscape(subscriberID), url.PathEscape(groupID))

	resp, err := c.doAuthenticated(ctx, http.MethodPost, path, nil)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeGroupAttachFailed,
			"group assignment failed",
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return types.NewAppError(
			types.ErrCodeGroupAttachFailed,
			fmt.Sprintf("group assignment returned %d", resp.StatusCode),
			c.unexpectedStatus(resp, path),
		)
	}

	return nil
}

// doAuthenticated builds and executes a request with the bearer token and
// JSON content negotiation headers MailerLite expects.
func (c *MailerLiteClient) doAuthenticated(ctx context.Context, method, path string, body any) (*http.Response, error) {
	key, err := c.credentials.MailerLiteAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	if !key.IsSet() {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMailerLite,
			"mailerlite api key is not configured",
			nil,
		)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to marshal mailerlite request body",
				err,
			)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build mailerlite request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+key.Unmask())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapUpstream(err)
	}
	return resp, nil
}

// unexpectedStatus logs and wraps a non-success response.
func (c *MailerLiteClient) unexpectedStatus(resp *http.Response, path string) *types.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	c.logger.Warn("mailerlite API returned unexpected status",
		slog.Int("status", resp.StatusCode),
		slog.String("path", path),
		slog.String("body", string(body)),
	)
	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamMailerLite,
		fmt.Sprintf("mailerlite API returned %d", resp.StatusCode),
		nil,
		map[string]any{"status": resp.StatusCode},
	)
}

// wrapUpstream retags generic transport failures with the MailerLite-specific
// code while preserving the original error chain.
func (c *MailerLiteClient) wrapUpstream(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamMailerLite,
		"mailerlite request failed",
		err,
	)
}

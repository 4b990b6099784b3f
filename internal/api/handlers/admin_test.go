package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbridge/internal/settings"
	"listbridge/internal/types"
)

const testAdminKey = "admin_test_key_0123456789"

// mockCatalogs serves canned product and group listings.
type mockCatalogs struct {
	products []types.Product
	groups   []types.Group
	err      error
}

func (m *mockCatalogs) ListProducts(ctx context.Context) ([]types.Product, error) {
	return m.products, m.err
}

func (m *mockCatalogs) ListLineItems(ctx context.Context, sessionID string) ([]types.LineItem, error) {
	return nil, nil
}

func (m *mockCatalogs) ListGroups(ctx context.Context) ([]types.Group, error) {
	return m.groups, m.err
}

func (m *mockCatalogs) UpsertSubscriber(ctx context.Context, email string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockCatalogs) AssignToGroup(ctx context.Context, subscriberID, groupID string) error {
	return errors.New("not implemented")
}

func newAdminRouter(store settings.Store, catalogs *mockCatalogs) *chi.Mux {
	handler := NewAdminHandler(store, catalogs, catalogs, testAdminKey, discardLogger())
	r := chi.NewRouter()
	r.Route("/v1", handler.RegisterRoutes)
	return r
}

func adminRequest(t *testing.T, router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_RequiresAuthentication(t *testing.T) {
	router := newAdminRouter(settings.NewMemoryStore(), &mockCatalogs{})

	tests := []struct {
		name     string
		header   string
		wantCode types.ErrorCode
	}{
		{name: "missing header", header: "", wantCode: types.ErrCodeAuthTokenMissing},
		{name: "wrong scheme", header: "Basic abc", wantCode: types.ErrCodeAuthTokenInvalid},
		{name: "wrong key", header: "Bearer not_the_key", wantCode: types.ErrCodeAuthTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
		})
	}
}

func TestAdmin_SettingsRoundTrip(t *testing.T) {
	store := settings.NewMemoryStore()
	router := newAdminRouter(store, &mockCatalogs{})

	rec := adminRequest(t, router, http.MethodGet, "/v1/admin/settings", "", testAdminKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Data struct {
			StripeSet     bool `json:"stripe_secret_key_set"`
			MailerLiteSet bool `json:"mailerlite_api_key_set"`
			WebhookSet    bool `json:"webhook_secret_set"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Data.StripeSet)

	body := `{"stripe_secret_key": "sk_live_1", "webhook_secret": "whsec_1"}`
	rec = adminRequest(t, router, http.MethodPut, "/v1/admin/settings", body, testAdminKey)
	require.Equal(t, http.StatusOK, rec.Code)

	// Secret values never appear in the response.
	assert.NotContains(t, rec.Body.String(), "sk_live_1")
	assert.NotContains(t, rec.Body.String(), "whsec_1")

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Data.StripeSet)
	assert.True(t, status.Data.WebhookSet)
	assert.False(t, status.Data.MailerLiteSet)

	secrets, err := store.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk_live_1", secrets.StripeSecretKey.Unmask())
}

func TestAdmin_PutSettings_EmptyBodyRejected(t *testing.T) {
	router := newAdminRouter(settings.NewMemoryStore(), &mockCatalogs{})

	rec := adminRequest(t, router, http.MethodPut, "/v1/admin/settings", `{}`, testAdminKey)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), decodeErrorCode(t, rec))
}

func TestAdmin_MappingsRoundTrip(t *testing.T) {
	store := settings.NewMemoryStore()
	router := newAdminRouter(store, &mockCatalogs{})

	body := `{"mappings": {"prod_A": "grp_1", "prod_B": "none"}}`
	rec := adminRequest(t, router, http.MethodPut, "/v1/admin/mappings", body, testAdminKey)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = adminRequest(t, router, http.MethodGet, "/v1/admin/mappings", "", testAdminKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Mappings map[string]string `json:"mappings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]string{"prod_A": "grp_1", "prod_B": "none"}, resp.Data.Mappings)
}

func TestAdmin_PutMappings_Validation(t *testing.T) {
	router := newAdminRouter(settings.NewMemoryStore(), &mockCatalogs{})

	tests := []struct {
		name     string
		body     string
		wantCode types.ErrorCode
	}{
		{
			name:     "missing mappings field",
			body:     `{}`,
			wantCode: types.ErrCodeValidationMissingField,
		},
		{
			name:     "empty group id",
			body:     `{"mappings": {"prod_A": ""}}`,
			wantCode: types.ErrCodeValidationInvalidMapping,
		},
		{
			name:     "empty product id",
			body:     `{"mappings": {"": "grp_1"}}`,
			wantCode: types.ErrCodeValidationInvalidMapping,
		},
		{
			name:     "unknown field",
			body:     `{"mappings": {}, "extra": true}`,
			wantCode: types.ErrCodeValidationInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := adminRequest(t, router, http.MethodPut, "/v1/admin/mappings", tt.body, testAdminKey)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
		})
	}
}

func TestAdmin_ListProducts(t *testing.T) {
	catalogs := &mockCatalogs{products: []types.Product{
		{ID: "prod_A", Name: "Starter Plan"},
	}}
	router := newAdminRouter(settings.NewMemoryStore(), catalogs)

	rec := adminRequest(t, router, http.MethodGet, "/v1/admin/products", "", testAdminKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []types.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "prod_A", resp.Data[0].ID)
}

func TestAdmin_ListGroups_UpstreamFailure(t *testing.T) {
	catalogs := &mockCatalogs{
		err: types.NewAppError(types.ErrCodeUpstreamMailerLite, "mailerlite request failed", errors.New("timeout")),
	}
	router := newAdminRouter(settings.NewMemoryStore(), catalogs)

	rec := adminRequest(t, router, http.MethodGet, "/v1/admin/groups", "", testAdminKey)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(types.ErrCodeUpstreamMailerLite), decodeErrorCode(t, rec))
}

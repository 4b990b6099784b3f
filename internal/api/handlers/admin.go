package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"listbridge/internal/core"
	"listbridge/internal/external"
	"listbridge/internal/settings"
	"listbridge/internal/types"
)

// AdminHandler serves the operator API: credential management, the
// product-to-group mapping table, and the upstream catalogs the mapping UI
// offers for selection. All routes require the admin bearer token.
type AdminHandler struct {
	store       settings.Store
	payments    external.PaymentsClient
	mailingList external.MailingListClient
	apiKey      types.SecretString
	logger      *slog.Logger
}

// NewAdminHandler wires the admin surface.
func NewAdminHandler(
	store settings.Store,
	payments external.PaymentsClient,
	mailingList external.MailingListClient,
	apiKey types.SecretString,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		store:       store,
		payments:    payments,
		mailingList: mailingList,
		apiKey:      apiKey,
		logger:      logger,
	}
}

// RegisterRoutes mounts the admin routes under the versioned API group.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Get("/settings", h.HandleGetSettings)
		r.Put("/settings", h.HandlePutSettings)
		r.Get("/mappings", h.HandleGetMappings)
		r.Put("/mappings", h.HandlePutMappings)
		r.Get("/products", h.HandleListProducts)
		r.Get("/groups", h.HandleListGroups)
	})
}

// requireAPIKey enforces bearer authentication with a constant-time compare.
func (h *AdminHandler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenMissing,
				"Authorization header is required",
				nil,
			))
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenInvalid,
				"Authorization header must use the Bearer scheme",
				nil,
			))
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(h.apiKey.Unmask())) != 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenInvalid,
				"invalid API key",
				nil,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// settingsStatus reports which credentials are configured without ever
// echoing their values.
type settingsStatus struct {
	StripeSecretKeySet  bool `json:"stripe_secret_key_set"`
	MailerLiteAPIKeySet bool `json:"mailerlite_api_key_set"`
	WebhookSecretSet    bool `json:"webhook_secret_set"`
}

// HandleGetSettings serves GET /v1/admin/settings.
func (h *AdminHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	secrets, err := h.store.GetSecrets(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settingsStatus{
		StripeSecretKeySet:  secrets.StripeSecretKey.IsSet(),
		MailerLiteAPIKeySet: secrets.MailerLiteAPIKey.IsSet(),
		WebhookSecretSet:    secrets.WebhookSecret.IsSet(),
	}})
}

// settingsUpdateRequest carries a partial credential update. Omitted fields
// are left untouched; an empty string clears a credential.
type settingsUpdateRequest struct {
	StripeSecretKey  *string `json:"stripe_secret_key"`
	MailerLiteAPIKey *string `json:"mailerlite_api_key"`
	WebhookSecret    *string `json:"webhook_secret"`
}

// HandlePutSettings serves PUT /v1/admin/settings.
func (h *AdminHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.StripeSecretKey == nil && req.MailerLiteAPIKey == nil && req.WebhookSecret == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"at least one setting must be provided",
			nil,
		))
		return
	}

	err := h.store.UpdateSecrets(r.Context(), settings.SecretsUpdate{
		StripeSecretKey:  req.StripeSecretKey,
		MailerLiteAPIKey: req.MailerLiteAPIKey,
		WebhookSecret:    req.WebhookSecret,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("settings updated",
		slog.Bool("stripe_secret_key", req.StripeSecretKey != nil),
		slog.Bool("mailerlite_api_key", req.MailerLiteAPIKey != nil),
		slog.Bool("webhook_secret", req.WebhookSecret != nil),
	)

	h.HandleGetSettings(w, r)
}

// mappingsPayload is the wire shape of the mapping table in both directions.
type mappingsPayload struct {
	Mappings map[string]string `json:"mappings"`
}

// HandleGetMappings serves GET /v1/admin/mappings.
func (h *AdminHandler) HandleGetMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.store.GetMappings(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: mappingsPayload{Mappings: mappings}})
}

// HandlePutMappings serves PUT /v1/admin/mappings. The submitted table
// replaces the stored one wholesale.
func (h *AdminHandler) HandlePutMappings(w http.ResponseWriter, r *http.Request) {
	var req mappingsPayload
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Mappings == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"mappings field is required",
			nil,
		))
		return
	}

	for productID, groupID := range req.Mappings {
		if productID == "" || groupID == "" {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidMapping,
				"mapping entries must have a non-empty product id and group id",
				nil,
			))
			return
		}
	}

	if err := h.store.ReplaceMappings(r.Context(), req.Mappings); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("mappings replaced", slog.Int("count", len(req.Mappings)))

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: mappingsPayload{Mappings: req.Mappings}})
}

// HandleListProducts serves GET /v1/admin/products, proxying the payment
// platform's catalog for the mapping UI.
func (h *AdminHandler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.payments.ListProducts(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: products})
}

// HandleListGroups serves GET /v1/admin/groups, proxying the mailing-list
// platform's groups for the mapping UI.
func (h *AdminHandler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.mailingList.ListGroups(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: groups})
}

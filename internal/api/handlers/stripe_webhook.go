// Package handlers contains the HTTP handlers of the ListBridge API: the
// Stripe webhook ingress and the authenticated admin surface.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"listbridge/internal/core"
	"listbridge/internal/external"
	"listbridge/internal/subscribe"
	"listbridge/internal/types"
)

// maxWebhookBodySize caps the webhook payload read. Stripe events are a few
// KB; the cap only guards against abuse.
const maxWebhookBodySize = 256 << 10 // 256 KB

// stripeSignatureHeader is the request header carrying the signature.
const stripeSignatureHeader = "Stripe-Signature"

// WebhookSecretSource supplies the signing secret at request time, so a
// rotation through the admin API applies to the very next delivery.
type WebhookSecretSource interface {
	WebhookSecret(ctx context.Context) (types.SecretString, error)
}

// CheckoutProcessor runs the dispatch pipeline for one completed checkout.
// Satisfied by subscribe.Processor.
type CheckoutProcessor interface {
	Process(ctx context.Context, session types.CheckoutSession) ([]types.DispatchResult, error)
}

// StripeWebhookHandler is the ingress for Stripe event deliveries.
//
// Response contract: 400 only for deliveries Stripe should consider rejected
// (bad signature, unusable payload). Once a delivery is authenticated and
// parsed, the response is 200 regardless of downstream outcomes; failures
// are logged, and a Stripe retry would not help a misconfigured mapping or a
// MailerLite outage mid-delivery anyway.
type StripeWebhookHandler struct {
	verifier  external.WebhookVerifier
	secrets   WebhookSecretSource
	processor CheckoutProcessor
	logger    *slog.Logger
}

// NewStripeWebhookHandler wires the webhook ingress.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	secrets WebhookSecretSource,
	processor CheckoutProcessor,
	logger *slog.Logger,
) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		verifier:  verifier,
		secrets:   secrets,
		processor: processor,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook at its fixed public path.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/smi/v1/webhook", h.HandleWebhook)
}

// webhookAck is the body of every 200 response. Stripe only checks the status
// code; the body exists for humans replaying deliveries by hand.
type webhookAck struct {
	Received   string `json:"received"`
	Dispatched int    `json:"dispatched,omitempty"`
}

// HandleWebhook processes POST /smi/v1/webhook.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMalformedPayload,
			"failed to read webhook payload",
			err,
		))
		return
	}

	secret, err := h.secrets.WebhookSecret(ctx)
	if err != nil {
		h.logger.Error("failed to load webhook secret", slog.String("error", err.Error()))
		core.Error(w, r, err)
		return
	}
	if !secret.IsSet() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeSecretNotConfigured,
			"webhook signing secret is not configured",
			nil,
		))
		return
	}

	sigHeader := r.Header.Get(stripeSignatureHeader)
	if err := h.verifier.Verify(payload, sigHeader, secret.Unmask()); err != nil {
		h.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		core.Error(w, r, err)
		return
	}

	event, err := subscribe.ParseEvent(payload)
	if err != nil {
		h.logger.Warn("webhook payload rejected", slog.String("error", err.Error()))
		core.Error(w, r, err)
		return
	}

	if event.Type != subscribe.EventTypeCheckoutCompleted {
		h.logger.Info("ignoring event type", slog.String("event_type", event.Type))
		core.JSON(w, r, http.StatusOK, webhookAck{Received: "ignored"})
		return
	}

	// From here on the delivery is acknowledged no matter what happens.
	results, err := h.processor.Process(ctx, event.Session)
	if err != nil {
		core.JSON(w, r, http.StatusOK, webhookAck{Received: "accepted"})
		return
	}

	dispatched := 0
	for _, res := range results {
		if res.Dispatched {
			dispatched++
		}
	}

	h.logger.Info("webhook delivery processed",
		slog.String("session_id", event.Session.ID),
		slog.Int("line_items", len(results)),
		slog.Int("dispatched", dispatched),
	)

	core.JSON(w, r, http.StatusOK, webhookAck{Received: "processed", Dispatched: dispatched})
}

// Package subscribe turns a verified Stripe checkout event into MailerLite
// group subscriptions: parse the event, resolve each purchased product to a
// group, and dispatch one subscription per mapped product.
package subscribe

import (
	"encoding/json"

	"listbridge/internal/types"
)

// EventTypeCheckoutCompleted is the only Stripe event type this service acts
// on. Everything else is acknowledged and ignored.
const EventTypeCheckoutCompleted = "checkout.session.completed"

// Event is the slice of a Stripe event envelope the pipeline reads.
type Event struct {
	Type    string
	Session types.CheckoutSession
}

// stripeEventEnvelope mirrors the wire shape of a Stripe event. Only the
// fields the pipeline needs are declared; unknown fields are ignored so new
// Stripe API versions do not break ingestion.
type stripeEventEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID              string `json:"id"`
			CustomerDetails *struct {
				Email string `json:"email"`
			} `json:"customer_details"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a raw webhook payload into an Event.
//
// Payloads that are not valid JSON, or that carry a checkout.session.completed
// event without a session id, fail with validation_malformed_payload. A
// missing customer email is not an error; Stripe legitimately omits it and
// the pipeline then skips dispatching.
func ParseEvent(payload []byte) (Event, error) {
	var envelope stripeEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Event{}, types.NewAppError(
			types.ErrCodeValidationMalformedPayload,
			"event payload is not valid JSON",
			err,
		)
	}

	event := Event{Type: envelope.Type}
	if envelope.Type != EventTypeCheckoutCompleted {
		return event, nil
	}

	if envelope.Data.Object.ID == "" {
		return Event{}, types.NewAppError(
			types.ErrCodeValidationMalformedPayload,
			"checkout event is missing the session id",
			nil,
		)
	}

	event.Session = types.CheckoutSession{ID: envelope.Data.Object.ID}
	if envelope.Data.Object.CustomerDetails != nil {
		event.Session.CustomerEmail = envelope.Data.Object.CustomerDetails.Email
	}

	return event, nil
}

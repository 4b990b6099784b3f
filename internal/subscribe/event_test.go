package subscribe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbridge/internal/types"
)

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"customer_details": {"email": "buyer@example.com", "name": "Buyer"}
			}
		}
	}`)

	event, err := ParseEvent(payload)

	require.NoError(t, err)
	assert.Equal(t, EventTypeCheckoutCompleted, event.Type)
	assert.Equal(t, "cs_test_1", event.Session.ID)
	assert.Equal(t, "buyer@example.com", event.Session.CustomerEmail)
}

func TestParseEvent_MissingCustomerDetails(t *testing.T) {
	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1"}}
	}`)

	event, err := ParseEvent(payload)

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", event.Session.ID)
	assert.Empty(t, event.Session.CustomerEmail)
}

func TestParseEvent_OtherEventType(t *testing.T) {
	payload := []byte(`{
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1"}}
	}`)

	event, err := ParseEvent(payload)

	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", event.Type)
	assert.Empty(t, event.Session.ID)
}

func TestParseEvent_InvalidJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMalformedPayload, appErr.Code)
}

func TestParseEvent_CheckoutWithoutSessionID(t *testing.T) {
	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {}}
	}`)

	_, err := ParseEvent(payload)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMalformedPayload, appErr.Code)
}

package external

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbridge/internal/types"
)

const testSigningSecret = "whsec_test_secret"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func signedHeader(payload []byte, ts int64, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(payload, ts, secret))
}

func assertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected *types.AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func TestStripeVerifier_ValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"type":"checkout.session.completed"}`)
	v := NewStripeVerifierAt(fixedClock(now))

	err := v.Verify(payload, signedHeader(payload, now.Unix(), testSigningSecret), testSigningSecret)

	assert.NoError(t, err)
}

func TestStripeVerifier_TimestampWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name     string
		ts       int64
		wantCode types.ErrorCode
	}{
		{name: "exactly at tolerance in the past", ts: now.Unix() - 300},
		{name: "exactly at tolerance in the future", ts: now.Unix() + 300},
		{name: "one second past tolerance", ts: now.Unix() - 301, wantCode: types.ErrCodeSignatureStale},
		{name: "one second ahead of tolerance", ts: now.Unix() + 301, wantCode: types.ErrCodeSignatureStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewStripeVerifierAt(fixedClock(now))
			err := v.Verify(payload, signedHeader(payload, tt.ts, testSigningSecret), testSigningSecret)

			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestStripeVerifier_MalformedHeader(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{}`)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing v1 element", header: fmt.Sprintf("t=%d", now.Unix())},
		{name: "missing t element", header: "v1=deadbeef"},
		{name: "non-integer timestamp", header: "t=notanumber,v1=deadbeef"},
		{name: "garbage", header: "this is not a signature"},
		{name: "empty v1 value", header: fmt.Sprintf("t=%d,v1=", now.Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewStripeVerifierAt(fixedClock(now))
			err := v.Verify(payload, tt.header, testSigningSecret)

			assertErrorCode(t, err, types.ErrCodeSignatureMalformed)
		})
	}
}

func TestStripeVerifier_MissingHeader(t *testing.T) {
	v := NewStripeVerifierAt(fixedClock(time.Unix(1_700_000_000, 0)))

	err := v.Verify([]byte(`{}`), "", testSigningSecret)

	assertErrorCode(t, err, types.ErrCodeSignatureMissing)
}

func TestStripeVerifier_SignatureMismatch(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)
	v := NewStripeVerifierAt(fixedClock(now))

	t.Run("wrong secret", func(t *testing.T) {
		header := signedHeader(payload, now.Unix(), "whsec_other_secret")
		err := v.Verify(payload, header, testSigningSecret)
		assertErrorCode(t, err, types.ErrCodeSignatureMismatch)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signedHeader(payload, now.Unix(), testSigningSecret)
		err := v.Verify([]byte(`{"id":"evt_2"}`), header, testSigningSecret)
		assertErrorCode(t, err, types.ErrCodeSignatureMismatch)
	})
}

func TestStripeVerifier_AcceptsAnyV1Candidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)
	v := NewStripeVerifierAt(fixedClock(now))

	// During secret rotation Stripe sends multiple v1 signatures; any valid
	// one must be accepted, unknown schemes ignored.
	valid := ComputeSignature(payload, now.Unix(), testSigningSecret)
	header := fmt.Sprintf("t=%d,v1=0000000000,v1=%s,v0=ignored", now.Unix(), valid)

	assert.NoError(t, v.Verify(payload, header, testSigningSecret))
}

func TestComputeSignature_LowercaseHex(t *testing.T) {
	sig := ComputeSignature([]byte("payload"), 1_700_000_000, testSigningSecret)

	assert.Len(t, sig, 64)
	for _, ch := range sig {
		isHex := (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f')
		assert.True(t, isHex, "unexpected character %q in signature", ch)
	}
}

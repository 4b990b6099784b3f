package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"listbridge/internal/types"
)

// signatureTolerance is the maximum allowed clock skew between the timestamp
// embedded in a signature header and the server's current time. Deliveries
// outside this window are rejected to limit replay attacks. A delivery at
// exactly the tolerance boundary is accepted.
const signatureTolerance = 300 * time.Second

// StripeVerifier validates Stripe webhook signatures per Stripe's v1 signing
// scheme: the header carries a unix timestamp and one or more HMAC-SHA256
// signatures computed over "{timestamp}.{payload}" with the endpoint's
// signing secret.
type StripeVerifier struct {
	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewStripeVerifier creates a verifier using the system clock.
func NewStripeVerifier() *StripeVerifier {
	return &StripeVerifier{now: time.Now}
}

// NewStripeVerifierAt creates a verifier with a fixed clock. Test use only.
func NewStripeVerifierAt(now func() time.Time) *StripeVerifier {
	return &StripeVerifier{now: now}
}

// Verify checks the Stripe-Signature header value against the raw payload.
//
// Failure modes, in evaluation order:
//   - malformed header (missing t= or v1= element, non-integer timestamp)
//   - stale timestamp (|now - t| > 300s)
//   - signature mismatch (no v1 candidate equals the expected HMAC)
//
// All comparisons use hmac.Equal to stay constant-time.
func (v *StripeVerifier) Verify(payload []byte, sigHeader string, secret string) error {
	if sigHeader == "" {
		return types.NewAppError(
			types.ErrCodeSignatureMissing,
			"Stripe-Signature header is missing",
			nil,
		)
	}

	timestamp, candidates, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeSignatureMalformed,
			"Stripe-Signature header is malformed",
			err,
		)
	}

	skew := v.now().Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > signatureTolerance {
		return types.NewAppErrorWithDetails(
			types.ErrCodeSignatureStale,
			"signature timestamp is outside the tolerance window",
			nil,
			map[string]any{"tolerance_seconds": int(signatureTolerance.Seconds())},
		)
	}

	expected := ComputeSignature(payload, timestamp, secret)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}

	return types.NewAppError(
		types.ErrCodeSignatureMismatch,
		"signature does not match payload",
		nil,
	)
}

// parseSignatureHeader splits a header of the form
// "t=1712345678,v1=abc...,v0=def..." into its timestamp and the list of v1
// signature candidates. Elements with unknown prefixes (v0, future schemes)
// are ignored. An error is returned when the timestamp or every v1 element
// is absent or unparsable.
func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		hasT       bool
		candidates []string
	)

	for _, element := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(element), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
			}
			timestamp = ts
			hasT = true
		case "v1":
			if value != "" {
				candidates = append(candidates, value)
			}
		}
	}

	if !hasT {
		return 0, nil, fmt.Errorf("missing t element")
	}
	if len(candidates) == 0 {
		return 0, nil, fmt.Errorf("missing v1 element")
	}

	return timestamp, candidates, nil
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of
// "{timestamp}.{payload}" under the given secret. Exported so tests and
// tooling can produce valid signatures.
func ComputeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

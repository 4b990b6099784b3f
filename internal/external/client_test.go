package external

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbridge/internal/types"
)

func TestBaseClient_NoRetryOnClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testBaseClient()
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestBaseClient_RetriesExhaustedOn500(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testBaseClient() // MaxRetries: 1
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)

	assertErrorCode(t, err, types.ErrCodeUpstreamUnavailable)
	assert.Equal(t, 2, calls)
}

func TestBaseClient_RateLimitMapsToTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testBaseClient()
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)

	assertErrorCode(t, err, types.ErrCodeUpstreamRateLimited)
}

func TestBaseClient_ReplaysBodyOnRetry(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testBaseClient()
	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"email":"a@b.c"}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	// Both attempts must carry the full payload.
	assert.Equal(t, []string{`{"email":"a@b.c"}`, `{"email":"a@b.c"}`}, bodies)
}

func TestComputeBackoff_RetryAfterSeconds(t *testing.T) {
	client := NewBaseClient(http.DefaultClient, "test", RetryPolicy{
		MaxRetries: 2,
		MinWait:    100 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}, "")

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}
	assert.Equal(t, 2*time.Second, client.computeBackoff(0, resp))

	// Retry-After beyond MaxWait is clamped.
	resp = &http.Response{Header: http.Header{"Retry-After": []string{"60"}}}
	assert.Equal(t, 5*time.Second, client.computeBackoff(0, resp))
}

func TestComputeBackoff_ExponentialWithinBounds(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 3,
		MinWait:    100 * time.Millisecond,
		MaxWait:    1 * time.Second,
	}
	client := NewBaseClient(http.DefaultClient, "test", policy, "")

	for attempt := 0; attempt < 5; attempt++ {
		wait := client.computeBackoff(attempt, nil)
		assert.GreaterOrEqual(t, wait, policy.MinWait)
		assert.LessOrEqual(t, wait, policy.MaxWait)
	}
}

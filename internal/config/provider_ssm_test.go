package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSSMClient records GetParameters calls and serves canned values.
type mockSSMClient struct {
	values  map[string]string
	invalid []string
	err     error
	batches [][]string
}

func (m *mockSSMClient) GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.batches = append(m.batches, params.Names)
	if m.err != nil {
		return nil, m.err
	}

	out := &ssm.GetParametersOutput{}
	for _, name := range params.Names {
		if v, ok := m.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{
				Name:  aws.String(name),
				Value: aws.String(v),
			})
		}
	}
	out.InvalidParameters = m.invalid
	return out, nil
}

func TestSSMProvider_GetParametersBatch(t *testing.T) {
	client := &mockSSMClient{values: map[string]string{
		"/prod/listbridge/database/url": "postgres://host/db",
		"/prod/listbridge/admin/key":    "admin_key_value",
	}}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), []string{
		"/prod/listbridge/database/url",
		"/prod/listbridge/admin/key",
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"/prod/listbridge/database/url": "postgres://host/db",
		"/prod/listbridge/admin/key":    "admin_key_value",
	}, result)
	assert.Len(t, client.batches, 1)
}

func TestSSMProvider_BatchesOfTen(t *testing.T) {
	values := make(map[string]string)
	keys := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("/prod/listbridge/param/%d", i)
		values[key] = fmt.Sprintf("value-%d", i)
		keys = append(keys, key)
	}

	client := &mockSSMClient{values: values}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), keys)

	require.NoError(t, err)
	assert.Len(t, result, 12)
	require.Len(t, client.batches, 2)
	assert.Len(t, client.batches[0], 10)
	assert.Len(t, client.batches[1], 2)
}

func TestSSMProvider_InvalidParameters(t *testing.T) {
	client := &mockSSMClient{invalid: []string{"/prod/listbridge/missing"}}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/prod/listbridge/missing"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/prod/listbridge/missing")
}

func TestSSMProvider_ClientFailure(t *testing.T) {
	client := &mockSSMClient{err: errors.New("access denied")}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/prod/listbridge/param"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestSSMProvider_CancelledContext(t *testing.T) {
	client := &mockSSMClient{values: map[string]string{}}
	provider := newSSMProviderWithClient("us-east-1", client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.GetParametersBatch(ctx, []string{"/prod/listbridge/param"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSSMProvider_EmptyKeys(t *testing.T) {
	provider := newSSMProviderWithClient("us-east-1", &mockSSMClient{})

	result, err := provider.GetParametersBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result)
}

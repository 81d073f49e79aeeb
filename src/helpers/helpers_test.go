package helpers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	res, err := Retry(context.Background(), "prices", RetryPolicy{Attempts: 3, Delay: time.Millisecond}, nil,
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("flaky")
			}
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustionIsExtractionFailed(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "index", RetryPolicy{Attempts: 3, Delay: time.Millisecond}, nil,
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("timeout")
		})

	var failed *ExtractionFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, "index", failed.Op)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnValidationError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "index", RetryPolicy{Attempts: 3, Delay: time.Millisecond}, nil,
		func(ctx context.Context) (int, error) {
			calls++
			return 0, NewValidationError("index value %v", 0)
		})

	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, "op", RetryPolicy{Attempts: 3, Delay: time.Hour}, nil,
		func(ctx context.Context) (int, error) { return 0, errors.New("x") })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	cause := errors.New("connection refused")

	assert.ErrorIs(t, NewStoreError("upsert", cause), cause)
	assert.ErrorIs(t, NewCacheError("hset", cause), cause)
	assert.True(t, IsLaunch(NewLaunchError(cause)))
	assert.True(t, IsStore(NewStoreError("x", cause)))
	assert.False(t, IsRetryable(NewLaunchError(cause)))
	assert.True(t, IsRetryable(NewExtractionError("prices", "dom", cause)))
	assert.Contains(t, NewExtractionError("prices", "dom", cause).Error(), "prices/dom")
}

func TestProxyManagerRotation(t *testing.T) {
	pm := NewProxyManager([]string{"10.0.0.1:8080", "socks5://10.0.0.2:1080", "ftp://10.0.0.3:21"}, "", nil)
	assert.True(t, pm.HasProxies())

	p, err := pm.GetCurrentProxy()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080", p)

	pm.RotateProxy()
	p, _ = pm.GetCurrentProxy()
	assert.Equal(t, "socks5://10.0.0.2:1080", p)

	pm.RotateProxy()
	p, _ = pm.GetCurrentProxy()
	assert.Equal(t, "http://10.0.0.1:8080", p)
}

func TestProxyManagerUserAgent(t *testing.T) {
	assert.Equal(t, "custom-agent", NewProxyManager(nil, "custom-agent", nil).GetUserAgent())
	assert.Contains(t, defaultUserAgents, NewProxyManager(nil, "", nil).GetUserAgent())

	p, err := NewProxyManager(nil, "", nil).GetCurrentProxy()
	require.NoError(t, err)
	assert.Empty(t, p)
}

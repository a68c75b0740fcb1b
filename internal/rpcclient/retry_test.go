package rpcclient

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainIndexor/internal/common"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(1 * time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2,
	}
}

func TestRetryableError(t *testing.T) {
	assert.True(t, retryableError(errors.New("request timeout")))
	assert.True(t, retryableError(errors.New("429 too many requests")))
	assert.True(t, retryableError(errors.New("503 service unavailable")))
	assert.True(t, retryableError(&net.DNSError{IsTimeout: true}))
	assert.False(t, retryableError(errors.New("invalid argument")))
	assert.False(t, retryableError(nil))
}

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "op", func() error {
		attempts++
		if attempts < 2 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoffNonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "op", func() error {
		attempts++
		return errors.New("invalid argument")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoffExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "op", func() error {
		attempts++
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, testRetryConfig(), "op", func() error {
		t.Fatal("should not be called with an already-cancelled context")
		return nil
	})
	require.Error(t, err)
}

func TestParseSuggestedBlockRange(t *testing.T) {
	from, to, ok := ParseSuggestedBlockRange("Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].")
	require.True(t, ok)
	assert.Equal(t, uint64(0x7dfd25), from)
	assert.Equal(t, uint64(0x7e0fcc), to)

	_, _, ok = ParseSuggestedBlockRange("no range here")
	assert.False(t, ok)
}

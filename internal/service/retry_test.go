package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestRetryPolicyRetriesTransientFailures(t *testing.T) {
	var calls []int
	var retried []int

	err := fastPolicy().Do(context.Background(), func(attempt int) error {
		calls = append(calls, attempt)
		if attempt < 3 {
			return &PublishError{StatusCode: 503, Message: "backend error"}
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryPolicyFailsFastOnClientErrors(t *testing.T) {
	calls := 0
	want := &PublishError{StatusCode: 401, Message: "Invalid Credentials"}

	err := fastPolicy().Do(context.Background(), func(int) error {
		calls++
		return want
	}, nil)

	assert.Equal(t, 1, calls)
	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 401, pe.StatusCode)
}

func TestRetryPolicyStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(int) error {
		calls++
		return &PublishError{StatusCode: 500, Message: "internal"}
	}, nil)

	assert.Equal(t, 3, calls)
	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "internal", pe.Message)
}

func TestRetryPolicyReturnsPlatformErrorOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 3, Initial: time.Hour, Max: time.Hour}

	err := p.Do(ctx, func(int) error {
		cancel()
		return &PublishError{StatusCode: 502, Message: "bad gateway"}
	}, nil)

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad gateway", pe.Message)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 2*time.Second, p.Initial)
}

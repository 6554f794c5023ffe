package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsQuota(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status code", errors.New("request failed with status 429"), true},
		{"quota word", errors.New("Quota exceeded for model"), true},
		{"resource exhausted", errors.New("rpc error: RESOURCE EXHAUSTED"), true},
		{"rate limit", errors.New("Rate limit reached, retry later"), true},
		{"wrapped", fmt.Errorf("calling provider: %w", errors.New("quota exceeded")), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuota(tt.err))
		})
	}
}

func TestShouldFallback(t *testing.T) {
	assert.True(t, ShouldFallback(errors.New("429 too many requests")))
	assert.True(t, ShouldFallback(fmt.Errorf("gemini: %w", ErrMissingCredential)))
	assert.False(t, ShouldFallback(errors.New("invalid audio format")))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
	assert.Equal(t, 2*time.Second, Backoff(0))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	// Avoid real backoff sleeps by succeeding on the first attempt of each
	// scenario that would sleep; here the second attempt costs one backoff,
	// which is acceptable for the smallest exponent only when attempts=1.
	result, err := Retry(context.Background(), 1, nil, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("bad input")
	_, err := Retry(context.Background(), 3, IsQuota, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, 3, nil, func(context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain_FirstProviderWins(t *testing.T) {
	chain := NewChain(nil, nil,
		Entry[string]{Name: "a", Provider: "A"},
		Entry[string]{Name: "b", Provider: "B"},
	)

	result, name, err := Execute(context.Background(), chain,
		func(_ context.Context, p string) (string, error) {
			return "from " + p, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "from A", result)
	assert.Equal(t, "a", name)
}

func TestChain_FallsBackOnQuota(t *testing.T) {
	chain := NewChain(nil, nil,
		Entry[string]{Name: "gemini", Provider: "gemini"},
		Entry[string]{Name: "groq", Provider: "groq"},
	)

	result, name, err := Execute(context.Background(), chain,
		func(_ context.Context, p string) (string, error) {
			if p == "gemini" {
				return "", errors.New("429 resource exhausted")
			}
			return "translated", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "translated", result)
	assert.Equal(t, "groq", name)
}

func TestChain_NonFallbackErrorPropagates(t *testing.T) {
	fatal := errors.New("corrupt audio")
	chain := NewChain(nil, nil,
		Entry[string]{Name: "first", Provider: "first"},
		Entry[string]{Name: "second", Provider: "second"},
	)

	calls := 0
	_, name, err := Execute(context.Background(), chain,
		func(_ context.Context, p string) (string, error) {
			calls++
			return "", fatal
		})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, "first", name)
	assert.Equal(t, 1, calls)
}

func TestChain_AllFail(t *testing.T) {
	chain := NewChain(nil, nil,
		Entry[string]{Name: "a", Provider: "a"},
		Entry[string]{Name: "b", Provider: "b"},
	)

	_, _, err := Execute(context.Background(), chain,
		func(_ context.Context, p string) (string, error) {
			return "", fmt.Errorf("%s: quota exceeded", p)
		})
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.Contains(t, err.Error(), "b: quota")
}

func TestChain_Empty(t *testing.T) {
	chain := NewChain[string](nil, nil)
	_, _, err := Execute(context.Background(), chain,
		func(_ context.Context, p string) (string, error) {
			return p, nil
		})
	assert.ErrorIs(t, err, ErrAllFailed)
}

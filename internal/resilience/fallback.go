package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Entry is one provider in a fallback chain.
type Entry[T any] struct {
	Name     string
	Provider T
}

// Chain is an ordered list of providers traversed under a predicate on the
// error kind. Errors the predicate rejects propagate immediately.
type Chain[T any] struct {
	entries        []Entry[T]
	shouldFallback func(error) bool
	logger         *slog.Logger
}

// NewChain builds a fallback chain. A nil predicate uses ShouldFallback.
func NewChain[T any](logger *slog.Logger, shouldFallback func(error) bool, entries ...Entry[T]) *Chain[T] {
	if shouldFallback == nil {
		shouldFallback = ShouldFallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain[T]{
		entries:        entries,
		shouldFallback: shouldFallback,
		logger:         logger,
	}
}

// Len returns the number of providers in the chain.
func (c *Chain[T]) Len() int {
	return len(c.entries)
}

// Execute runs op against each provider in order until one succeeds. It
// returns the result and the name of the provider that produced it. When the
// predicate rejects an error it propagates immediately; when every provider
// fails the error wraps ErrAllFailed.
func Execute[T, R any](ctx context.Context, c *Chain[T], op func(context.Context, T) (R, error)) (R, string, error) {
	var zero R
	if len(c.entries) == 0 {
		return zero, "", fmt.Errorf("%w: empty chain", ErrAllFailed)
	}

	var lastErr error
	for i, entry := range c.entries {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		result, err := op(ctx, entry.Provider)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded",
					slog.String("provider", entry.Name),
					slog.Int("position", i))
			}
			return result, entry.Name, nil
		}

		if !c.shouldFallback(err) {
			return zero, entry.Name, err
		}

		c.logger.Warn("provider failed, trying next",
			slog.String("provider", entry.Name),
			slog.String("error", err.Error()))
		lastErr = err
	}
	return zero, "", errors.Join(ErrAllFailed, lastErr)
}

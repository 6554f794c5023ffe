// Package resilience provides error classification, retry with exponential
// backoff, and ordered provider fallback chains.
package resilience

import (
	"errors"
	"strings"
)

// ErrMissingCredential indicates a provider was selected without its API key.
var ErrMissingCredential = errors.New("missing provider credential")

// ErrAllFailed indicates every provider in a fallback chain failed.
var ErrAllFailed = errors.New("all providers failed")

// quotaMarkers are the substrings that identify quota or rate-limit
// exhaustion in provider error text, matched case-insensitively.
var quotaMarkers = []string{"429", "quota", "resource exhausted", "rate limit"}

// IsQuota reports whether err looks like provider quota or rate-limit
// exhaustion anywhere in its chain.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsMissingCredential reports whether err stems from an absent API key.
func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

// ShouldFallback is the standard fallback predicate: quota exhaustion and
// missing credentials move to the next provider, everything else propagates.
func ShouldFallback(err error) bool {
	return IsQuota(err) || IsMissingCredential(err)
}

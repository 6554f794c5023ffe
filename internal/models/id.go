// Package models defines the core entities for videovoice jobs.
package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewJobID generates a new collision-resistant job identifier.
func NewJobID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ValidateJobID checks that s is a well-formed job identifier.
func ValidateJobID(s string) error {
	if _, err := ulid.Parse(s); err != nil {
		return fmt.Errorf("invalid job id %q: %w", s, err)
	}
	return nil
}

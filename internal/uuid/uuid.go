// Package uuid generates and validates the UUID v4 identifiers used for
// conflicts, transactions, operations, and event-hub clients.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Strict v4 shape: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx with variant bits
// [89ab]. Integrity validation flags anything else as a malformed id.
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a strictly formatted UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns an error when s is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}

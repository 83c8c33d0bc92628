package validation

import (
	"fmt"
	"regexp"
)

var (
	// SessionCodeRegex validates session code format
	SessionCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// IdentityRegex validates identity format
	IdentityRegex = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)
)

// ValidateSessionCode validates a rendezvous code.
func ValidateSessionCode(code string) error {
	if code == "" {
		return fmt.Errorf("session code is required")
	}
	if len(code) < 4 {
		return fmt.Errorf("session code must be at least 4 characters")
	}
	if len(code) > 64 {
		return fmt.Errorf("session code is too long (max 64 characters)")
	}
	if !SessionCodeRegex.MatchString(code) {
		return fmt.Errorf("session code contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateIdentity validates a participant identity.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	if len(identity) > 128 {
		return fmt.Errorf("identity is too long (max 128 characters)")
	}
	if !IdentityRegex.MatchString(identity) {
		return fmt.Errorf("identity contains invalid characters")
	}
	return nil
}

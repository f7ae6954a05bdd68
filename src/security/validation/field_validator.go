// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrValidationFailed is the sentinel wrapped by every field validation error.
var ErrValidationFailed = fmt.Errorf("validation failed")

// Constants for lengths remain here
const (
	MaxAccountCodeLength = 64
	MaxAccountNameLength = 255
	MaxDescriptionLength = 1024
	MaxClientRefLength   = 100
)

var accountCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateAccountCode checks the shape of a chart-of-accounts code: it must
// start with a letter or digit and may contain letters, digits, dots,
// underscores, colons and hyphens.
func ValidateAccountCode(code string) error {
	if err := ValidateStringNotEmpty(code, "account code"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(code, MaxAccountCodeLength, "account code"); err != nil {
		return err
	}
	if !accountCodePattern.MatchString(code) {
		return fmt.Errorf("%w: account code ('%s') is not in the expected format (letters, digits, '._:-')", ErrValidationFailed, code)
	}
	return nil
}

// ValidateClientRef checks an optional idempotency key. Empty means absent.
func ValidateClientRef(clientRef string) error {
	if clientRef == "" {
		return nil
	}
	return ValidateStringMaxLength(clientRef, MaxClientRefLength, "client_ref")
}

package tool

import (
	"fmt"
	"strings"
)

// RequireField fails when a required string param is empty after trimming.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// ValidateMaxLength fails when a string param exceeds max characters.
func ValidateMaxLength(name, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s exceeds %d characters", name, max)
	}
	return nil
}

// ValidateRange fails when an integer param falls outside [min, max].
// Zero passes so optional params can default downstream.
func ValidateRange(name string, value, min, max int) error {
	if value == 0 {
		return nil
	}
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return nil
}

// ValidateEnum fails when value is not one of the allowed options.
func ValidateEnum(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %s", name, joinComma(allowed))
}

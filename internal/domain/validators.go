package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

// ValidateIdentifier checks that an externally supplied id is a plain opaque token.
func ValidateIdentifier(field, id string) error {
	if id == "" {
		return ErrValidation(fmt.Sprintf("%s is required", field))
	}
	if !identifierRegex.MatchString(id) {
		return ErrValidation(fmt.Sprintf("invalid %s format", field))
	}
	return nil
}

// ParseConversionStatus normalizes a status string. Empty defaults to COMPLETED.
func ParseConversionStatus(s string) (ConversionStatus, error) {
	switch ConversionStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ConversionCompleted:
		return ConversionCompleted, nil
	case ConversionPending:
		return ConversionPending, nil
	case ConversionRejected:
		return ConversionRejected, nil
	default:
		return "", ErrValidation(fmt.Sprintf("invalid conversion status: %s", s))
	}
}

// ValidateNonNegativeAmount checks that an amount in cents is not negative.
func ValidateNonNegativeAmount(amount int64) error {
	if amount < 0 {
		return ErrValidation(fmt.Sprintf("amount must not be negative, got %d", amount))
	}
	return nil
}

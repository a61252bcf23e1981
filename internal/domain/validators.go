package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	referenceRegex = regexp.MustCompile(`^[A-Za-z0-9_\-.:]{1,128}$`)
	nonceRegex     = regexp.MustCompile(`^[A-Za-z0-9_\-]{8,128}$`)
)

// ValidateCurrency checks if a currency code is ISO 4217 shaped.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return ErrValidation(fmt.Sprintf("invalid currency code: %s", currency))
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive with at most
// two decimal places.
func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrValidation(fmt.Sprintf("amount must be positive, got %s", amount))
	}
	if amount.Exponent() < -2 {
		return ErrValidation(fmt.Sprintf("amount has more than 2 decimal places: %s", amount))
	}
	return nil
}

// ValidateReferenceID checks a partner-supplied idempotency key.
func ValidateReferenceID(ref string) error {
	if ref == "" {
		return ErrValidation("reference_id is required")
	}
	if !referenceRegex.MatchString(ref) {
		return ErrValidation("reference_id contains invalid characters or exceeds 128 chars")
	}
	return nil
}

// ValidateNonce checks a callback nonce.
func ValidateNonce(nonce string) error {
	if !nonceRegex.MatchString(nonce) {
		return ErrValidation("invalid nonce")
	}
	return nil
}

package util

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"dizimo/internal/domain"
)

// MaxChargeValue caps a single charge at R$ 1.000.000,00 (in cents).
const MaxChargeValue = 100_000_000

func ValidateChargeValue(value int64) error {
	if value <= 0 {
		return domain.NewValidationError("value", fmt.Sprintf("must be positive, got %d", value))
	}
	if value > MaxChargeValue {
		return domain.NewValidationError("value", fmt.Sprintf("too large, got %d", value))
	}
	return nil
}

// NormalizeCPF strips punctuation, keeping only digits.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF checks length and both verification digits.
func ValidateCPF(cpf string) error {
	digits := NormalizeCPF(cpf)
	if len(digits) != 11 {
		return domain.NewValidationError("cpf", "must have 11 digits")
	}
	if strings.Count(digits, digits[:1]) == 11 {
		return domain.NewValidationError("cpf", "repeated digits")
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != int(digits[n]-'0') {
			return domain.NewValidationError("cpf", "invalid check digit")
		}
	}
	return nil
}

func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.NewValidationError("email", "malformed address")
	}
	return nil
}

// ValidateText checks a required field length in characters.
func ValidateText(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < min {
		return domain.NewValidationError(field, fmt.Sprintf("must have at least %d characters", min))
	}
	if max > 0 && n > max {
		return domain.NewValidationError(field, fmt.Sprintf("must have at most %d characters", max))
	}
	return nil
}

package agent

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

const (
	maxNameLen      = 255
	minPasswordLen  = 6
	minMobileDigits = 7
	maxMobileDigits = 15
)

// ValidateCreateRequest checks the fields of an agent registration request.
// It trims surrounding whitespace from name, email and mobile in place.
func ValidateCreateRequest(req *CreateRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)

	if req.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(req.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters: %w", maxNameLen, domain.ErrValidation)
	}
	for _, r := range req.Name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}

	if req.Email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return fmt.Errorf("email %q is not a valid address: %w", req.Email, domain.ErrValidation)
	}

	if err := validateMobile(req.Mobile); err != nil {
		return err
	}

	if len(req.Password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrValidation)
	}
	return nil
}

// validateMobile accepts an optional leading '+' followed by 7-15 digits.
func validateMobile(mobile string) error {
	if mobile == "" {
		return fmt.Errorf("mobile is required: %w", domain.ErrValidation)
	}
	digits := strings.TrimPrefix(mobile, "+")
	if len(digits) < minMobileDigits || len(digits) > maxMobileDigits {
		return fmt.Errorf("mobile must have %d-%d digits: %w", minMobileDigits, maxMobileDigits, domain.ErrValidation)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("mobile must contain only digits: %w", domain.ErrValidation)
		}
	}
	return nil
}

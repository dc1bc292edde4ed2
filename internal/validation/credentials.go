package validation

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailRequired  = errors.New("email address is required")
	ErrEmailTooLong   = errors.New("email address is too long (max 254 characters)")
	ErrEmailFormat    = errors.New("invalid email address format")
	ErrPasswordShort  = errors.New("password must be at least 12 characters")
	ErrPasswordLong   = errors.New("password must not exceed 72 characters")
	ErrPasswordCommon = errors.New("password is too common, please choose a stronger one")
)

var commonPasswordPatterns = []string{
	"password", "123456", "qwerty", "admin", "letmein",
	"welcome", "monkey", "dragon", "master", "sunshine",
}

// NormalizeEmail lowercases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// ValidateEmail checks length limits (RFC 5321) and RFC 5322 syntax.
func ValidateEmail(email string) error {
	switch {
	case email == "":
		return ErrEmailRequired
	case len(email) > 254:
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailFormat
	}
	return nil
}

// ValidatePassword enforces 12..72 bytes (bcrypt truncates past 72) and rejects common patterns.
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return ErrPasswordShort
	}
	if len(password) > 72 {
		return ErrPasswordLong
	}

	lower := strings.ToLower(password)
	for _, pattern := range commonPasswordPatterns {
		if strings.Contains(lower, pattern) {
			return ErrPasswordCommon
		}
	}
	return nil
}

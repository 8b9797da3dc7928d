package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateThoughtText validates the user's seed thought or answer text.
func ValidateThoughtText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > 8000 {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateRoundID validates a round ID.
func ValidateRoundID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid round ID format")
	}
	return nil
}

// ValidateLocale validates a BCP-47-ish locale tag.
func ValidateLocale(locale string) error {
	if locale == "" {
		return nil
	}
	if len(locale) > 16 {
		return errors.New("invalid locale")
	}
	return nil
}

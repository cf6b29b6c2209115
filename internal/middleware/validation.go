package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateEventText validates inbound message text.
func ValidateEventText(text string) error {
	if len(text) > 4096 {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateEventID validates a transport event id.
func ValidateEventID(id string) error {
	if id == "" {
		return errors.New("event ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("event ID exceeds maximum length")
	}
	return nil
}

// ValidateConversationID validates a conversation id. Transports use their
// own formats (phone numbers, provider ids), so only bounds are checked.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("conversation ID exceeds maximum length")
	}
	return nil
}

// ValidateTenantID validates a tenant id.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength is the provider's limit on a text message body.
const MaxMessageLength = 4096

// ValidateMessageText validates an outbound message body. Empty text is
// allowed when the message carries an attachment.
func ValidateMessageText(text string, hasAttachment bool) error {
	if strings.TrimSpace(text) == "" && !hasAttachment {
		return errors.New("text cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a conversation or customer id.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid id format")
	}
	return nil
}

// ValidateAttachmentURL requires an absolute https or http URL.
func ValidateAttachmentURL(u string) error {
	if u == "" {
		return nil
	}
	if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return errors.New("attachment_url must be an http(s) URL")
	}
	return nil
}

// ValidateName validates a customer display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 256 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

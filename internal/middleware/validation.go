package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Maximum input sizes.
const (
	MaxUsernameLength     = 64
	MaxDisplayNameLength  = 128
	MinPasswordLength     = 1
	MaxPasswordBytes      = 72 // bcrypt ignores anything longer
	MaxConversationName   = 256
	MaxMessageContentSize = 100000
)

// ValidateUsername validates a username. Usernames name the user's data
// directory, so path separators and dots-only names are rejected.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return errors.New("username exceeds maximum length")
	}
	if username == "." || username == ".." {
		return errors.New("username is reserved")
	}
	for _, r := range username {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == '@') {
			return errors.New("username may only contain letters, digits, '.', '_', '-' and '@'")
		}
	}
	return nil
}

// ValidateDisplayName validates a display name.
func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("display name cannot be empty")
	}
	if len(name) > MaxDisplayNameLength {
		return errors.New("display name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("display name must be valid UTF-8")
	}
	return nil
}

// ValidatePassword validates a new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password cannot be empty")
	}
	if len(password) > MaxPasswordBytes {
		return errors.New("password exceeds 72 bytes")
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}
	return nil
}

// ValidateConversationName validates a conversation name.
func ValidateConversationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("conversation name cannot be empty")
	}
	if len(name) > MaxConversationName {
		return errors.New("conversation name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("conversation name must be valid UTF-8")
	}
	return nil
}

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxMessageContentSize {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

package model

import "github.com/google/uuid"

// GenerateUUID creates a new UUID string.
func GenerateUUID() string {
	return uuid.New().String()
}

// ValidUUID reports whether s parses as a UUID.
func ValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

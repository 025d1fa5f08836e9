package middleware

import (
	"fmt"
	"strings"
	"unicode"
)

// Input validation and sanitization utilities

const (
	DefaultLimit = 50
	MaxLimit     = 200

	// matches the mysql primary key width
	maxRecordIDLen = 191
)

// ValidateRecordID checks a dump id taken from a URL or a payload
func ValidateRecordID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("dump id cannot be empty")
	}
	if len(id) > maxRecordIDLen {
		return fmt.Errorf("dump id longer than %d bytes", maxRecordIDLen)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in dump id")
		}
	}
	return nil
}

// ValidateLimit clamps a list limit to 1..MaxLimit, defaulting to DefaultLimit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

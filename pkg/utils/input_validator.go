package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]{1,128}$`)

var ErrInvalidRoomName = errors.New("invalid room name")

// SanitizeInput trims spaces and drops control characters
func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, input)
}

// ValidateRoomName accepts LiveKit-style room names. Empty means "all rooms".
func ValidateRoomName(room string) error {
	if room == "" {
		return nil
	}
	if !roomNamePattern.MatchString(room) {
		return ErrInvalidRoomName
	}
	return nil
}

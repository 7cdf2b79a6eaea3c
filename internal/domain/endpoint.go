// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxDisplayNameLen = 36
	MaxRoomIDLen      = 64
)

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrRoomIDEmpty        = errors.New("room id empty")
	ErrRoomIDTooLong      = errors.New("room id too long")
)

// EndpointID identifies one live connection. It is assigned by the
// transport layer and never reused while the connection is alive.
type EndpointID string

// NewEndpointID allocates a fresh connection id.
func NewEndpointID() EndpointID {
	return EndpointID(uuid.NewString())
}

type DisplayName string

// ParseDisplayName trims and bounds a user supplied name.
func ParseDisplayName(raw string) (DisplayName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return DisplayName(name), nil
}

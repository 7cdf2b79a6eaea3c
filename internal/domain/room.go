package domain

import (
	"strings"
	"unicode/utf8"
)

// RoomID is chosen by participants, never generated by the server.
type RoomID string

func ParseRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrRoomIDEmpty
	}
	if utf8.RuneCountInString(id) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(id), nil
}

// Member represents an endpoint's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	ID          EndpointID  `json:"id"`
	DisplayName DisplayName `json:"displayName"`
	Room        RoomID      `json:"-"`
}

// RoomInfo is a read-only occupancy view.
type RoomInfo struct {
	ID          RoomID `json:"id"`
	MemberCount int    `json:"memberCount"`
}

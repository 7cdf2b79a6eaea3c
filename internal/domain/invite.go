package domain

import "time"

type TokenID string

// InviteToken reveals a room id to whoever redeems it, once.
type InviteToken struct {
	ID        TokenID
	Room      RoomID
	CreatedAt time.Time
}

// Expired reports whether the token is older than ttl at now.
func (t InviteToken) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.CreatedAt) > ttl
}

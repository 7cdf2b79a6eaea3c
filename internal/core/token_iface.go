package core

import "github.com/dkeye/Hush/internal/domain"

// TokenStore issues and redeems single-use invite tokens.
type TokenStore interface {
	Issue(room domain.RoomID) (domain.TokenID, error)
	// Redeem returns the bound room and deletes the token. ok is false for
	// unknown or expired tokens; that is a normal outcome, not an error.
	Redeem(id domain.TokenID) (room domain.RoomID, ok bool)
	RevokeForRoom(room domain.RoomID) int
	Len() int
}

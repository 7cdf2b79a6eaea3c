package core

import "github.com/dkeye/Hush/internal/domain"

// RoomRegistry tracks which endpoints belong to which room.
// Implementations never touch transport resources; notification is the
// caller's job.
type RoomRegistry interface {
	// Join removes id from any prior room, appends it to room and returns
	// the full member list including the new member.
	Join(id domain.EndpointID, room domain.RoomID, name domain.DisplayName) []domain.Member
	// Leave removes id from its room. ok is false when id was in no room.
	// The room is deleted when it becomes empty.
	Leave(id domain.EndpointID) (room domain.RoomID, remaining []domain.Member, ok bool)
	// Destroy deletes room and returns the members it had.
	Destroy(room domain.RoomID) []domain.Member

	RoomOf(id domain.EndpointID) (domain.RoomID, bool)
	MemberOf(id domain.EndpointID) (domain.Member, bool)
	Members(room domain.RoomID) []domain.Member
	List() []domain.RoomInfo
}

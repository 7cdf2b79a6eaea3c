// Package protocol defines the closed set of messages exchanged between
// clients and the relay server, and their wire encoding.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Hush/internal/domain"
)

type Event string

const (
	EventConnected          Event = "connected"
	EventJoinRoom           Event = "join-room"
	EventLeaveRoom          Event = "leave-room"
	EventRoomUsers          Event = "room-users"
	EventUserJoined         Event = "user-joined"
	EventUserLeft           Event = "user-left"
	EventRoomDestroyed      Event = "room-destroyed"
	EventDestroyRoom        Event = "destroy-room"
	EventSignal             Event = "signal"
	EventEncryptedChat      Event = "encrypted-chat"
	EventCreateInviteToken  Event = "create-invite-token"
	EventInviteTokenCreated Event = "invite-token-created"
	EventRedeemInviteToken  Event = "redeem-invite-token"
	EventInviteTokenValid   Event = "invite-token-valid"
	EventInviteTokenInvalid Event = "invite-token-invalid"
	EventScreenshotDetected Event = "screenshot-detected"
	EventScreenshotAlert    Event = "screenshot-alert"
	EventError              Event = "error"
)

// Error codes carried by Error.
const (
	CodeInvalidJoin  = "invalid_join"
	CodeNotMember    = "not_member"
	CodeUnknownEvent = "unknown_event"
	CodeBadMessage   = "bad_message"
	CodeTokenFailure = "token_failure"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// Message is one of the variants below. The set is closed: only types in
// this package implement it.
type Message interface {
	Event() Event
	message()
}

type User struct {
	ID          domain.EndpointID  `json:"id" validate:"required"`
	DisplayName domain.DisplayName `json:"displayName"`
}

func UserFromMember(m domain.Member) User {
	return User{ID: m.ID, DisplayName: m.DisplayName}
}

// Sealed is the encrypted chat wire unit. The relay never opens it.
type Sealed struct {
	Nonce      []byte `json:"nonce" validate:"required,min=1"`
	Ciphertext []byte `json:"ciphertext" validate:"required,min=1"`
}

type Connected struct {
	ID domain.EndpointID `json:"id" validate:"required"`
}

type JoinRoom struct {
	RoomID      string `json:"roomId" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"required,max=36"`
}

type LeaveRoom struct{}

type RoomUsers struct {
	Users []User `json:"users" validate:"dive"`
}

type UserJoined struct {
	User
}

type UserLeft struct {
	ID domain.EndpointID `json:"id" validate:"required"`
}

type RoomDestroyed struct{}

type DestroyRoom struct{}

// Signal carries an opaque negotiation payload. Clients set Target; the
// relay sets Sender and clears Target.
type Signal struct {
	Target  domain.EndpointID `json:"target,omitempty"`
	Sender  domain.EndpointID `json:"sender,omitempty"`
	Type    SignalType        `json:"type" validate:"oneof=offer answer candidate"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// EncryptedChat is relayed to the rest of the sender's room. Sender and
// DisplayName are filled in by the relay from the registry.
type EncryptedChat struct {
	Sender      domain.EndpointID  `json:"sender,omitempty"`
	DisplayName domain.DisplayName `json:"displayName,omitempty"`
	Payload     Sealed             `json:"payload"`
}

type CreateInviteToken struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type InviteTokenCreated struct {
	TokenID domain.TokenID `json:"tokenId" validate:"required"`
}

type RedeemInviteToken struct {
	TokenID string `json:"tokenId" validate:"required,max=128"`
}

type InviteTokenValid struct {
	RoomID domain.RoomID `json:"roomId" validate:"required"`
}

type InviteTokenInvalid struct{}

type ScreenshotDetected struct{}

type ScreenshotAlert struct {
	DisplayName domain.DisplayName `json:"displayName"`
}

type Error struct {
	Code    string `json:"code" validate:"required"`
	Message string `json:"message,omitempty"`
}

func (Connected) Event() Event          { return EventConnected }
func (JoinRoom) Event() Event           { return EventJoinRoom }
func (LeaveRoom) Event() Event          { return EventLeaveRoom }
func (RoomUsers) Event() Event          { return EventRoomUsers }
func (UserJoined) Event() Event         { return EventUserJoined }
func (UserLeft) Event() Event           { return EventUserLeft }
func (RoomDestroyed) Event() Event      { return EventRoomDestroyed }
func (DestroyRoom) Event() Event        { return EventDestroyRoom }
func (Signal) Event() Event             { return EventSignal }
func (EncryptedChat) Event() Event      { return EventEncryptedChat }
func (CreateInviteToken) Event() Event  { return EventCreateInviteToken }
func (InviteTokenCreated) Event() Event { return EventInviteTokenCreated }
func (RedeemInviteToken) Event() Event  { return EventRedeemInviteToken }
func (InviteTokenValid) Event() Event   { return EventInviteTokenValid }
func (InviteTokenInvalid) Event() Event { return EventInviteTokenInvalid }
func (ScreenshotDetected) Event() Event { return EventScreenshotDetected }
func (ScreenshotAlert) Event() Event    { return EventScreenshotAlert }
func (Error) Event() Event              { return EventError }

func (Connected) message()          {}
func (JoinRoom) message()           {}
func (LeaveRoom) message()          {}
func (RoomUsers) message()          {}
func (UserJoined) message()         {}
func (UserLeft) message()           {}
func (RoomDestroyed) message()      {}
func (DestroyRoom) message()        {}
func (Signal) message()             {}
func (EncryptedChat) message()      {}
func (CreateInviteToken) message()  {}
func (InviteTokenCreated) message() {}
func (RedeemInviteToken) message()  {}
func (InviteTokenValid) message()   {}
func (InviteTokenInvalid) message() {}
func (ScreenshotDetected) message() {}
func (ScreenshotAlert) message()    {}
func (Error) message()              {}

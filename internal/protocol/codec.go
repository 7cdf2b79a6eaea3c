package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrWrongDirection = errors.New("event not accepted in this direction")
	ErrInvalidPayload = errors.New("invalid payload")
)

var (
	wire     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

type direction uint8

const (
	fromClient direction = 1 << iota
	fromServer
)

type variant struct {
	dir direction
	new func() Message
}

var variants = map[Event]variant{
	EventConnected:          {fromServer, func() Message { return &Connected{} }},
	EventJoinRoom:           {fromClient, func() Message { return &JoinRoom{} }},
	EventLeaveRoom:          {fromClient, func() Message { return &LeaveRoom{} }},
	EventRoomUsers:          {fromServer, func() Message { return &RoomUsers{} }},
	EventUserJoined:         {fromServer, func() Message { return &UserJoined{} }},
	EventUserLeft:           {fromServer, func() Message { return &UserLeft{} }},
	EventRoomDestroyed:      {fromServer, func() Message { return &RoomDestroyed{} }},
	EventDestroyRoom:        {fromClient, func() Message { return &DestroyRoom{} }},
	EventSignal:             {fromClient | fromServer, func() Message { return &Signal{} }},
	EventEncryptedChat:      {fromClient | fromServer, func() Message { return &EncryptedChat{} }},
	EventCreateInviteToken:  {fromClient, func() Message { return &CreateInviteToken{} }},
	EventInviteTokenCreated: {fromServer, func() Message { return &InviteTokenCreated{} }},
	EventRedeemInviteToken:  {fromClient, func() Message { return &RedeemInviteToken{} }},
	EventInviteTokenValid:   {fromServer, func() Message { return &InviteTokenValid{} }},
	EventInviteTokenInvalid: {fromServer, func() Message { return &InviteTokenInvalid{} }},
	EventScreenshotDetected: {fromClient, func() Message { return &ScreenshotDetected{} }},
	EventScreenshotAlert:    {fromServer, func() Message { return &ScreenshotAlert{} }},
	EventError:              {fromServer, func() Message { return &Error{} }},
}

type envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode frames msg as {"event": ..., "data": ...}.
func Encode(msg Message) ([]byte, error) {
	data, err := wire.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return wire.Marshal(envelope{Event: msg.Event(), Data: data})
}

// DecodeFromClient parses a frame received by the server.
func DecodeFromClient(frame []byte) (Message, error) {
	msg, err := decode(frame, fromClient)
	if err != nil {
		return nil, err
	}
	if s, ok := msg.(Signal); ok && s.Target == "" {
		return nil, fmt.Errorf("%w: signal missing target", ErrInvalidPayload)
	}
	return msg, nil
}

// DecodeFromServer parses a frame received by a client.
func DecodeFromServer(frame []byte) (Message, error) {
	return decode(frame, fromServer)
}

func decode(frame []byte, dir direction) (Message, error) {
	var env envelope
	if err := wire.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	v, ok := variants[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
	}
	if v.dir&dir == 0 {
		return nil, fmt.Errorf("%w: %q", ErrWrongDirection, env.Event)
	}

	ptr := v.new()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := wire.Unmarshal(env.Data, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
		}
	}
	if err := validate.Struct(ptr); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	return deref(ptr), nil
}

// deref hands out variants by value so handlers can type-switch on the
// plain struct types.
func deref(ptr Message) Message {
	switch m := ptr.(type) {
	case *Connected:
		return *m
	case *JoinRoom:
		return *m
	case *LeaveRoom:
		return *m
	case *RoomUsers:
		return *m
	case *UserJoined:
		return *m
	case *UserLeft:
		return *m
	case *RoomDestroyed:
		return *m
	case *DestroyRoom:
		return *m
	case *Signal:
		return *m
	case *EncryptedChat:
		return *m
	case *CreateInviteToken:
		return *m
	case *InviteTokenCreated:
		return *m
	case *RedeemInviteToken:
		return *m
	case *InviteTokenValid:
		return *m
	case *InviteTokenInvalid:
		return *m
	case *ScreenshotDetected:
		return *m
	case *ScreenshotAlert:
		return *m
	case *Error:
		return *m
	default:
		return ptr
	}
}

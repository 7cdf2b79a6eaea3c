package app

import (
	"context"
	"errors"

	"github.com/dkeye/Hush/internal/core"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrHubStopped = errors.New("hub stopped")

type inbound struct {
	from domain.EndpointID
	msg  protocol.Message
}

// Hub serializes every connection event on one goroutine. Each event runs
// to completion before the next one is taken, so the registry, token
// store and relay need no locking of their own.
type Hub struct {
	rooms   core.RoomRegistry
	tokens  core.TokenStore
	relay   *Relay
	limiter *RateLimiter

	register   chan core.Endpoint
	unregister chan domain.EndpointID
	inbound    chan inbound
	exec       chan func()
	done       chan struct{}
}

func NewHub(rooms core.RoomRegistry, tokens core.TokenStore, relay *Relay, limiter *RateLimiter) *Hub {
	return &Hub{
		rooms:      rooms,
		tokens:     tokens,
		relay:      relay,
		limiter:    limiter,
		register:   make(chan core.Endpoint),
		unregister: make(chan domain.EndpointID),
		inbound:    make(chan inbound, 256),
		exec:       make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled, then closes every endpoint.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log.Info().Str("module", "app.hub").Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ep := <-h.register:
			h.handleRegister(ep)
		case id := <-h.unregister:
			h.handleUnregister(id)
		case in := <-h.inbound:
			h.handleMessage(in.from, in.msg)
		case fn := <-h.exec:
			fn()
		}
	}
}

func (h *Hub) Register(ctx context.Context, ep core.Endpoint) error {
	select {
	case h.register <- ep:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Unregister(id domain.EndpointID) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

func (h *Hub) Dispatch(ctx context.Context, from domain.EndpointID, msg protocol.Message) error {
	select {
	case h.inbound <- inbound{from: from, msg: msg}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case h.exec <- wrapped:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) shutdown() {
	for _, info := range h.rooms.List() {
		h.rooms.Destroy(info.ID)
	}
	for id := range h.relay.endpoints {
		if ep, ok := h.relay.Detach(id); ok {
			ep.Close()
		}
	}
	log.Info().Str("module", "app.hub").Msg("hub stopped")
}

func (h *Hub) handleRegister(ep core.Endpoint) {
	h.relay.Attach(ep)
	h.relay.Send(ep.ID(), protocol.Connected{ID: ep.ID()})
	log.Info().Str("module", "app.hub").Str("endpoint", string(ep.ID())).Msg("endpoint connected")
}

func (h *Hub) handleUnregister(id domain.EndpointID) {
	h.leave(id)
	if ep, ok := h.relay.Detach(id); ok {
		ep.Close()
		log.Info().Str("module", "app.hub").Str("endpoint", string(id)).Msg("endpoint disconnected")
	}
}

func (h *Hub) handleMessage(from domain.EndpointID, msg protocol.Message) {
	if _, ok := h.relay.Endpoint(from); !ok {
		return
	}
	switch m := msg.(type) {
	case protocol.JoinRoom:
		h.join(from, m)
	case protocol.LeaveRoom:
		h.leave(from)
	case protocol.DestroyRoom:
		h.destroy(from)
	case protocol.Signal:
		h.relay.Relay(from, m.Target, m.Type, m.Payload)
	case protocol.EncryptedChat:
		h.chat(from, m)
	case protocol.CreateInviteToken:
		h.issueToken(from, m)
	case protocol.RedeemInviteToken:
		h.redeemToken(from, m)
	case protocol.ScreenshotDetected:
		h.screenshot(from)
	default:
		log.Warn().Str("module", "app.hub").Str("endpoint", string(from)).
			Str("event", string(msg.Event())).Msg("event not handled by server")
		h.sendError(from, protocol.CodeUnknownEvent, "event not accepted: "+string(msg.Event()))
	}
}

func (h *Hub) sendError(to domain.EndpointID, code, message string) {
	h.relay.Send(to, protocol.Error{Code: code, Message: message})
}

func (h *Hub) join(id domain.EndpointID, m protocol.JoinRoom) {
	room, err := domain.ParseRoomID(m.RoomID)
	if err != nil {
		h.sendError(id, protocol.CodeInvalidJoin, err.Error())
		return
	}
	name, err := domain.ParseDisplayName(m.DisplayName)
	if err != nil {
		h.sendError(id, protocol.CodeInvalidJoin, err.Error())
		return
	}

	if prev, ok := h.rooms.RoomOf(id); ok && prev != room {
		h.leave(id)
	}
	members := h.rooms.Join(id, room, name)

	users := make([]protocol.User, 0, len(members))
	for _, mem := range members {
		users = append(users, protocol.UserFromMember(mem))
	}
	h.relay.Send(id, protocol.RoomUsers{Users: users})
	h.relay.BroadcastToRoom(room, protocol.UserJoined{User: protocol.User{ID: id, DisplayName: name}}, id)

	log.Info().Str("module", "app.hub").
		Str("endpoint", string(id)).
		Str("room", string(room)).
		Int("members", len(members)).
		Msg("joined room")
}

func (h *Hub) leave(id domain.EndpointID) {
	room, remaining, ok := h.rooms.Leave(id)
	if !ok {
		return
	}
	if len(remaining) > 0 {
		h.relay.BroadcastToRoom(room, protocol.UserLeft{ID: id})
	}
	log.Info().Str("module", "app.hub").
		Str("endpoint", string(id)).
		Str("room", string(room)).
		Int("remaining", len(remaining)).
		Msg("left room")
}

func (h *Hub) destroy(id domain.EndpointID) {
	room, ok := h.rooms.RoomOf(id)
	if !ok {
		h.sendError(id, protocol.CodeNotMember, "not in a room")
		return
	}
	h.relay.BroadcastToRoom(room, protocol.RoomDestroyed{})
	members := h.rooms.Destroy(room)
	for _, m := range members {
		if ep, ok := h.relay.Endpoint(m.ID); ok {
			ep.Close()
		}
	}
	revoked := h.tokens.RevokeForRoom(room)

	log.Info().Str("module", "app.hub").
		Str("endpoint", string(id)).
		Str("room", string(room)).
		Int("members", len(members)).
		Int("tokens_revoked", revoked).
		Msg("room destroyed by member")
}

func (h *Hub) chat(id domain.EndpointID, m protocol.EncryptedChat) {
	member, ok := h.rooms.MemberOf(id)
	if !ok {
		h.sendError(id, protocol.CodeNotMember, "not in a room")
		return
	}
	out := protocol.EncryptedChat{
		Sender:      id,
		DisplayName: member.DisplayName,
		Payload:     m.Payload,
	}
	h.relay.BroadcastToRoom(member.Room, out, id)
}

func (h *Hub) issueToken(id domain.EndpointID, m protocol.CreateInviteToken) {
	room, ok := h.rooms.RoomOf(id)
	if !ok || string(room) != m.RoomID {
		h.sendError(id, protocol.CodeNotMember, "invite tokens can only be issued for your own room")
		return
	}
	tid, err := h.tokens.Issue(room)
	if err != nil {
		log.Error().Str("module", "app.hub").Err(err).Str("room", string(room)).Msg("issue invite token")
		h.sendError(id, protocol.CodeTokenFailure, "could not issue invite token")
		return
	}
	h.relay.Send(id, protocol.InviteTokenCreated{TokenID: tid})
}

func (h *Hub) redeemToken(id domain.EndpointID, m protocol.RedeemInviteToken) {
	key := string(id)
	if ep, ok := h.relay.Endpoint(id); ok && ep.ClientToken() != "" {
		key = ep.ClientToken()
	}
	if !h.limiter.Allow(key) {
		log.Warn().Str("module", "app.hub").Str("endpoint", string(id)).Msg("redeem rate limited")
		h.relay.Send(id, protocol.InviteTokenInvalid{})
		return
	}

	room, ok := h.tokens.Redeem(domain.TokenID(m.TokenID))
	if !ok {
		h.relay.Send(id, protocol.InviteTokenInvalid{})
		return
	}
	h.relay.Send(id, protocol.InviteTokenValid{RoomID: room})
}

func (h *Hub) screenshot(id domain.EndpointID) {
	member, ok := h.rooms.MemberOf(id)
	if !ok {
		return
	}
	h.relay.BroadcastToRoom(member.Room, protocol.ScreenshotAlert{DisplayName: member.DisplayName}, id)
}

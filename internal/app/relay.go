package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Hush/internal/config"
	"github.com/dkeye/Hush/internal/core"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Relay routes messages to connected endpoints. Delivery is best-effort:
// an absent target means the message is dropped, never queued or retried.
// Like the registry it is owned by the Hub loop.
type Relay struct {
	endpoints map[domain.EndpointID]core.Endpoint
	rooms     core.RoomRegistry
	policy    Policy
	anyScope  bool
}

func NewRelay(rooms core.RoomRegistry, policy Policy, scope string) *Relay {
	return &Relay{
		endpoints: make(map[domain.EndpointID]core.Endpoint),
		rooms:     rooms,
		policy:    policy,
		anyScope:  scope == config.RelayScopeAny,
	}
}

func (r *Relay) Attach(ep core.Endpoint) {
	r.endpoints[ep.ID()] = ep
}

func (r *Relay) Detach(id domain.EndpointID) (core.Endpoint, bool) {
	ep, ok := r.endpoints[id]
	delete(r.endpoints, id)
	return ep, ok
}

func (r *Relay) Endpoint(id domain.EndpointID) (core.Endpoint, bool) {
	ep, ok := r.endpoints[id]
	return ep, ok
}

func (r *Relay) Len() int { return len(r.endpoints) }

// Relay forwards an opaque negotiation payload to target, tagged with the
// true sender. It reports whether the frame was handed to the target.
func (r *Relay) Relay(sender, target domain.EndpointID, typ protocol.SignalType, payload json.RawMessage) bool {
	logger := log.With().Str("module", "app.relay").
		Str("sender", string(sender)).
		Str("target", string(target)).
		Str("type", string(typ)).Logger()

	ep, ok := r.endpoints[target]
	if !ok {
		logger.Debug().Msg("target not connected, dropped")
		return false
	}
	if !r.anyScope && !r.shareRoom(sender, target) {
		logger.Debug().Msg("target outside sender's room, dropped")
		return false
	}
	return r.deliver(ep, protocol.Signal{Sender: sender, Type: typ, Payload: payload})
}

func (r *Relay) shareRoom(a, b domain.EndpointID) bool {
	ra, ok := r.rooms.RoomOf(a)
	if !ok {
		return false
	}
	rb, ok := r.rooms.RoomOf(b)
	return ok && ra == rb
}

// BroadcastToRoom sends msg to every current member of room except the
// listed endpoints and returns how many accepted it.
func (r *Relay) BroadcastToRoom(room domain.RoomID, msg protocol.Message, except ...domain.EndpointID) int {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Str("module", "app.relay").Err(err).Msg("encode broadcast")
		return 0
	}
	n := 0
	for _, m := range r.rooms.Members(room) {
		if lo.Contains(except, m.ID) {
			continue
		}
		ep, ok := r.endpoints[m.ID]
		if !ok {
			continue
		}
		if r.push(ep, frame) {
			n++
		}
	}
	return n
}

// Send delivers msg to a single endpoint.
func (r *Relay) Send(id domain.EndpointID, msg protocol.Message) bool {
	ep, ok := r.endpoints[id]
	if !ok {
		return false
	}
	return r.deliver(ep, msg)
}

func (r *Relay) deliver(ep core.Endpoint, msg protocol.Message) bool {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Str("module", "app.relay").Err(err).Str("event", string(msg.Event())).Msg("encode")
		return false
	}
	return r.push(ep, frame)
}

func (r *Relay) push(ep core.Endpoint, frame core.Frame) bool {
	err := ep.TrySend(frame)
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrSendBufferFull) {
		return false
	}
	switch r.policy.OnBackPressure(ep) {
	case Disconnect:
		log.Warn().Str("module", "app.relay").Str("endpoint", string(ep.ID())).Msg("slow consumer, disconnecting")
		ep.Close()
	default:
		log.Warn().Str("module", "app.relay").Str("endpoint", string(ep.ID())).Msg("slow consumer, frame dropped")
	}
	return false
}

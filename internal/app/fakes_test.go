package app

import (
	"testing"

	"github.com/dkeye/Hush/internal/config"
	"github.com/dkeye/Hush/internal/core"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
)

type fakeEndpoint struct {
	id     domain.EndpointID
	token  string
	frames []core.Frame
	full   bool
	closed bool
}

func newFake(id string) *fakeEndpoint {
	return &fakeEndpoint{id: domain.EndpointID(id), token: "ct-" + id}
}

func (f *fakeEndpoint) ID() domain.EndpointID { return f.id }
func (f *fakeEndpoint) ClientToken() string   { return f.token }

func (f *fakeEndpoint) TrySend(frame core.Frame) error {
	if f.closed {
		return core.ErrEndpointClosed
	}
	if f.full {
		return core.ErrSendBufferFull
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeEndpoint) Close() { f.closed = true }

// take decodes and clears everything queued so far.
func (f *fakeEndpoint) take(t *testing.T) []protocol.Message {
	t.Helper()
	out := make([]protocol.Message, 0, len(f.frames))
	for _, fr := range f.frames {
		msg, err := protocol.DecodeFromServer(fr)
		if err != nil {
			t.Fatalf("%s: decode %s: %v", f.id, fr, err)
		}
		out = append(out, msg)
	}
	f.frames = nil
	return out
}

func (f *fakeEndpoint) last(t *testing.T) protocol.Message {
	t.Helper()
	msgs := f.take(t)
	if len(msgs) == 0 {
		t.Fatalf("%s: no messages", f.id)
	}
	return msgs[len(msgs)-1]
}

type testHub struct {
	*Hub
	rooms  *RoomRegistry
	tokens *TokenStore
}

func newTestHub(scope string) *testHub {
	rooms := NewRoomRegistry()
	tokens := NewTokenStore(config.DefaultTokenTTL, nil)
	relay := NewRelay(rooms, DropPolicy{}, scope)
	hub := NewHub(rooms, tokens, relay, NewRateLimiter(3, config.DefaultRedeemInterval, nil))
	return &testHub{Hub: hub, rooms: rooms, tokens: tokens}
}

// connect registers endpoints and discards their connected frames.
func (h *testHub) connect(t *testing.T, ids ...string) []*fakeEndpoint {
	t.Helper()
	out := make([]*fakeEndpoint, 0, len(ids))
	for _, id := range ids {
		ep := newFake(id)
		h.handleRegister(ep)
		ep.take(t)
		out = append(out, ep)
	}
	return out
}

func (h *testHub) joinAll(t *testing.T, room string, eps ...*fakeEndpoint) {
	t.Helper()
	for _, ep := range eps {
		h.handleMessage(ep.id, protocol.JoinRoom{RoomID: room, DisplayName: "user-" + string(ep.id)})
	}
	for _, ep := range eps {
		ep.take(t)
	}
}

package app

import (
	"testing"

	"github.com/dkeye/Hush/internal/config"
	"github.com/dkeye/Hush/internal/protocol"
)

func TestRelayOverwritesSender(t *testing.T) {
	h := newTestHub(config.RelayScopeRoom)
	eps := h.connect(t, "a", "b")
	h.joinAll(t, "demo", eps...)

	h.handleMessage("a", protocol.Signal{Target: "b", Sender: "mallory", Type: protocol.SignalOffer, Payload: []byte(`{"sdp":"x"}`)})

	sig, ok := eps[1].last(t).(protocol.Signal)
	if !ok {
		t.Fatal("b did not get a signal")
	}
	if sig.Sender != "a" || sig.Target != "" || string(sig.Payload) != `{"sdp":"x"}` {
		t.Fatalf("unexpected relayed signal %+v", sig)
	}
}

func TestRelayDropsAbsentTarget(t *testing.T) {
	h := newTestHub(config.RelayScopeRoom)
	eps := h.connect(t, "a")
	h.joinAll(t, "demo", eps...)

	if h.relay.Relay("a", "ghost", protocol.SignalCandidate, nil) {
		t.Fatal("relay reported delivery to an absent target")
	}
	if len(eps[0].frames) != 0 {
		t.Fatal("sender got feedback for a relay miss")
	}
}

func TestRelayScope(t *testing.T) {
	for _, tc := range []struct {
		scope     string
		delivered bool
	}{
		{config.RelayScopeRoom, false},
		{config.RelayScopeAny, true},
	} {
		t.Run(tc.scope, func(t *testing.T) {
			h := newTestHub(tc.scope)
			eps := h.connect(t, "a", "b")
			h.joinAll(t, "one", eps[0])
			h.joinAll(t, "two", eps[1])

			got := h.relay.Relay("a", "b", protocol.SignalOffer, []byte(`{}`))
			if got != tc.delivered {
				t.Fatalf("delivered = %v, want %v", got, tc.delivered)
			}
		})
	}
}

func TestSlowConsumerPolicies(t *testing.T) {
	h := newTestHub(config.RelayScopeRoom)
	eps := h.connect(t, "a", "b")
	h.joinAll(t, "demo", eps...)
	eps[1].full = true

	if h.relay.Send("b", protocol.RoomDestroyed{}) {
		t.Fatal("full endpoint accepted a frame")
	}
	if eps[1].closed {
		t.Fatal("drop policy closed the endpoint")
	}

	h.relay.policy = PolicyFor(config.SlowConsumerDisconnect)
	h.relay.Send("b", protocol.RoomDestroyed{})
	if !eps[1].closed {
		t.Fatal("disconnect policy left the endpoint open")
	}
}

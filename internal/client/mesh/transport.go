// Package mesh drives one negotiation state machine per remote participant
// of a mesh call.
package mesh

import (
	"encoding/json"

	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// Transport is the negotiation-capable peer link for one remote.
type Transport interface {
	// CreateOffer creates and applies a local offer.
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the applied local answer.
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AcceptAnswer(answer webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// TransportEvents are invoked from transport goroutines.
type TransportEvents struct {
	OnCandidate func(webrtc.ICECandidateInit)
	OnTrack     func(RemoteTrack)
	OnFailed    func()
}

type TransportFactory func(remote domain.EndpointID, ev TransportEvents) (Transport, error)

type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// Signaler is the relay channel toward other participants.
type Signaler interface {
	SendSignal(target domain.EndpointID, typ protocol.SignalType, payload json.RawMessage) error
}

// View renders remote media. AddPeerMedia is called once per received
// track; RemovePeerMedia once when a peer that had media goes away.
type View interface {
	AddPeerMedia(remote domain.EndpointID, track RemoteTrack)
	RemovePeerMedia(remote domain.EndpointID)
}

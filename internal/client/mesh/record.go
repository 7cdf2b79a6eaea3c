package mesh

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/Hush/internal/domain"
	"github.com/pion/webrtc/v4"
)

type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Record is the local state for one remote participant. A closed record
// is never reopened; reconnecting takes a fresh one.
type Record struct {
	remote domain.EndpointID
	role   Role
	state  atomic.Int32

	// mu serializes transport calls for this record only.
	mu            sync.Mutex
	transport     Transport
	remoteApplied bool
	pendingCands  []webrtc.ICECandidateInit
	pendingTracks []RemoteTrack
	tracks        int

	// outMu orders locally gathered candidates after the offer/answer.
	outMu     sync.Mutex
	localSent bool
	outCands  []webrtc.ICECandidateInit
}

func newRecord(remote domain.EndpointID, role Role) *Record {
	return &Record{remote: remote, role: role}
}

func (r *Record) State() State { return State(r.state.Load()) }

func (r *Record) setState(s State) { r.state.Store(int32(s)) }

type PeerInfo struct {
	Remote domain.EndpointID
	Role   Role
	State  State
	Tracks int
}

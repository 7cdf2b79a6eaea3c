package mesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("mesh closed")

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// Orchestrator owns the arena of peer records for one call. The arena
// lock is only held for map access; transport calls happen under the
// per-record lock so peers negotiate independently.
type Orchestrator struct {
	self         domain.EndpointID
	sig          Signaler
	view         View
	newTransport TransportFactory
	logger       zerolog.Logger

	mu     sync.Mutex
	peers  map[domain.EndpointID]*Record
	closed bool
}

func New(self domain.EndpointID, sig Signaler, view View, factory TransportFactory) *Orchestrator {
	return &Orchestrator{
		self:         self,
		sig:          sig,
		view:         view,
		newTransport: factory,
		logger:       log.With().Str("module", "mesh").Str("self", string(self)).Logger(),
		peers:        make(map[domain.EndpointID]*Record),
	}
}

// Initiate starts an offer toward remote unless a record already exists.
func (o *Orchestrator) Initiate(remote domain.EndpointID) error {
	if remote == o.self {
		return nil
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if _, ok := o.peers[remote]; ok {
		o.mu.Unlock()
		return nil
	}
	rec := newRecord(remote, RoleInitiator)
	rec.mu.Lock()
	o.peers[remote] = rec
	o.mu.Unlock()
	defer rec.mu.Unlock()

	if err := o.startLocked(rec); err != nil {
		return err
	}
	offer, err := rec.transport.CreateOffer()
	if err != nil {
		return o.failLocked(rec, "create offer", err)
	}
	if err := o.sendDescription(rec, protocol.SignalOffer, offer); err != nil {
		return o.failLocked(rec, "send offer", err)
	}
	return nil
}

// HandleSignal applies one relayed negotiation message from sender.
func (o *Orchestrator) HandleSignal(sender domain.EndpointID, typ protocol.SignalType, payload json.RawMessage) error {
	if sender == o.self {
		return nil
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	rec := o.peers[sender]
	o.mu.Unlock()

	switch typ {
	case protocol.SignalOffer:
		return o.handleOffer(sender, rec, payload)
	case protocol.SignalAnswer:
		return o.handleAnswer(sender, rec, payload)
	case protocol.SignalCandidate:
		return o.handleCandidate(sender, rec, payload)
	default:
		o.logger.Warn().Str("peer", string(sender)).Str("type", string(typ)).Msg("unknown signal type")
		return nil
	}
}

func (o *Orchestrator) handleOffer(sender domain.EndpointID, existing *Record, payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := wire.Unmarshal(payload, &offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
		o.logger.Warn().Err(err).Str("peer", string(sender)).Msg("malformed offer ignored")
		return fmt.Errorf("malformed offer from %s", sender)
	}

	if existing != nil {
		// a fresh offer means the remote rebuilt its side, even if ours
		// still looks connected
		existing.mu.Lock()
		o.closeLocked(existing, "superseded by remote offer")
		existing.mu.Unlock()
	}

	rec := newRecord(sender, RoleResponder)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if cur, ok := o.peers[sender]; ok && cur != existing {
		o.mu.Unlock()
		o.logger.Debug().Str("peer", string(sender)).Msg("record replaced concurrently, offer dropped")
		return nil
	}
	rec.mu.Lock()
	o.peers[sender] = rec
	o.mu.Unlock()
	defer rec.mu.Unlock()

	if err := o.startLocked(rec); err != nil {
		return err
	}
	answer, err := rec.transport.AcceptOffer(offer)
	if err != nil {
		return o.failLocked(rec, "accept offer", err)
	}
	o.remoteAppliedLocked(rec)
	if err := o.sendDescription(rec, protocol.SignalAnswer, answer); err != nil {
		return o.failLocked(rec, "send answer", err)
	}
	return nil
}

func (o *Orchestrator) handleAnswer(sender domain.EndpointID, rec *Record, payload json.RawMessage) error {
	if rec == nil {
		o.logger.Debug().Str("peer", string(sender)).Msg("answer without record ignored")
		return nil
	}
	var answer webrtc.SessionDescription
	if err := wire.Unmarshal(payload, &answer); err != nil || answer.Type != webrtc.SDPTypeAnswer {
		o.logger.Warn().Err(err).Str("peer", string(sender)).Msg("malformed answer ignored")
		return fmt.Errorf("malformed answer from %s", sender)
	}

	rec.mu.Lock()
	if rec.State() != StateNegotiating {
		rec.mu.Unlock()
		return nil
	}
	if rec.role == RoleResponder {
		// Both sides offered and both answered. The smaller id starts over
		// as initiator; the other waits for that offer.
		restart := o.self < sender
		if restart {
			o.closeLocked(rec, "crossed offers")
		}
		rec.mu.Unlock()
		if restart {
			return o.Initiate(sender)
		}
		return nil
	}
	defer rec.mu.Unlock()
	if rec.remoteApplied {
		return nil
	}
	if err := rec.transport.AcceptAnswer(answer); err != nil {
		return o.failLocked(rec, "accept answer", err)
	}
	o.remoteAppliedLocked(rec)
	return nil
}

func (o *Orchestrator) handleCandidate(sender domain.EndpointID, rec *Record, payload json.RawMessage) error {
	raw := strings.TrimSpace(string(payload))
	if raw == "" || raw == "null" || raw == "{}" {
		return nil
	}
	var cand webrtc.ICECandidateInit
	if err := wire.Unmarshal(payload, &cand); err != nil {
		o.logger.Warn().Err(err).Str("peer", string(sender)).Msg("malformed candidate ignored")
		return nil
	}
	if cand.Candidate == "" {
		return nil
	}
	if rec == nil {
		o.logger.Debug().Str("peer", string(sender)).Msg("candidate without record dropped")
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch {
	case rec.State() == StateClosed:
	case !rec.remoteApplied:
		rec.pendingCands = append(rec.pendingCands, cand)
	default:
		if err := rec.transport.AddCandidate(cand); err != nil {
			o.logger.Warn().Err(err).Str("peer", string(sender)).Msg("add candidate")
		}
	}
	return nil
}

// Close releases the record for remote, if any. Safe to call repeatedly.
func (o *Orchestrator) Close(remote domain.EndpointID) {
	o.mu.Lock()
	rec := o.peers[remote]
	o.mu.Unlock()
	if rec != nil {
		o.closeRecord(rec, "closed locally")
	}
}

// CloseAll ends the call: every record is released before it returns and
// the orchestrator refuses further work.
func (o *Orchestrator) CloseAll() {
	o.mu.Lock()
	o.closed = true
	recs := make([]*Record, 0, len(o.peers))
	for _, rec := range o.peers {
		recs = append(recs, rec)
	}
	o.peers = make(map[domain.EndpointID]*Record)
	o.mu.Unlock()

	for _, rec := range recs {
		o.closeRecord(rec, "call ended")
	}
}

func (o *Orchestrator) StateOf(remote domain.EndpointID) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.peers[remote]
	if !ok {
		return StateIdle, false
	}
	return rec.State(), true
}

func (o *Orchestrator) Peers() []PeerInfo {
	o.mu.Lock()
	recs := make([]*Record, 0, len(o.peers))
	for _, rec := range o.peers {
		recs = append(recs, rec)
	}
	o.mu.Unlock()

	out := make([]PeerInfo, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, PeerInfo{Remote: rec.remote, Role: rec.role, State: rec.State(), Tracks: rec.tracks})
		rec.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b PeerInfo) int { return strings.Compare(string(a.Remote), string(b.Remote)) })
	return out
}

func (o *Orchestrator) startLocked(rec *Record) error {
	t, err := o.newTransport(rec.remote, TransportEvents{
		OnCandidate: func(c webrtc.ICECandidateInit) { o.sendCandidate(rec, c) },
		OnTrack:     func(t RemoteTrack) { o.trackArrived(rec, t) },
		OnFailed:    func() { go o.closeRecord(rec, "transport failed") },
	})
	if err != nil {
		return o.failLocked(rec, "create transport", err)
	}
	rec.transport = t
	rec.setState(StateNegotiating)
	o.logger.Debug().Str("peer", string(rec.remote)).Str("role", rec.role.String()).Msg("negotiating")
	return nil
}

func (o *Orchestrator) remoteAppliedLocked(rec *Record) {
	rec.remoteApplied = true
	for _, c := range rec.pendingCands {
		if err := rec.transport.AddCandidate(c); err != nil {
			o.logger.Warn().Err(err).Str("peer", string(rec.remote)).Msg("add queued candidate")
		}
	}
	rec.pendingCands = nil
	for _, t := range rec.pendingTracks {
		o.attachLocked(rec, t)
	}
	rec.pendingTracks = nil
}

func (o *Orchestrator) trackArrived(rec *Record, t RemoteTrack) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch {
	case rec.State() == StateClosed:
	case !rec.remoteApplied:
		rec.pendingTracks = append(rec.pendingTracks, t)
	default:
		o.attachLocked(rec, t)
	}
}

func (o *Orchestrator) attachLocked(rec *Record, t RemoteTrack) {
	rec.tracks++
	o.view.AddPeerMedia(rec.remote, t)
	if rec.State() != StateConnected {
		rec.setState(StateConnected)
		o.logger.Info().Str("peer", string(rec.remote)).Str("role", rec.role.String()).Msg("peer connected")
	}
}

func (o *Orchestrator) sendDescription(rec *Record, typ protocol.SignalType, desc webrtc.SessionDescription) error {
	rec.outMu.Lock()
	defer rec.outMu.Unlock()
	if err := o.signal(rec.remote, typ, desc); err != nil {
		return err
	}
	rec.localSent = true
	for _, c := range rec.outCands {
		if err := o.signal(rec.remote, protocol.SignalCandidate, c); err != nil {
			o.logger.Debug().Err(err).Str("peer", string(rec.remote)).Msg("send queued candidate")
		}
	}
	rec.outCands = nil
	return nil
}

func (o *Orchestrator) sendCandidate(rec *Record, c webrtc.ICECandidateInit) {
	if rec.State() == StateClosed {
		return
	}
	rec.outMu.Lock()
	defer rec.outMu.Unlock()
	if !rec.localSent {
		rec.outCands = append(rec.outCands, c)
		return
	}
	if err := o.signal(rec.remote, protocol.SignalCandidate, c); err != nil {
		o.logger.Debug().Err(err).Str("peer", string(rec.remote)).Msg("send candidate")
	}
}

func (o *Orchestrator) signal(remote domain.EndpointID, typ protocol.SignalType, v any) error {
	payload, err := wire.Marshal(v)
	if err != nil {
		return err
	}
	return o.sig.SendSignal(remote, typ, payload)
}

func (o *Orchestrator) failLocked(rec *Record, stage string, err error) error {
	o.logger.Warn().Err(err).Str("peer", string(rec.remote)).Str("stage", stage).Msg("negotiation failed, record discarded")
	o.closeLocked(rec, stage+" failed")
	return fmt.Errorf("%s with %s: %w", stage, rec.remote, err)
}

func (o *Orchestrator) closeRecord(rec *Record, reason string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	o.closeLocked(rec, reason)
}

func (o *Orchestrator) closeLocked(rec *Record, reason string) {
	if rec.State() == StateClosed {
		return
	}
	rec.setState(StateClosed)
	if rec.transport != nil {
		if err := rec.transport.Close(); err != nil {
			o.logger.Debug().Err(err).Str("peer", string(rec.remote)).Msg("transport close")
		}
	}
	if rec.tracks > 0 {
		o.view.RemovePeerMedia(rec.remote)
	}
	rec.pendingCands = nil
	rec.pendingTracks = nil

	o.mu.Lock()
	if o.peers[rec.remote] == rec {
		delete(o.peers, rec.remote)
	}
	o.mu.Unlock()

	o.logger.Info().Str("peer", string(rec.remote)).Str("reason", reason).Msg("peer closed")
}

package mesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/pion/webrtc/v4"
)

type sentSignal struct {
	target  domain.EndpointID
	typ     protocol.SignalType
	payload json.RawMessage
}

type fakeNet struct {
	mu   sync.Mutex
	sent []sentSignal
}

func (n *fakeNet) SendSignal(target domain.EndpointID, typ protocol.SignalType, payload json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentSignal{target, typ, payload})
	return nil
}

func (n *fakeNet) to(target domain.EndpointID) []sentSignal {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentSignal
	for _, s := range n.sent {
		if s.target == target {
			out = append(out, s)
		}
	}
	return out
}

type fakeTransport struct {
	remote domain.EndpointID
	ev     TransportEvents

	mu          sync.Mutex
	remoteSet   bool
	cands       []webrtc.ICECandidateInit
	closed      bool
	answerErr   error
	gatherEarly bool
}

func (t *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	if t.gatherEarly {
		t.ev.OnCandidate(webrtc.ICECandidateInit{Candidate: "candidate:early"})
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (t *fakeTransport) AcceptOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	t.mu.Lock()
	t.remoteSet = true
	t.mu.Unlock()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (t *fakeTransport) AcceptAnswer(webrtc.SessionDescription) error {
	if t.answerErr != nil {
		return t.answerErr
	}
	t.mu.Lock()
	t.remoteSet = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) AddCandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.remoteSet {
		return errors.New("remote description not set")
	}
	t.cands = append(t.cands, c)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) candidates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cands)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeTrack struct{ id string }

func (f fakeTrack) ID() string                { return f.id }
func (f fakeTrack) StreamID() string          { return "stream-" + f.id }
func (f fakeTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }

type fakeView struct {
	mu      sync.Mutex
	added   map[domain.EndpointID]int
	removed map[domain.EndpointID]int
}

func newFakeView() *fakeView {
	return &fakeView{added: map[domain.EndpointID]int{}, removed: map[domain.EndpointID]int{}}
}

func (v *fakeView) AddPeerMedia(remote domain.EndpointID, _ RemoteTrack) {
	v.mu.Lock()
	v.added[remote]++
	v.mu.Unlock()
}

func (v *fakeView) RemovePeerMedia(remote domain.EndpointID) {
	v.mu.Lock()
	v.removed[remote]++
	v.mu.Unlock()
}

type harness struct {
	*Orchestrator
	net  *fakeNet
	view *fakeView

	mu         sync.Mutex
	transports map[domain.EndpointID][]*fakeTransport
	configure  func(*fakeTransport)
}

func newHarness(self domain.EndpointID) *harness {
	h := &harness{net: &fakeNet{}, view: newFakeView(), transports: map[domain.EndpointID][]*fakeTransport{}}
	h.Orchestrator = New(self, h.net, h.view, func(remote domain.EndpointID, ev TransportEvents) (Transport, error) {
		t := &fakeTransport{remote: remote, ev: ev}
		h.mu.Lock()
		if h.configure != nil {
			h.configure(t)
		}
		h.transports[remote] = append(h.transports[remote], t)
		h.mu.Unlock()
		return t, nil
	})
	return h
}

// latest returns the newest transport built for remote.
func (h *harness) latest(t *testing.T, remote domain.EndpointID) *fakeTransport {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.transports[remote]
	if len(ts) == 0 {
		t.Fatalf("no transport for %s", remote)
	}
	return ts[len(ts)-1]
}

func (h *harness) expectState(t *testing.T, remote domain.EndpointID, want State) {
	t.Helper()
	got, ok := h.StateOf(remote)
	if want == StateClosed {
		if ok {
			t.Fatalf("%s still in arena with state %s", remote, got)
		}
		return
	}
	if !ok || got != want {
		t.Fatalf("%s state = %s (present %v), want %s", remote, got, ok, want)
	}
}

func sdp(typ webrtc.SDPType) json.RawMessage {
	b, _ := json.Marshal(webrtc.SessionDescription{Type: typ, SDP: typ.String()})
	return b
}

func candidate(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"candidate":"candidate:%d 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}`, n))
}

func TestJoinCallLastBecomesInitiatorAndSurvivesDeparture(t *testing.T) {
	h := newHarness("c")

	for _, remote := range []domain.EndpointID{"a", "b"} {
		if err := h.Initiate(remote); err != nil {
			t.Fatalf("initiate %s: %v", remote, err)
		}
		sent := h.net.to(remote)
		if len(sent) != 1 || sent[0].typ != protocol.SignalOffer {
			t.Fatalf("expected one offer to %s, got %+v", remote, sent)
		}
		h.expectState(t, remote, StateNegotiating)
	}

	for _, remote := range []domain.EndpointID{"a", "b"} {
		if err := h.HandleSignal(remote, protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer)); err != nil {
			t.Fatalf("answer from %s: %v", remote, err)
		}
		h.latest(t, remote).ev.OnTrack(fakeTrack{id: "audio-" + string(remote)})
		h.expectState(t, remote, StateConnected)
	}

	h.Close("b")
	h.expectState(t, "b", StateClosed)
	h.expectState(t, "a", StateConnected)
	if !h.latest(t, "b").isClosed() || h.latest(t, "a").isClosed() {
		t.Fatal("wrong transport released")
	}
	if h.view.removed["b"] != 1 || h.view.removed["a"] != 0 {
		t.Fatalf("view removals %+v", h.view.removed)
	}
}

func TestInitiateIsIdempotentAndSkipsSelf(t *testing.T) {
	h := newHarness("c")
	h.Initiate("a")
	h.Initiate("a")
	h.Initiate("c")

	if n := len(h.net.to("a")); n != 1 {
		t.Fatalf("sent %d offers to a", n)
	}
	if len(h.net.to("c")) != 0 {
		t.Fatal("offered to self")
	}
}

func TestUnknownOfferCreatesResponder(t *testing.T) {
	h := newHarness("b")

	if err := h.HandleSignal("a", protocol.SignalOffer, sdp(webrtc.SDPTypeOffer)); err != nil {
		t.Fatalf("offer: %v", err)
	}
	peers := h.Peers()
	if len(peers) != 1 || peers[0].Role != RoleResponder || peers[0].State != StateNegotiating {
		t.Fatalf("peers %+v", peers)
	}
	sent := h.net.to("a")
	if len(sent) != 1 || sent[0].typ != protocol.SignalAnswer {
		t.Fatalf("expected answer, got %+v", sent)
	}
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	h := newHarness("c")
	h.Initiate("a")
	tr := h.latest(t, "a")

	h.HandleSignal("a", protocol.SignalCandidate, candidate(1))
	h.HandleSignal("a", protocol.SignalCandidate, candidate(2))
	if tr.candidates() != 0 {
		t.Fatal("candidate applied before answer")
	}

	h.HandleSignal("a", protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer))
	if tr.candidates() != 2 {
		t.Fatalf("queued candidates applied = %d, want 2", tr.candidates())
	}

	tr.ev.OnTrack(fakeTrack{id: "v"})
	h.HandleSignal("a", protocol.SignalCandidate, candidate(3))
	if tr.candidates() != 3 {
		t.Fatal("late candidate not applied after connect")
	}
}

func TestEmptyAndOrphanCandidatesIgnored(t *testing.T) {
	h := newHarness("c")
	for _, p := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`{"candidate":""}`)} {
		if err := h.HandleSignal("a", protocol.SignalCandidate, p); err != nil {
			t.Fatalf("payload %q: %v", p, err)
		}
	}
	h.HandleSignal("ghost", protocol.SignalCandidate, candidate(1))
	if len(h.Peers()) != 0 {
		t.Fatal("candidate created a record")
	}
}

func TestAnswerWithoutRecordIgnored(t *testing.T) {
	h := newHarness("c")
	if err := h.HandleSignal("a", protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(h.Peers()) != 0 {
		t.Fatal("answer created a record")
	}
}

func TestTrackBeforeAnswerDoesNotConnect(t *testing.T) {
	h := newHarness("c")
	h.Initiate("a")
	h.latest(t, "a").ev.OnTrack(fakeTrack{id: "early"})
	h.expectState(t, "a", StateNegotiating)

	h.HandleSignal("a", protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer))
	h.expectState(t, "a", StateConnected)
	if h.view.added["a"] != 1 {
		t.Fatalf("view attached %d times", h.view.added["a"])
	}
}

func TestLocalCandidatesFollowOffer(t *testing.T) {
	h := newHarness("c")
	h.configure = func(ft *fakeTransport) { ft.gatherEarly = true }
	h.Initiate("a")

	sent := h.net.to("a")
	if len(sent) != 2 || sent[0].typ != protocol.SignalOffer || sent[1].typ != protocol.SignalCandidate {
		t.Fatalf("order %+v", sent)
	}
}

func TestNegotiationErrorClosesOnlyThatRecord(t *testing.T) {
	h := newHarness("c")
	h.configure = func(ft *fakeTransport) {
		if ft.remote == "bad" {
			ft.answerErr = errors.New("malformed sdp")
		}
	}
	h.Initiate("good")
	h.Initiate("bad")

	if err := h.HandleSignal("bad", protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer)); err == nil {
		t.Fatal("expected error from bad answer")
	}
	h.expectState(t, "bad", StateClosed)
	h.expectState(t, "good", StateNegotiating)
	if !h.latest(t, "bad").isClosed() {
		t.Fatal("failed transport not released")
	}
}

func TestOfferReplacesStaleInitiator(t *testing.T) {
	h := newHarness("c")
	h.Initiate("a")
	stale := h.latest(t, "a")

	h.HandleSignal("a", protocol.SignalOffer, sdp(webrtc.SDPTypeOffer))
	if !stale.isClosed() {
		t.Fatal("stale initiator transport kept")
	}
	peers := h.Peers()
	if len(peers) != 1 || peers[0].Role != RoleResponder {
		t.Fatalf("peers %+v", peers)
	}
}

func TestOfferFromRejoiningPeerReplacesConnectedRecord(t *testing.T) {
	b := newHarness("b")
	b.HandleSignal("a", protocol.SignalOffer, sdp(webrtc.SDPTypeOffer))
	first := b.latest(t, "a")
	first.ev.OnTrack(fakeTrack{id: "x"})
	b.expectState(t, "a", StateConnected)

	// a hung up without telling b, then joined the call again
	a := newHarness("a")
	if err := a.Initiate("b"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	offers := a.net.to("b")
	if len(offers) != 1 || offers[0].typ != protocol.SignalOffer {
		t.Fatalf("rejoin sent %+v", offers)
	}
	if err := b.HandleSignal("a", protocol.SignalOffer, offers[0].payload); err != nil {
		t.Fatalf("handle rejoin offer: %v", err)
	}

	if !first.isClosed() || b.latest(t, "a") == first {
		t.Fatal("connected record not replaced")
	}
	if b.view.removed["a"] != 1 {
		t.Fatalf("old media not removed: %+v", b.view.removed)
	}
	b.expectState(t, "a", StateNegotiating)

	var answers []sentSignal
	for _, s := range b.net.to("a") {
		if s.typ == protocol.SignalAnswer {
			answers = append(answers, s)
		}
	}
	if len(answers) != 2 {
		t.Fatalf("b answered %d offers, want 2", len(answers))
	}
	if err := a.HandleSignal("b", protocol.SignalAnswer, answers[1].payload); err != nil {
		t.Fatalf("handle answer: %v", err)
	}
	a.latest(t, "b").ev.OnTrack(fakeTrack{id: "y"})
	a.expectState(t, "b", StateConnected)
}

func TestCrossedOffersConverge(t *testing.T) {
	low, high := newHarness("a"), newHarness("b")
	low.Initiate("b")
	high.Initiate("a")

	low.HandleSignal("b", protocol.SignalOffer, sdp(webrtc.SDPTypeOffer))
	high.HandleSignal("a", protocol.SignalOffer, sdp(webrtc.SDPTypeOffer))

	high.HandleSignal("a", protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer))
	if p := high.Peers(); len(p) != 1 || p[0].Role != RoleResponder {
		t.Fatalf("larger id should keep waiting as responder: %+v", p)
	}

	before := len(low.net.to("b"))
	low.HandleSignal("b", protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer))
	sent := low.net.to("b")[before:]
	if len(sent) != 1 || sent[0].typ != protocol.SignalOffer {
		t.Fatalf("smaller id should re-offer, sent %+v", sent)
	}
	if p := low.Peers(); len(p) != 1 || p[0].Role != RoleInitiator {
		t.Fatalf("peers %+v", p)
	}
}

func TestTransportFailureCloses(t *testing.T) {
	h := newHarness("c")
	h.Initiate("a")
	h.latest(t, "a").ev.OnFailed()

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := h.StateOf("a"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("failed record not closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseIsIdempotentAndCloseAllStops(t *testing.T) {
	h := newHarness("c")
	h.Initiate("a")
	h.Initiate("b")
	h.latest(t, "a").ev.OnTrack(fakeTrack{id: "x"})

	h.Close("a")
	h.Close("a")
	h.Close("nobody")

	h.CloseAll()
	if len(h.Peers()) != 0 {
		t.Fatal("records left after CloseAll")
	}
	if !h.latest(t, "b").isClosed() {
		t.Fatal("transport left open after CloseAll")
	}
	if err := h.Initiate("d"); !errors.Is(err, ErrClosed) {
		t.Fatalf("initiate after CloseAll: %v", err)
	}
	if err := h.HandleSignal("d", protocol.SignalOffer, sdp(webrtc.SDPTypeOffer)); !errors.Is(err, ErrClosed) {
		t.Fatalf("offer after CloseAll: %v", err)
	}
	h.CloseAll()
}

func TestConcurrentPeersInterleave(t *testing.T) {
	h := newHarness("self")
	var wg sync.WaitGroup
	for i := range 16 {
		remote := domain.EndpointID(fmt.Sprintf("p%02d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				h.Initiate(remote)
				h.HandleSignal(remote, protocol.SignalCandidate, candidate(i))
				h.HandleSignal(remote, protocol.SignalAnswer, sdp(webrtc.SDPTypeAnswer))
			} else {
				h.HandleSignal(remote, protocol.SignalOffer, sdp(webrtc.SDPTypeOffer))
				h.HandleSignal(remote, protocol.SignalCandidate, candidate(i))
			}
		}()
	}
	wg.Wait()

	peers := h.Peers()
	if len(peers) != 16 {
		t.Fatalf("got %d records", len(peers))
	}
	for _, p := range peers {
		if p.State != StateNegotiating {
			t.Fatalf("%s in %s", p.Remote, p.State)
		}
		if h.latest(t, p.Remote).candidates() != 1 {
			t.Fatalf("%s candidate not applied", p.Remote)
		}
	}
}

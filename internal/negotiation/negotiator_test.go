package negotiation

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/jspiers/huddle/internal/domain"
)

// fakeEngine records every call in order so tests can assert the exact
// sequence the state machine drives.
type fakeEngine struct {
	mu        sync.Mutex
	ops       []string
	applied   []string
	failAdd   map[string]bool
	failOffer bool
	closed    bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failAdd: make(map[string]bool)}
}

func (e *fakeEngine) record(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = append(e.ops, op)
}

func (e *fakeEngine) Ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ops...)
}

func (e *fakeEngine) Applied() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.applied...)
}

func (e *fakeEngine) CreateOffer() (webrtc.SessionDescription, error) {
	e.record("CreateOffer")
	if e.failOffer {
		return webrtc.SessionDescription{}, errors.New("engine not ready")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (e *fakeEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	e.record("CreateAnswer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (e *fakeEngine) SetLocalDescription(sdp webrtc.SessionDescription) error {
	e.record("SetLocal:" + sdp.Type.String())
	return nil
}

func (e *fakeEngine) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	e.record("SetRemote:" + sdp.Type.String())
	return nil
}

func (e *fakeEngine) Rollback() error {
	e.record("Rollback")
	return nil
}

func (e *fakeEngine) AddICECandidate(c webrtc.ICECandidateInit) error {
	e.record("AddCandidate:" + c.Candidate)
	if e.failAdd[c.Candidate] {
		return errors.New("bad candidate")
	}
	e.mu.Lock()
	e.applied = append(e.applied, c.Candidate)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Close() error {
	e.record("Close")
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

type sentMsg struct {
	kind   string
	remote domain.ConnectionID
	sdp    webrtc.SessionDescription
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (s *fakeSender) SendOffer(remote domain.ConnectionID, sdp webrtc.SessionDescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{kind: "offer", remote: remote, sdp: sdp})
}

func (s *fakeSender) SendAnswer(remote domain.ConnectionID, sdp webrtc.SessionDescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{kind: "answer", remote: remote, sdp: sdp})
}

func (s *fakeSender) Sent() []sentMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMsg(nil), s.sent...)
}

func newNegotiator(queueCap int) (*Negotiator, *fakeEngine, *fakeSender) {
	eng := newFakeEngine()
	sender := &fakeSender{}
	n := New(func(remote domain.ConnectionID) (Engine, error) {
		return eng, nil
	}, sender, queueCap)
	return n, eng, sender
}

func remoteOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
}

func remoteAnswer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
}

func TestInitiateFromStable(t *testing.T) {
	n, eng, sender := newNegotiator(0)
	n.Initiate("b")

	if st, ok := n.StateOf("b"); !ok || st != StateHaveLocalOffer {
		t.Fatalf("state = %v/%v, want have-local-offer", st, ok)
	}
	want := []string{"CreateOffer", "SetLocal:offer"}
	assertOps(t, eng.Ops(), want)
	if sent := sender.Sent(); len(sent) != 1 || sent[0].kind != "offer" || sent[0].remote != "b" {
		t.Fatalf("sent = %+v, want one offer to b", sent)
	}
}

func TestInitiateWhileOfferOutstandingIsNoop(t *testing.T) {
	n, eng, sender := newNegotiator(0)
	n.Initiate("b")
	n.Initiate("b")

	if got := len(sender.Sent()); got != 1 {
		t.Errorf("sent %d offers, want 1", got)
	}
	count := 0
	for _, op := range eng.Ops() {
		if op == "CreateOffer" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("CreateOffer called %d times, want 1", count)
	}
}

func TestOfferWhenStableProducesAnswer(t *testing.T) {
	n, eng, sender := newNegotiator(0)
	n.HandleOffer("b", remoteOffer())

	if st, _ := n.StateOf("b"); st != StateStable {
		t.Errorf("state = %v, want stable after answering", st)
	}
	assertOps(t, eng.Ops(), []string{"SetRemote:offer", "CreateAnswer", "SetLocal:answer"})
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].kind != "answer" {
		t.Fatalf("sent = %+v, want one answer", sent)
	}
}

func TestGlareRollsBackAndAnswers(t *testing.T) {
	n, eng, sender := newNegotiator(0)
	n.Initiate("b")
	n.HandleOffer("b", remoteOffer())

	if st, _ := n.StateOf("b"); st != StateStable {
		t.Errorf("state = %v, want stable after glare recovery", st)
	}
	assertOps(t, eng.Ops(), []string{
		"CreateOffer", "SetLocal:offer",
		"Rollback", "SetRemote:offer", "CreateAnswer", "SetLocal:answer",
	})
	sent := sender.Sent()
	if len(sent) != 2 || sent[0].kind != "offer" || sent[1].kind != "answer" {
		t.Fatalf("sent = %+v, want offer then answer", sent)
	}
}

func TestAnswerCompletesLocalOffer(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.Initiate("b")
	n.HandleAnswer("b", remoteAnswer())

	if st, _ := n.StateOf("b"); st != StateStable {
		t.Errorf("state = %v, want stable", st)
	}
	assertOps(t, eng.Ops(), []string{"CreateOffer", "SetLocal:offer", "SetRemote:answer"})
}

func TestStaleAnswerIgnored(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.HandleAnswer("b", remoteAnswer())

	if len(eng.Ops()) != 0 {
		t.Errorf("engine touched by stale answer: %v", eng.Ops())
	}
	if st, _ := n.StateOf("b"); st != StateStable {
		t.Errorf("state = %v, want stable", st)
	}
}

func TestDuplicateAnswerIgnored(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.Initiate("b")
	n.HandleAnswer("b", remoteAnswer())
	before := len(eng.Ops())
	n.HandleAnswer("b", remoteAnswer())

	if len(eng.Ops()) != before {
		t.Errorf("duplicate answer reached the engine: %v", eng.Ops())
	}
}

func TestNoConsecutiveLocalOffersWithoutStable(t *testing.T) {
	n, _, sender := newNegotiator(0)
	n.Initiate("b")
	n.Initiate("b")
	n.HandleAnswer("b", remoteAnswer())
	n.Initiate("b")

	kinds := []string{}
	for _, m := range sender.Sent() {
		kinds = append(kinds, m.kind)
	}
	want := []string{"offer", "offer"}
	if len(kinds) != len(want) {
		t.Fatalf("sent kinds = %v, want %v", kinds, want)
	}
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: "c1"})
	n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: "c2"})

	if len(eng.Applied()) != 0 {
		t.Fatalf("candidates applied before remote description: %v", eng.Applied())
	}
	if got := n.PendingCount("b"); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	n.HandleOffer("b", remoteOffer())

	if got := n.PendingCount("b"); got != 0 {
		t.Errorf("pending after drain = %d, want 0", got)
	}
	assertOps(t, eng.Applied(), []string{"c1", "c2"})
}

func TestCandidateAppliedImmediatelyOnceDescribed(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.HandleOffer("b", remoteOffer())
	n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: "c1"})

	assertOps(t, eng.Applied(), []string{"c1"})
	if got := n.PendingCount("b"); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestDrainSkipsFailingCandidate(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	eng.failAdd["c2"] = true

	for _, c := range []string{"c1", "c2", "c3"} {
		n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: c})
	}
	n.HandleOffer("b", remoteOffer())

	assertOps(t, eng.Applied(), []string{"c1", "c3"})
	if got := n.PendingCount("b"); got != 0 {
		t.Errorf("queue not cleared after drain: %d", got)
	}
}

func TestCandidateQueueBoundedDiscardOldest(t *testing.T) {
	n, eng, _ := newNegotiator(3)
	for i := 1; i <= 5; i++ {
		n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: fmt.Sprintf("c%d", i)})
	}
	if got := n.PendingCount("b"); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}
	n.HandleOffer("b", remoteOffer())
	assertOps(t, eng.Applied(), []string{"c3", "c4", "c5"})
}

func TestRemoteLeftDestroysLink(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.Initiate("b")
	n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: "c1"})
	n.HandleRemoteLeft("b")

	if _, ok := n.StateOf("b"); ok {
		t.Error("link still present after remote left")
	}
	if !containsOp(eng.Ops(), "Close") {
		t.Error("engine not closed on remote left")
	}
	// A later candidate starts a fresh link with an empty queue.
	n.HandleCandidate("b", webrtc.ICECandidateInit{Candidate: "c9"})
	if got := n.PendingCount("b"); got != 1 {
		t.Errorf("fresh link pending = %d, want 1", got)
	}
}

func TestRemoteLeftUnknownIsNoop(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.HandleRemoteLeft("ghost")
	if len(eng.Ops()) != 0 {
		t.Errorf("engine touched: %v", eng.Ops())
	}
}

func TestEngineFailureLeavesStateClean(t *testing.T) {
	n, eng, sender := newNegotiator(0)
	eng.failOffer = true
	n.Initiate("b")

	if st, _ := n.StateOf("b"); st != StateStable {
		t.Errorf("state = %v, want stable after failed offer", st)
	}
	if len(sender.Sent()) != 0 {
		t.Errorf("nothing should be sent on engine failure, got %+v", sender.Sent())
	}

	// Recovery: the next initiate succeeds.
	eng.failOffer = false
	n.Initiate("b")
	if st, _ := n.StateOf("b"); st != StateHaveLocalOffer {
		t.Errorf("state = %v, want have-local-offer after retry", st)
	}
}

func TestCloseAll(t *testing.T) {
	n, eng, _ := newNegotiator(0)
	n.Initiate("b")
	n.Initiate("c")
	n.CloseAll()

	if _, ok := n.StateOf("b"); ok {
		t.Error("link b survived CloseAll")
	}
	if _, ok := n.StateOf("c"); ok {
		t.Error("link c survived CloseAll")
	}
	if !containsOp(eng.Ops(), "Close") {
		t.Error("engines not closed")
	}
}

func TestDistinctRemotesIndependent(t *testing.T) {
	sender := &fakeSender{}
	engines := map[domain.ConnectionID]*fakeEngine{}
	var mu sync.Mutex
	n := New(func(remote domain.ConnectionID) (Engine, error) {
		e := newFakeEngine()
		mu.Lock()
		engines[remote] = e
		mu.Unlock()
		return e, nil
	}, sender, 0)

	n.Initiate("b")
	n.HandleOffer("c", remoteOffer())

	if st, _ := n.StateOf("b"); st != StateHaveLocalOffer {
		t.Errorf("b state = %v, want have-local-offer", st)
	}
	if st, _ := n.StateOf("c"); st != StateStable {
		t.Errorf("c state = %v, want stable", st)
	}
}

func assertOps(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func containsOp(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

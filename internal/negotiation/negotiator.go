package negotiation

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
)

// DefaultQueueCap bounds the per-remote candidate queue. A remote that
// never completes its description would otherwise grow it without limit.
const DefaultQueueCap = 64

// peerLink is the negotiation state toward one remote. All transitions
// for a link are serialized by its mutex; distinct remotes proceed
// concurrently.
type peerLink struct {
	mu            sync.Mutex
	remote        domain.ConnectionID
	engine        Engine
	state         State
	remoteDescSet bool
	pending       []webrtc.ICECandidateInit
}

// Negotiator runs one peerLink per remote the local participant talks to.
type Negotiator struct {
	newEngine EngineFactory
	sender    Sender
	queueCap  int

	mu    sync.Mutex
	links map[domain.ConnectionID]*peerLink
}

func New(factory EngineFactory, sender Sender, queueCap int) *Negotiator {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Negotiator{
		newEngine: factory,
		sender:    sender,
		queueCap:  queueCap,
		links:     make(map[domain.ConnectionID]*peerLink),
	}
}

// link returns the peerLink for remote, creating it lazily. The engine
// is not built here; candidates may queue before any offer intent.
func (n *Negotiator) link(remote domain.ConnectionID) *peerLink {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.links[remote]
	if !ok {
		l = &peerLink{remote: remote, state: StateStable}
		n.links[remote] = l
	}
	return l
}

// ensureEngine builds the engine on first offer/answer intent.
// Caller holds l.mu.
func (n *Negotiator) ensureEngine(l *peerLink) error {
	if l.engine != nil {
		return nil
	}
	eng, err := n.newEngine(l.remote)
	if err != nil {
		return err
	}
	l.engine = eng
	return nil
}

// Initiate creates and sends an offer toward remote. Legal only from
// stable; anything else is a warn-and-drop, never a crash.
func (n *Negotiator) Initiate(remote domain.ConnectionID) {
	l := n.link(remote)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateStable {
		log.Warn().Str("module", "negotiation").Str("remote", string(remote)).Stringer("state", l.state).Msg("skip offer, not stable")
		return
	}
	if err := n.ensureEngine(l); err != nil {
		log.Error().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("engine create failed")
		return
	}
	offer, err := l.engine.CreateOffer()
	if err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("create offer failed")
		return
	}
	if err := l.engine.SetLocalDescription(offer); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("set local offer failed")
		return
	}
	l.state = StateHaveLocalOffer
	n.sender.SendOffer(remote, offer)
	log.Debug().Str("module", "negotiation").Str("remote", string(remote)).Msg("offer sent")
}

// HandleOffer applies a remote offer. From stable it answers directly;
// during have-local-offer it is glare: roll the local offer back and
// accept the remote one in a combined step, then answer.
func (n *Negotiator) HandleOffer(remote domain.ConnectionID, offer webrtc.SessionDescription) {
	l := n.link(remote)
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateStable:
		// fall through to accept
	case StateHaveLocalOffer:
		log.Warn().Str("module", "negotiation").Str("remote", string(remote)).Msg("glare, rolling back local offer")
		if err := l.engine.Rollback(); err != nil {
			log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("rollback failed")
			return
		}
		l.state = StateStable
	default:
		log.Warn().Str("module", "negotiation").Str("remote", string(remote)).Stringer("state", l.state).Msg("ignoring offer")
		return
	}

	if err := n.ensureEngine(l); err != nil {
		log.Error().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("engine create failed")
		return
	}
	if err := l.engine.SetRemoteDescription(offer); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("set remote offer failed")
		return
	}
	l.state = StateHaveRemoteOffer
	l.remoteDescSet = true

	answer, err := l.engine.CreateAnswer()
	if err != nil {
		// Back to stable so a re-offer from the remote can retry.
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("create answer failed")
		l.state = StateStable
		return
	}
	if err := l.engine.SetLocalDescription(answer); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("set local answer failed")
		l.state = StateStable
		return
	}

	// The answer completes the exchange.
	l.state = StateStable
	n.sender.SendAnswer(remote, answer)
	n.drainLocked(l)
}

// HandleAnswer consumes an answer to our outstanding offer. Stale or
// duplicate answers are dropped.
func (n *Negotiator) HandleAnswer(remote domain.ConnectionID, answer webrtc.SessionDescription) {
	l := n.link(remote)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateHaveLocalOffer {
		log.Warn().Str("module", "negotiation").Str("remote", string(remote)).Stringer("state", l.state).Msg("ignoring answer")
		return
	}
	if err := l.engine.SetRemoteDescription(answer); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("set remote answer failed")
		return
	}
	l.remoteDescSet = true
	l.state = StateStable
	n.drainLocked(l)
}

// HandleCandidate applies a candidate immediately once the remote
// description is set, and queues it FIFO until then.
func (n *Negotiator) HandleCandidate(remote domain.ConnectionID, cand webrtc.ICECandidateInit) {
	l := n.link(remote)
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.remoteDescSet {
		if len(l.pending) >= n.queueCap {
			// Discard-oldest keeps the most recent paths.
			l.pending = l.pending[1:]
			log.Warn().Str("module", "negotiation").Str("remote", string(remote)).Int("cap", n.queueCap).Msg("candidate queue full, dropped oldest")
		}
		l.pending = append(l.pending, cand)
		return
	}
	if err := l.engine.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("add candidate failed")
	}
}

// drainLocked replays queued candidates strictly in arrival order, then
// clears the queue. A candidate that fails to apply is skipped; the
// drain continues. Caller holds l.mu.
func (n *Negotiator) drainLocked(l *peerLink) {
	for _, cand := range l.pending {
		if err := l.engine.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(l.remote)).Msg("drained candidate failed, skipped")
		}
	}
	l.pending = nil
}

// HandleRemoteLeft discards the link and its queue and releases the
// engine resources for that remote.
func (n *Negotiator) HandleRemoteLeft(remote domain.ConnectionID) {
	n.mu.Lock()
	l, ok := n.links[remote]
	if ok {
		delete(n.links, remote)
	}
	n.mu.Unlock()
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
	if l.engine != nil {
		if err := l.engine.Close(); err != nil {
			log.Warn().Err(err).Str("module", "negotiation").Str("remote", string(remote)).Msg("engine close failed")
		}
		l.engine = nil
	}
	log.Info().Str("module", "negotiation").Str("remote", string(remote)).Msg("peer link destroyed")
}

// CloseAll tears down every link, used on local leave or shutdown.
func (n *Negotiator) CloseAll() {
	n.mu.Lock()
	remotes := make([]domain.ConnectionID, 0, len(n.links))
	for remote := range n.links {
		remotes = append(remotes, remote)
	}
	n.mu.Unlock()
	for _, remote := range remotes {
		n.HandleRemoteLeft(remote)
	}
}

// StateOf reports the current signaling state toward remote.
func (n *Negotiator) StateOf(remote domain.ConnectionID) (State, bool) {
	n.mu.Lock()
	l, ok := n.links[remote]
	n.mu.Unlock()
	if !ok {
		return StateStable, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, true
}

// PendingCount reports the queued candidate count toward remote.
func (n *Negotiator) PendingCount(remote domain.ConnectionID) int {
	n.mu.Lock()
	l, ok := n.links[remote]
	n.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

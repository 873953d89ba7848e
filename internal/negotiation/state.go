// Package negotiation decides, per remote peer, when the local side may
// offer, must answer, must roll back, or has to queue connectivity
// candidates. It is a policy layer in front of the peer-connection
// engine: callers dispatch events and never branch on engine state.
package negotiation

import (
	"github.com/pion/webrtc/v4"

	"github.com/jspiers/huddle/internal/domain"
)

// State is the local signaling phase toward one remote.
type State int

const (
	StateStable State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return "unknown"
	}
}

// Engine is the local peer-connection engine the state machine drives.
// Owned by the negotiator; closed when the remote goes away.
type Engine interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback reverts a just-set local description to none so a
	// conflicting remote offer can be applied instead.
	Rollback() error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// EngineFactory builds one engine per remote peer, lazily.
type EngineFactory func(remote domain.ConnectionID) (Engine, error)

// Sender carries locally created descriptions to the remote over the
// signaling channel. Fire-and-forget.
type Sender interface {
	SendOffer(remote domain.ConnectionID, sdp webrtc.SessionDescription)
	SendAnswer(remote domain.ConnectionID, sdp webrtc.SessionDescription)
}

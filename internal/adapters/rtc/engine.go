// Package rtc implements the negotiation engine contract on top of a
// real pion PeerConnection.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/config"
	"github.com/jspiers/huddle/internal/domain"
	"github.com/jspiers/huddle/internal/negotiation"
)

// ConfigFromICEServers maps the config descriptors into a pion
// configuration. The server only passes these addresses through; the
// engine is the one that dials them.
func ConfigFromICEServers(servers []config.ICEServer) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return cfg
}

// Engine drives one PeerConnection toward one remote.
type Engine struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnectionID
}

var _ negotiation.Engine = (*Engine)(nil)

// NewEngine builds the peer connection and wires the candidate callback
// so locally gathered candidates reach the signaling channel.
func NewEngine(cfg webrtc.Configuration, remote domain.ConnectionID, onCandidate func(webrtc.ICECandidateInit)) (*Engine, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	e := &Engine{pc: pc, remote: remote}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && onCandidate != nil {
			onCandidate(cand.ToJSON())
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("peer_state", s.String()).Msg("peer state")
	})

	return e, nil
}

func (e *Engine) CreateOffer() (webrtc.SessionDescription, error) {
	return e.pc.CreateOffer(nil)
}

func (e *Engine) CreateAnswer() (webrtc.SessionDescription, error) {
	return e.pc.CreateAnswer(nil)
}

func (e *Engine) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return e.pc.SetLocalDescription(sdp)
}

func (e *Engine) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(sdp)
}

// Rollback reverts the pending local description.
func (e *Engine) Rollback() error {
	return e.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (e *Engine) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(cand)
}

func (e *Engine) Close() error {
	return e.pc.Close()
}

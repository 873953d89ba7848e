package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
)

// The offer/answer/candidate handlers are pure routing: parse the
// target, hand the opaque payload to the relay. No SDP inspection here.

func (ctl *Controller) handleOffer(connID domain.ConnectionID, data []byte) {
	var p struct {
		Type           string          `json:"type"`
		TargetSocketID string          `json:"targetSocketId"`
		Offer          json.RawMessage `json:"offer"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetSocketID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}
	ctl.Relay.RouteOffer(connID, domain.ConnectionID(p.TargetSocketID), p.Offer)
}

func (ctl *Controller) handleAnswer(connID domain.ConnectionID, data []byte) {
	var p struct {
		Type           string          `json:"type"`
		TargetSocketID string          `json:"targetSocketId"`
		Answer         json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetSocketID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}
	ctl.Relay.RouteAnswer(connID, domain.ConnectionID(p.TargetSocketID), p.Answer)
}

func (ctl *Controller) handleCandidate(connID domain.ConnectionID, data []byte) {
	var p struct {
		Type           string          `json:"type"`
		TargetSocketID string          `json:"targetSocketId"`
		Candidate      json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetSocketID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	ctl.Relay.RouteCandidate(connID, domain.ConnectionID(p.TargetSocketID), p.Candidate)
}

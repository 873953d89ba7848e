package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
)

func (ctl *Controller) handleMediaStateChange(connID domain.ConnectionID, data []byte) {
	var p struct {
		Type string `json:"type"`
		domain.MediaStatePatch
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad media-state payload")
		return
	}
	ctl.Relay.BroadcastMediaState(connID, p.MediaStatePatch)
}

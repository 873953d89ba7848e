package signal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
)

const fallbackDisplayName = "Guest User"

type participantEntry struct {
	SocketID domain.ConnectionID `json:"socketId"`
	UserData domain.Participant  `json:"userData"`
}

type roomInfo struct {
	Name             string    `json:"name"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (ctl *Controller) handleJoinRoom(connID domain.ConnectionID, c *Conn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		UserData struct {
			Name     string `json:"name"`
			RoomName string `json:"roomName"`
		} `json:"userData"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(c, map[string]any{"type": "room-error", "message": "bad payload"})
		return
	}

	if ctl.joinLimit != nil && !ctl.joinLimit.Allow(connID) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).Msg("join rate limited")
		ctl.sendJSON(c, map[string]any{"type": "room-error", "message": "too many join attempts"})
		return
	}

	name := p.UserData.Name
	if name == "" {
		name = fallbackDisplayName
	}

	// A connection already in a room leaves it first; a participant
	// belongs to at most one room.
	ctl.onDisconnect(connID)

	res, err := ctl.Dir.Join(domain.RoomID(p.RoomID), connID, name, p.UserData.RoomName)
	if err != nil {
		msg := "internal error"
		if errors.Is(err, domain.ErrRoomFull) {
			msg = domain.ErrRoomFull.Error()
		}
		ctl.sendJSON(c, map[string]any{"type": "room-error", "message": msg})
		return
	}

	participants := make([]participantEntry, 0, len(res.Others))
	for _, other := range res.Others {
		participants = append(participants, participantEntry{SocketID: other.ConnectionID, UserData: other})
	}

	ctl.sendJSON(c, struct {
		Type         string             `json:"type"`
		RoomID       domain.RoomID      `json:"roomId"`
		Participants []participantEntry `json:"participants"`
		RoomInfo     roomInfo           `json:"roomInfo"`
	}{
		Type:         "room-joined",
		RoomID:       res.Room.ID,
		Participants: participants,
		RoomInfo: roomInfo{
			Name:             res.Room.DisplayName,
			ParticipantCount: res.Count,
			CreatedAt:        res.Room.CreatedAt,
		},
	})

	ctl.Relay.PresenceJoined(res)
}

// handleLeaveRoom is the explicit leave: same flow as disconnect plus a
// room-left ack, while the transport connection stays open.
func (ctl *Controller) handleLeaveRoom(connID domain.ConnectionID, c *Conn) {
	ctl.onDisconnect(connID)
	ctl.sendJSON(c, map[string]any{"type": "room-left"})
}

// onDisconnect runs the leave flow. Safe to call more than once for the
// same connection: the second call finds nothing to remove and emits
// nothing.
func (ctl *Controller) onDisconnect(connID domain.ConnectionID) {
	res, ok := ctl.Dir.Leave(connID)
	if !ok {
		return
	}
	ctl.Relay.PresenceLeft(connID, res)
}

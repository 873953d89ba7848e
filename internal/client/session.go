package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
	"github.com/jspiers/huddle/internal/negotiation"
)

// Session runs the negotiation layer for one joined room: it offers to
// every member that was already there when we joined, and only reacts
// to offers from members that join after us.
type Session struct {
	client *Client
	neg    *negotiation.Negotiator

	selfID domain.ConnectionID
	roomID domain.RoomID
}

// NewSession wires a negotiator whose engines send their gathered
// candidates back through this session's signaling connection.
func NewSession(c *Client, factory func(remote domain.ConnectionID, onCandidate func(webrtc.ICECandidateInit)) (negotiation.Engine, error), queueCap int) *Session {
	s := &Session{client: c}
	s.neg = negotiation.New(func(remote domain.ConnectionID) (negotiation.Engine, error) {
		return factory(remote, func(cand webrtc.ICECandidateInit) {
			s.sendCandidate(remote, cand)
		})
	}, s, queueCap)
	return s
}

// Negotiator exposes the state machine, mainly for introspection.
func (s *Session) Negotiator() *negotiation.Negotiator { return s.neg }

// SendOffer implements negotiation.Sender.
func (s *Session) SendOffer(remote domain.ConnectionID, sdp webrtc.SessionDescription) {
	s.client.Send(struct {
		Type           string                    `json:"type"`
		TargetSocketID domain.ConnectionID       `json:"targetSocketId"`
		Offer          webrtc.SessionDescription `json:"offer"`
	}{Type: "offer", TargetSocketID: remote, Offer: sdp})
}

// SendAnswer implements negotiation.Sender.
func (s *Session) SendAnswer(remote domain.ConnectionID, sdp webrtc.SessionDescription) {
	s.client.Send(struct {
		Type           string                    `json:"type"`
		TargetSocketID domain.ConnectionID       `json:"targetSocketId"`
		Answer         webrtc.SessionDescription `json:"answer"`
	}{Type: "answer", TargetSocketID: remote, Answer: sdp})
}

func (s *Session) sendCandidate(remote domain.ConnectionID, cand webrtc.ICECandidateInit) {
	s.client.Send(struct {
		Type           string                  `json:"type"`
		TargetSocketID domain.ConnectionID     `json:"targetSocketId"`
		Candidate      webrtc.ICECandidateInit `json:"candidate"`
	}{Type: "ice-candidate", TargetSocketID: remote, Candidate: cand})
}

// SetMedia broadcasts a media-state patch to the room.
func (s *Session) SetMedia(patch domain.MediaStatePatch) {
	s.client.Send(struct {
		Type string `json:"type"`
		domain.MediaStatePatch
	}{Type: "media-state-change", MediaStatePatch: patch})
}

// Leave asks the server to remove us from the room; the connection
// stays open until Close.
func (s *Session) Leave() {
	s.client.Send(map[string]any{"type": "leave-room"})
}

// Run joins the room and processes server events until the context is
// canceled, the room is left, or the connection drops.
func (s *Session) Run(ctx context.Context, roomID domain.RoomID, name string) error {
	s.roomID = roomID
	s.client.Send(struct {
		Type     string        `json:"type"`
		RoomID   domain.RoomID `json:"roomId"`
		UserData struct {
			Name     string `json:"name"`
			RoomName string `json:"roomName"`
		} `json:"userData"`
	}{
		Type:   "join-room",
		RoomID: roomID,
		UserData: struct {
			Name     string `json:"name"`
			RoomName string `json:"roomName"`
		}{Name: name, RoomName: string(roomID)},
	})

	defer s.neg.CloseAll()

	for {
		select {
		case <-ctx.Done():
			s.Leave()
			return ctx.Err()
		case data, ok := <-s.client.Incoming():
			if !ok {
				return errors.New("signaling connection closed")
			}
			done, err := s.handle(data)
			if err != nil || done {
				return err
			}
		}
	}
}

func (s *Session) handle(data []byte) (done bool, err error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("bad json from server")
		return false, nil
	}

	switch env.Type {
	case "connected":
		var p struct {
			SocketID domain.ConnectionID `json:"socketId"`
		}
		if err := json.Unmarshal(data, &p); err == nil {
			s.selfID = p.SocketID
		}

	case "room-joined":
		var p struct {
			Participants []struct {
				SocketID domain.ConnectionID `json:"socketId"`
			} `json:"participants"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad room-joined")
			return false, nil
		}
		// We are the newcomer: we offer first to each existing member.
		for _, existing := range p.Participants {
			s.neg.Initiate(existing.SocketID)
		}

	case "room-error":
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &p)
		return true, fmt.Errorf("room error: %s", p.Message)

	case "user-joined":
		// The newcomer offers to us; nothing to initiate here.

	case "offer":
		var p struct {
			FromSocketID domain.ConnectionID       `json:"fromSocketId"`
			Offer        webrtc.SessionDescription `json:"offer"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad offer")
			return false, nil
		}
		s.neg.HandleOffer(p.FromSocketID, p.Offer)

	case "answer":
		var p struct {
			FromSocketID domain.ConnectionID       `json:"fromSocketId"`
			Answer       webrtc.SessionDescription `json:"answer"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad answer")
			return false, nil
		}
		s.neg.HandleAnswer(p.FromSocketID, p.Answer)

	case "ice-candidate":
		var p struct {
			FromSocketID domain.ConnectionID     `json:"fromSocketId"`
			Candidate    webrtc.ICECandidateInit `json:"candidate"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad candidate")
			return false, nil
		}
		s.neg.HandleCandidate(p.FromSocketID, p.Candidate)

	case "user-left":
		var p struct {
			SocketID domain.ConnectionID `json:"socketId"`
		}
		if err := json.Unmarshal(data, &p); err == nil {
			s.neg.HandleRemoteLeft(p.SocketID)
		}

	case "participant-media-change", "participant-screen-share":
		// UI concerns, outside this layer.

	case "room-left":
		return true, nil

	default:
		log.Warn().Str("module", "client").Str("type", env.Type).Msg("unknown server event")
	}
	return false, nil
}

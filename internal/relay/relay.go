// Package relay forwards signaling traffic point-to-point and fans
// presence out to rooms. It enriches messages with sender identity but
// never interprets the payloads it carries.
package relay

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/directory"
	"github.com/jspiers/huddle/internal/domain"
)

// Transport delivers one message to one connection. Unknown targets
// must be a silent drop: the relay has no addressable destination.
type Transport interface {
	Send(target domain.ConnectionID, v any) error
}

type Relay struct {
	dir       *directory.Store
	transport Transport
}

func New(dir *directory.Store, t Transport) *Relay {
	return &Relay{dir: dir, transport: t}
}

// Outbound wire events. Field names are the protocol, do not rename.

type OfferEvent struct {
	Type         string              `json:"type"`
	FromSocketID domain.ConnectionID `json:"fromSocketId"`
	FromUserData domain.Participant  `json:"fromUserData"`
	Offer        json.RawMessage     `json:"offer"`
}

type AnswerEvent struct {
	Type         string              `json:"type"`
	FromSocketID domain.ConnectionID `json:"fromSocketId"`
	FromUserData domain.Participant  `json:"fromUserData"`
	Answer       json.RawMessage     `json:"answer"`
}

type CandidateEvent struct {
	Type         string              `json:"type"`
	FromSocketID domain.ConnectionID `json:"fromSocketId"`
	Candidate    json.RawMessage     `json:"candidate"`
}

type UserJoinedEvent struct {
	Type             string              `json:"type"`
	SocketID         domain.ConnectionID `json:"socketId"`
	UserData         domain.Participant  `json:"userData"`
	ParticipantCount int                 `json:"participantCount"`
}

type UserLeftEvent struct {
	Type             string              `json:"type"`
	SocketID         domain.ConnectionID `json:"socketId"`
	ParticipantCount int                 `json:"participantCount"`
}

type MediaChangeEvent struct {
	Type       string              `json:"type"`
	SocketID   domain.ConnectionID `json:"socketId"`
	MediaState domain.MediaState   `json:"mediaState"`
}

type ScreenShareEvent struct {
	Type            string              `json:"type"`
	SocketID        domain.ConnectionID `json:"socketId"`
	IsScreenSharing bool                `json:"isScreenSharing"`
}

// RouteOffer forwards an offer to target, stamped with the sender's
// identity. A sender the directory does not know (already left) is a
// silent no-op.
func (r *Relay) RouteOffer(sender, target domain.ConnectionID, offer json.RawMessage) {
	p, ok := r.dir.Lookup(sender)
	if !ok {
		log.Warn().Str("module", "relay").Str("sender", string(sender)).Msg("offer from unknown sender, dropped")
		return
	}
	r.send(target, OfferEvent{Type: "offer", FromSocketID: sender, FromUserData: p, Offer: offer})
}

func (r *Relay) RouteAnswer(sender, target domain.ConnectionID, answer json.RawMessage) {
	p, ok := r.dir.Lookup(sender)
	if !ok {
		log.Warn().Str("module", "relay").Str("sender", string(sender)).Msg("answer from unknown sender, dropped")
		return
	}
	r.send(target, AnswerEvent{Type: "answer", FromSocketID: sender, FromUserData: p, Answer: answer})
}

func (r *Relay) RouteCandidate(sender, target domain.ConnectionID, candidate json.RawMessage) {
	if _, ok := r.dir.Lookup(sender); !ok {
		log.Warn().Str("module", "relay").Str("sender", string(sender)).Msg("candidate from unknown sender, dropped")
		return
	}
	r.send(target, CandidateEvent{Type: "ice-candidate", FromSocketID: sender, Candidate: candidate})
}

// PresenceJoined tells every existing member about the new joiner.
// The joiner itself is answered separately with room-joined.
func (r *Relay) PresenceJoined(res *directory.JoinResult) {
	ev := UserJoinedEvent{
		Type:             "user-joined",
		SocketID:         res.Joiner.ConnectionID,
		UserData:         res.Joiner,
		ParticipantCount: res.Count,
	}
	for _, other := range res.Others {
		r.send(other.ConnectionID, ev)
	}
}

// PresenceLeft tells the remaining members, with the updated count.
func (r *Relay) PresenceLeft(left domain.ConnectionID, res *directory.LeaveResult) {
	ev := UserLeftEvent{Type: "user-left", SocketID: left, ParticipantCount: res.Count}
	for _, other := range res.Others {
		r.send(other, ev)
	}
}

// BroadcastMediaState merges the patch into the sender's state and fans
// the merged state out to the rest of the room.
func (r *Relay) BroadcastMediaState(sender domain.ConnectionID, patch domain.MediaStatePatch) {
	state, others, ok := r.dir.ApplyMediaPatch(sender, patch)
	if !ok {
		return
	}
	ev := MediaChangeEvent{Type: "participant-media-change", SocketID: sender, MediaState: state}
	for _, other := range others {
		r.send(other, ev)
	}
}

// BroadcastScreenShare flips the screen-share flag and fans it out.
func (r *Relay) BroadcastScreenShare(sender domain.ConnectionID, sharing bool) {
	others, ok := r.dir.SetScreenShare(sender, sharing)
	if !ok {
		return
	}
	ev := ScreenShareEvent{Type: "participant-screen-share", SocketID: sender, IsScreenSharing: sharing}
	for _, other := range others {
		r.send(other, ev)
	}
}

func (r *Relay) send(target domain.ConnectionID, v any) {
	if err := r.transport.Send(target, v); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("target", string(target)).Msg("send dropped")
	}
}

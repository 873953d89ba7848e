// Package directory owns the room and participant state. All membership
// mutation is funneled through Join/Leave so capacity and room lifecycle
// stay linearizable; callers never see the raw containers.
package directory

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
)

type roomEntry struct {
	meta    *domain.Room
	members map[domain.ConnectionID]struct{}
}

// Store is the authoritative room directory plus participant registry.
// One mutex guards both maps: a participant must never reference a room
// that no longer lists it, and the two are always updated together.
type Store struct {
	maxParticipants int

	mu           sync.RWMutex
	rooms        map[domain.RoomID]*roomEntry
	participants map[domain.ConnectionID]*domain.Participant
}

func New(maxParticipants int) *Store {
	if maxParticipants <= 0 {
		maxParticipants = domain.DefaultMaxParticipants
	}
	return &Store{
		maxParticipants: maxParticipants,
		rooms:           make(map[domain.RoomID]*roomEntry),
		participants:    make(map[domain.ConnectionID]*domain.Participant),
	}
}

// JoinResult is everything the caller needs to answer the joiner and to
// fan presence out, captured inside the join critical section.
type JoinResult struct {
	Room   domain.Room
	Joiner domain.Participant
	Others []domain.Participant
	Count  int
}

// Join admits connID into roomID, creating the room on first join.
// Fails with domain.ErrRoomFull without mutating anything when the room
// is at capacity. The returned Others list lets the joiner take the
// initiator role toward each existing member.
func (s *Store) Join(roomID domain.RoomID, connID domain.ConnectionID, name, roomName string) (*JoinResult, error) {
	p, err := domain.NewParticipant(connID, roomID, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[roomID]
	if !ok {
		entry = &roomEntry{
			meta:    domain.NewRoom(roomID, roomName, s.maxParticipants),
			members: make(map[domain.ConnectionID]struct{}),
		}
		s.rooms[roomID] = entry
		log.Info().Str("module", "directory").Str("room", string(roomID)).Msg("room created")
	}

	if len(entry.members) >= entry.meta.MaxParticipants {
		log.Warn().Str("module", "directory").Str("room", string(roomID)).Str("conn", string(connID)).Msg("join rejected, room full")
		return nil, domain.ErrRoomFull
	}

	others := make([]domain.Participant, 0, len(entry.members))
	for id := range entry.members {
		others = append(others, *s.participants[id])
	}

	entry.members[connID] = struct{}{}
	s.participants[connID] = p

	log.Info().Str("module", "directory").Str("room", string(roomID)).Str("conn", string(connID)).Int("count", len(entry.members)).Msg("participant joined")
	return &JoinResult{
		Room:   *entry.meta,
		Joiner: *p,
		Others: others,
		Count:  len(entry.members),
	}, nil
}

// LeaveResult carries the fan-out targets and the post-leave count.
type LeaveResult struct {
	RoomID  domain.RoomID
	Others  []domain.ConnectionID
	Count   int
	Deleted bool
}

// Leave is idempotent: removing a connection that was never joined (or
// already left) is a no-op and returns ok=false so callers do not emit
// a duplicate user-left.
func (s *Store) Leave(connID domain.ConnectionID) (*LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[connID]
	if !ok {
		return nil, false
	}
	delete(s.participants, connID)

	entry, ok := s.rooms[p.RoomID]
	if !ok {
		return nil, false
	}
	delete(entry.members, connID)

	res := &LeaveResult{
		RoomID: p.RoomID,
		Others: make([]domain.ConnectionID, 0, len(entry.members)),
		Count:  len(entry.members),
	}
	for id := range entry.members {
		res.Others = append(res.Others, id)
	}

	if len(entry.members) == 0 {
		delete(s.rooms, p.RoomID)
		res.Deleted = true
		log.Info().Str("module", "directory").Str("room", string(p.RoomID)).Msg("room deleted (empty)")
	}
	log.Info().Str("module", "directory").Str("room", string(p.RoomID)).Str("conn", string(connID)).Int("count", res.Count).Msg("participant left")
	return res, true
}

// Lookup returns a copy of the participant record, or absent.
func (s *Store) Lookup(connID domain.ConnectionID) (domain.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Roommates lists every other member of connID's room.
func (s *Store) Roommates(connID domain.ConnectionID) []domain.ConnectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[connID]
	if !ok {
		return nil
	}
	entry, ok := s.rooms[p.RoomID]
	if !ok {
		return nil
	}
	out := make([]domain.ConnectionID, 0, len(entry.members))
	for id := range entry.members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// ApplyMediaPatch merges the patch into the sender's media state and
// returns the merged state plus the fan-out targets.
func (s *Store) ApplyMediaPatch(connID domain.ConnectionID, patch domain.MediaStatePatch) (domain.MediaState, []domain.ConnectionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[connID]
	if !ok {
		return domain.MediaState{}, nil, false
	}
	patch.Apply(&p.Media)
	return p.Media, s.roommatesLocked(p), true
}

// SetScreenShare flips the single screen-share flag.
func (s *Store) SetScreenShare(connID domain.ConnectionID, sharing bool) ([]domain.ConnectionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[connID]
	if !ok {
		return nil, false
	}
	p.Media.ScreenSharing = sharing
	return s.roommatesLocked(p), true
}

func (s *Store) roommatesLocked(p *domain.Participant) []domain.ConnectionID {
	entry, ok := s.rooms[p.RoomID]
	if !ok {
		return nil
	}
	out := make([]domain.ConnectionID, 0, len(entry.members))
	for id := range entry.members {
		if id != p.ConnectionID {
			out = append(out, id)
		}
	}
	return out
}

// RoomInfo returns the room meta and current member count.
func (s *Store) RoomInfo(roomID domain.RoomID) (domain.Room, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, 0, false
	}
	return *entry.meta, len(entry.members), true
}

// CreateRoom pre-creates an empty room (REST API). Re-creating an
// existing room returns the existing meta.
func (s *Store) CreateRoom(roomID domain.RoomID, displayName string) domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.rooms[roomID]; ok {
		return *entry.meta
	}
	entry := &roomEntry{
		meta:    domain.NewRoom(roomID, displayName, s.maxParticipants),
		members: make(map[domain.ConnectionID]struct{}),
	}
	s.rooms[roomID] = entry
	log.Info().Str("module", "directory").Str("room", string(roomID)).Msg("room created via api")
	return *entry.meta
}

// Stats reports directory-wide counters for the health endpoint.
func (s *Store) Stats() (rooms, participants int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms), len(s.participants)
}

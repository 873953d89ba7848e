package domain

import (
	"errors"
	"time"
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

// ConnectionID identifies one live transport connection. Never reused.
type ConnectionID string

// MediaState holds the mutable media flags a participant advertises.
type MediaState struct {
	AudioEnabled  bool `json:"audioEnabled"`
	VideoEnabled  bool `json:"videoEnabled"`
	ScreenSharing bool `json:"isScreenSharing"`
}

// DefaultMediaState is what a participant starts with on join.
func DefaultMediaState() MediaState {
	return MediaState{AudioEnabled: true, VideoEnabled: true}
}

// MediaStatePatch is a partial update; nil fields are left untouched.
type MediaStatePatch struct {
	AudioEnabled  *bool `json:"audioEnabled,omitempty"`
	VideoEnabled  *bool `json:"videoEnabled,omitempty"`
	ScreenSharing *bool `json:"isScreenSharing,omitempty"`
}

// Apply merges the patch into s and reports whether anything changed.
func (p MediaStatePatch) Apply(s *MediaState) bool {
	changed := false
	if p.AudioEnabled != nil && *p.AudioEnabled != s.AudioEnabled {
		s.AudioEnabled = *p.AudioEnabled
		changed = true
	}
	if p.VideoEnabled != nil && *p.VideoEnabled != s.VideoEnabled {
		s.VideoEnabled = *p.VideoEnabled
		changed = true
	}
	if p.ScreenSharing != nil && *p.ScreenSharing != s.ScreenSharing {
		s.ScreenSharing = *p.ScreenSharing
		changed = true
	}
	return changed
}

// Participant is the registry record for one joined connection.
type Participant struct {
	ConnectionID ConnectionID `json:"socketId"`
	RoomID       RoomID       `json:"roomId"`
	Name         string       `json:"name"`
	JoinedAt     time.Time    `json:"joinedAt"`
	Media        MediaState   `json:"mediaState"`
}

// NewParticipant validates and truncates the display name the same way
// usernames are handled elsewhere.
func NewParticipant(connID ConnectionID, roomID RoomID, name string) (*Participant, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	return &Participant{
		ConnectionID: connID,
		RoomID:       roomID,
		Name:         name,
		JoinedAt:     time.Now(),
		Media:        DefaultMediaState(),
	}, nil
}

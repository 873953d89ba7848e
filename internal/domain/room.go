// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const (
	// DefaultMaxParticipants caps room membership unless config overrides it.
	DefaultMaxParticipants = 8

	// DefaultRoomName is used when a join request carries no room name.
	DefaultRoomName = "Video Call"

	MaxRoomNameLen = 64
)

var ErrRoomFull = errors.New("Room is full")

type RoomID string

// Room is the directory-owned meta of one room. Membership lives in the
// directory store, not here.
type Room struct {
	ID              RoomID    `json:"id"`
	DisplayName     string    `json:"name"`
	CreatedAt       time.Time `json:"createdAt"`
	MaxParticipants int       `json:"maxParticipants"`
}

// NewRoom avoids raw literals in adapters and applies the name fallback.
func NewRoom(id RoomID, displayName string, maxParticipants int) *Room {
	if displayName == "" {
		displayName = DefaultRoomName
	}
	if len(displayName) > MaxRoomNameLen {
		displayName = displayName[:MaxRoomNameLen]
	}
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	return &Room{
		ID:              id,
		DisplayName:     displayName,
		CreatedAt:       time.Now(),
		MaxParticipants: maxParticipants,
	}
}

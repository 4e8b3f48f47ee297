// Package domain contains entity without logic, just meta-data
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 36
	MaxDisplayNameLen   = 36
)

type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

type Role string

const (
	RoleHost         Role = "host"
	RoleGuest        Role = "guest"
	RolePendingGuest Role = "pending_guest"
)

type ConnState string

const (
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnReconnecting ConnState = "reconnecting"
	ConnDisconnected ConnState = "disconnected"
)

// MediaFlags are owned by the client and mirrored for fan-out only.
type MediaFlags struct {
	Mic    bool `json:"mic"`
	Camera bool `json:"camera"`
	Screen bool `json:"screen"`
}

type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	Role        Role          `json:"role"`
	Conn        ConnState     `json:"conn"`
	Media       MediaFlags    `json:"media"`
	HandRaised  bool          `json:"hand_raised"`
	JoinedAt    time.Time     `json:"joined_at"`
	JoinSeq     uint64        `json:"join_seq"`
}

// Admitted reports whether the participant passed the waiting room.
func (p Participant) Admitted() bool {
	return p.Role == RoleHost || p.Role == RoleGuest
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}

func ValidateParticipantID(id ParticipantID) error {
	if len(id) == 0 || len(id) > MaxParticipantIDLen {
		return ErrInvalidParticipantID
	}
	return nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

type Lifecycle string

const (
	LifecycleLobby  Lifecycle = "lobby"
	LifecycleActive Lifecycle = "active"
	LifecycleEnded  Lifecycle = "ended"
)

type AdmissionPolicy string

const (
	// AdmissionApproval sends every non-host through the waiting room.
	AdmissionApproval AdmissionPolicy = "approval"
	AdmissionOpen     AdmissionPolicy = "open"
)

func (p AdmissionPolicy) Valid() bool {
	return p == AdmissionApproval || p == AdmissionOpen
}

// SessionInfo is a read-only view of a session's top-level state.
type SessionInfo struct {
	ID               SessionID       `json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	Lifecycle        Lifecycle       `json:"lifecycle"`
	Policy           AdmissionPolicy `json:"admission_policy"`
	Host             ParticipantID   `json:"host,omitempty"`
	Presenter        ParticipantID   `json:"presenter,omitempty"`
	Recording        RecordingState  `json:"recording"`
	ParticipantCount int             `json:"participant_count"`
}

// Snapshot is the full state handed to a new subscriber before it starts
// streaming incremental events. Seq is the last event folded into it.
type Snapshot struct {
	Seq          uint64             `json:"seq"`
	Session      SessionInfo        `json:"session"`
	Participants []Participant      `json:"participants"`
	Pending      []AdmissionRequest `json:"pending"`
	Recording    RecordingJob       `json:"recording"`
}

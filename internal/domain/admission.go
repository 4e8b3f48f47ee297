package domain

import "time"

type Decision string

const (
	DecisionPending   Decision = "pending"
	DecisionAllowed   Decision = "allowed"
	DecisionDenied    Decision = "denied"
	DecisionTimedOut  Decision = "timed_out"
	DecisionWithdrawn Decision = "withdrawn"
)

// Final reports whether the requester may stop waiting.
func (d Decision) Final() bool {
	return d != DecisionPending && d != ""
}

// AdmissionRequest is a waiting-room entry for a non-host participant.
type AdmissionRequest struct {
	ParticipantID ParticipantID `json:"participant_id"`
	DisplayName   string        `json:"display_name"`
	RequestedAt   time.Time     `json:"requested_at"`
	Decision      Decision      `json:"decision"`
	DecidedAt     *time.Time    `json:"decided_at,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

package domain

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	KindMembershipChanged     EventKind = "membership_changed"
	KindAdmissionResolved     EventKind = "admission_resolved"
	KindPresenterChanged      EventKind = "presenter_changed"
	KindRecordingStateChanged EventKind = "recording_state_changed"
)

// Payload is the closed set of session events. Only the types in this file
// implement it.
type Payload interface {
	Kind() EventKind
	isPayload()
}

type MembershipChange string

const (
	MemberJoined  MembershipChange = "joined"
	MemberLeft    MembershipChange = "left"
	MemberUpdated MembershipChange = "updated"
	MemberRole    MembershipChange = "role"
)

type MembershipChanged struct {
	Change      MembershipChange `json:"change"`
	Participant Participant      `json:"participant"`
}

type AdmissionResolved struct {
	ParticipantID ParticipantID `json:"participant_id"`
	Decision      Decision      `json:"decision"`
	Reason        string        `json:"reason,omitempty"`
}

// PresenterChanged carries the new presenter; empty means nobody presents.
type PresenterChanged struct {
	Presenter ParticipantID `json:"presenter"`
}

type RecordingStateChanged struct {
	Job RecordingJob `json:"job"`
}

func (MembershipChanged) Kind() EventKind     { return KindMembershipChanged }
func (AdmissionResolved) Kind() EventKind     { return KindAdmissionResolved }
func (PresenterChanged) Kind() EventKind      { return KindPresenterChanged }
func (RecordingStateChanged) Kind() EventKind { return KindRecordingStateChanged }

func (MembershipChanged) isPayload()     {}
func (AdmissionResolved) isPayload()     {}
func (PresenterChanged) isPayload()      {}
func (RecordingStateChanged) isPayload() {}

// Event is one entry of a session's totally ordered stream.
type Event struct {
	SessionID SessionID
	Seq       uint64
	At        time.Time
	Payload   Payload
}

func (e Event) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Session SessionID `json:"session"`
		Seq     uint64    `json:"seq"`
		At      time.Time `json:"at"`
		Kind    EventKind `json:"kind"`
		Payload Payload   `json:"payload"`
	}{e.SessionID, e.Seq, e.At, e.Kind(), e.Payload})
}

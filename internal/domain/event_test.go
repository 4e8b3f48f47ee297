package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestEvent_MarshalJSON(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		event    Event
		wantKind string
	}{
		{Event{SessionID: "s1", Seq: 1, At: at, Payload: PresenterChanged{Presenter: "p1"}}, "presenter_changed"},
		{Event{SessionID: "s1", Seq: 2, At: at, Payload: AdmissionResolved{ParticipantID: "g", Decision: DecisionAllowed}}, "admission_resolved"},
		{Event{SessionID: "s1", Seq: 3, At: at, Payload: RecordingStateChanged{Job: RecordingJob{State: RecordingStarting}}}, "recording_state_changed"},
		{Event{SessionID: "s1", Seq: 4, At: at, Payload: MembershipChanged{Change: MemberJoined}}, "membership_changed"},
	}

	for _, test := range tests {
		b, err := json.Marshal(test.event)
		if err != nil {
			t.Fatalf("marshal seq %d: %v", test.event.Seq, err)
		}
		var got struct {
			Session string          `json:"session"`
			Seq     uint64          `json:"seq"`
			Kind    string          `json:"kind"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal seq %d: %v", test.event.Seq, err)
		}
		if got.Kind != test.wantKind {
			t.Errorf("seq %d: kind = %q, want %q", test.event.Seq, got.Kind, test.wantKind)
		}
		if got.Seq != test.event.Seq || got.Session != "s1" {
			t.Errorf("seq %d: envelope = %+v", test.event.Seq, got)
		}
		if len(got.Payload) == 0 || string(got.Payload) == "null" {
			t.Errorf("seq %d: empty payload", test.event.Seq)
		}
	}
}

func TestEvent_KindWithoutPayload(t *testing.T) {
	if k := (Event{}).Kind(); k != "" {
		t.Errorf("Kind() = %q, want empty", k)
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"", ErrNameEmpty},
		{"Ada", nil},
		{"abcdefghijabcdefghijabcdefghijabcdef", nil},
		{"abcdefghijabcdefghijabcdefghijabcdefg", ErrNameTooLong},
	}
	for _, test := range tests {
		if got := ValidateDisplayName(test.name); got != test.want {
			t.Errorf("ValidateDisplayName(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestDecision_Final(t *testing.T) {
	tests := []struct {
		d    Decision
		want bool
	}{
		{DecisionPending, false},
		{"", false},
		{DecisionAllowed, true},
		{DecisionDenied, true},
		{DecisionTimedOut, true},
		{DecisionWithdrawn, true},
	}
	for _, test := range tests {
		if got := test.d.Final(); got != test.want {
			t.Errorf("Decision(%q).Final() = %v, want %v", test.d, got, test.want)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("%w: participant p1", ErrForbidden), "forbidden"},
		{ErrSessionEnded, "session_not_active"},
		{fmt.Errorf("%w: gave up: %w", ErrExternalFailure, ErrTimeout), "external_failure"},
		{ErrNameTooLong, "invalid_name"},
		{errors.New("boom"), "internal"},
	}
	for _, test := range tests {
		if got := Code(test.err); got != test.want {
			t.Errorf("Code(%v) = %q, want %q", test.err, got, test.want)
		}
	}
}

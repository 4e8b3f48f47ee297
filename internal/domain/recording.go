package domain

import "time"

type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingStarting  RecordingState = "starting"
	RecordingRecording RecordingState = "recording"
	RecordingStopping  RecordingState = "stopping"
	RecordingFailed    RecordingState = "failed"
)

type RecordingJob struct {
	ID         string         `json:"id,omitempty"`
	State      RecordingState `json:"state"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	StoppedAt  *time.Time     `json:"stopped_at,omitempty"`
	Handle     string         `json:"handle,omitempty"`
	Attempts   int            `json:"attempts"`
	FailedFrom RecordingState `json:"failed_from,omitempty"`
	Error      string         `json:"error,omitempty"`
}

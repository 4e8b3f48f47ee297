package meeting

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type RecordingOptions struct {
	// AckTimeout bounds one BeginRecording/EndRecording call.
	AckTimeout time.Duration
	// Backoff holds the delay before each automatic retry; its length is
	// the retry count.
	Backoff []time.Duration
}

type Options struct {
	AdmissionPolicy    domain.AdmissionPolicy
	AdmissionTimeout   time.Duration
	AdmissionRetention time.Duration
	ReconnectGrace     time.Duration
	Recording          RecordingOptions
	JournalSize        int
	SubscriberBuffer   int

	Recorder core.RecordingCollaborator
	Policy   core.Policy
	// OnEnded is called asynchronously once the session reaches Ended.
	OnEnded func(domain.SessionID)
	Now     func() time.Time
}

func DefaultOptions() Options {
	return Options{
		AdmissionPolicy:    domain.AdmissionApproval,
		AdmissionTimeout:   120 * time.Second,
		AdmissionRetention: 30 * time.Second,
		ReconnectGrace:     30 * time.Second,
		Recording: RecordingOptions{
			AckTimeout: 15 * time.Second,
			Backoff:    []time.Duration{1 * time.Second, 4 * time.Second},
		},
		JournalSize:      256,
		SubscriberBuffer: 64,
		Now:              time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if !o.AdmissionPolicy.Valid() {
		o.AdmissionPolicy = d.AdmissionPolicy
	}
	if o.AdmissionTimeout <= 0 {
		o.AdmissionTimeout = d.AdmissionTimeout
	}
	if o.AdmissionRetention <= 0 {
		o.AdmissionRetention = d.AdmissionRetention
	}
	if o.ReconnectGrace <= 0 {
		o.ReconnectGrace = d.ReconnectGrace
	}
	if o.Recording.AckTimeout <= 0 {
		o.Recording.AckTimeout = d.Recording.AckTimeout
	}
	if o.Recording.Backoff == nil {
		o.Recording.Backoff = d.Recording.Backoff
	}
	if o.JournalSize <= 0 {
		o.JournalSize = d.JournalSize
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = d.SubscriberBuffer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

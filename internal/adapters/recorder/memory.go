// Package recorder provides the recording collaborator used when no external
// recording service is configured.
package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrUnknownHandle = errors.New("unknown recording handle")

type Recording struct {
	Handle    string           `json:"handle"`
	Session   domain.SessionID `json:"session"`
	StartedAt time.Time        `json:"started_at"`
	StoppedAt *time.Time       `json:"stopped_at,omitempty"`
}

// Memory keeps recordings in process. Latency delays every acknowledgement
// and is cut short by ctx.
type Memory struct {
	Latency time.Duration

	mu         sync.Mutex
	recordings map[string]*Recording
}

func NewMemory(latency time.Duration) *Memory {
	return &Memory{Latency: latency, recordings: make(map[string]*Recording)}
}

func (m *Memory) BeginRecording(ctx context.Context, session domain.SessionID) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	rec := &Recording{Handle: uuid.NewString(), Session: session, StartedAt: time.Now()}
	m.mu.Lock()
	m.recordings[rec.Handle] = rec
	m.mu.Unlock()
	log.Info().Str("module", "adapters.recorder").Str("session", string(session)).Str("handle", rec.Handle).Msg("recording begun")
	return rec.Handle, nil
}

// EndRecording is idempotent for a handle that already stopped.
func (m *Memory) EndRecording(ctx context.Context, handle string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if rec.StoppedAt == nil {
		now := time.Now()
		rec.StoppedAt = &now
		log.Info().Str("module", "adapters.recorder").Str("session", string(rec.Session)).Str("handle", handle).Dur("length", now.Sub(rec.StartedAt)).Msg("recording ended")
	}
	return nil
}

// Recordings lists what was recorded for a session.
func (m *Memory) Recordings(session domain.SessionID) []Recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Recording, 0)
	for _, rec := range m.recordings {
		if rec.Session == session {
			out = append(out, *rec)
		}
	}
	return out
}

func (m *Memory) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

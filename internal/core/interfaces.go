package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// ClientID identifies a browser across reconnects (client token cookie).
type ClientID string

// Frame is one encoded control message.
type Frame []byte

// SignalConnection is a client's control channel. TrySend never blocks: a
// full queue is an error and the caller decides whether to drop the client.
// The adapter owns the connection and closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// RecordingCollaborator is the external recorder. Both calls must return
// once ctx is done.
type RecordingCollaborator interface {
	BeginRecording(ctx context.Context, session domain.SessionID) (handle string, err error)
	EndRecording(ctx context.Context, handle string) error
}

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	// KickSubscriber closes the subscription; the client resumes from its
	// last sequence number.
	KickSubscriber
	// DropEvent skips the event for this subscriber only.
	DropEvent
)

type Policy interface {
	OnBackPressure(session domain.SessionID, subscriber string) BackpressureAction
}

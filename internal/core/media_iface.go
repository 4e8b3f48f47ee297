package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the participant's link to the media transport. The core
// only observes it: connectivity and advisory media flags.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnConnectivity fires with true when the transport connects and false
	// when it drops.
	OnConnectivity(func(connected bool))
	// OnMediaFlags fires when the client reports mic/camera/screen changes.
	OnMediaFlags(func(domain.MediaFlags))
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}

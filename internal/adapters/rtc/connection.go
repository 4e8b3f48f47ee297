package rtc

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// FlagsChannel is the data channel label clients report media flags on.
const FlagsChannel = "media-flags"

// WebRTCConnection terminates a client's peer connection to observe it:
// connectivity and advisory media flags. Incoming tracks are drained.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	cid    core.ClientID
	cancel context.CancelFunc

	onICE    func(webrtc.ICECandidateInit)
	onConn   func(connected bool)
	onFlags  func(domain.MediaFlags)
	onClosed func()

	closed atomic.Bool
}

func NewWebRTCConnection(cfg webrtc.Configuration, cid core.ClientID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, cid: cid}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("client", string(c.cid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.connectivity(true)
		case webrtc.PeerConnectionStateDisconnected:
			c.connectivity(false)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.connectivity(false)
			c.Close()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FlagsChannel {
			return
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			flags, err := decodeFlags(msg.Data)
			if err != nil {
				log.Warn().Err(err).Str("module", "webrtc").Str("client", string(c.cid)).Msg("bad media flags")
				return
			}
			if c.onFlags != nil {
				c.onFlags(flags)
			}
		})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("client", string(c.cid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		go drain(ctx, track)
	})

	return nil
}

func (c *WebRTCConnection) connectivity(connected bool) {
	if c.closed.Load() {
		return
	}
	if c.onConn != nil {
		c.onConn(connected)
	}
}

// drain reads a remote track until it ends; media is not forwarded.
func drain(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

type flagsMessage struct {
	Mic    bool `json:"mic"`
	Cam    bool `json:"cam"`
	Screen bool `json:"screen"`
}

func decodeFlags(data []byte) (domain.MediaFlags, error) {
	var m flagsMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.MediaFlags{}, err
	}
	return domain.MediaFlags{Mic: m.Mic, Camera: m.Cam, Screen: m.Screen}, nil
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("client", string(c.cid)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("client", string(c.cid)).Msg("closed")
	}
	if c.onClosed != nil {
		c.onClosed()
	}
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *WebRTCConnection) OnConnectivity(fn func(connected bool)) { c.onConn = fn }

func (c *WebRTCConnection) OnMediaFlags(fn func(domain.MediaFlags)) { c.onFlags = fn }

// OnClosed sets application-level callback for cleanup.
func (c *WebRTCConnection) OnClosed(fn func()) { c.onClosed = fn }

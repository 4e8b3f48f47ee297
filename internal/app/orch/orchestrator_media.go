package orch

import (
	"errors"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// BindMediaHandlers wires a media connection's callbacks to the client's
// meeting and stores it, closing the connection it replaces.
func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, cid core.ClientID) {
	pid := ParticipantOf(cid)
	mc.OnConnectivity(func(connected bool) {
		sid, ok := o.Registry.SessionOf(cid)
		if !ok {
			return
		}
		var err error
		if connected {
			err = o.OnParticipantConnected(sid, pid)
		} else {
			err = o.OnParticipantDisconnected(sid, pid)
		}
		if err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("client", string(cid)).Bool("connected", connected).Msg("media connectivity ignored")
		}
	})
	mc.OnMediaFlags(func(flags domain.MediaFlags) {
		sid, ok := o.Registry.SessionOf(cid)
		if !ok {
			return
		}
		if err := o.OnMediaFlagsChanged(sid, pid, flags); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("client", string(cid)).Msg("media flags ignored")
		}
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(cid, mc) })

	if prev := o.Registry.BindMedia(cid, mc); prev != nil && prev != mc {
		prev.Close()
	}
}

func (o *Orchestrator) OnMediaDisconnect(cid core.ClientID, mc core.MediaConnection) {
	if o.Registry.DetachMedia(cid, mc) {
		log.Info().Str("module", "orch").Str("client", string(cid)).Msg("media detached")
	}
}

// OnParticipantConnected marks an admitted participant Connected. Pending
// guests stay pending until the host decides.
func (o *Orchestrator) OnParticipantConnected(sid domain.SessionID, pid domain.ParticipantID) error {
	s, err := o.Sessions.Get(sid)
	if err != nil {
		return err
	}
	err = s.UpdateConnectionState(pid, domain.ConnConnected)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return err
}

// OnParticipantDisconnected starts the reconnect grace; a pending guest
// withdraws its request.
func (o *Orchestrator) OnParticipantDisconnected(sid domain.SessionID, pid domain.ParticipantID) error {
	s, err := o.Sessions.Get(sid)
	if err != nil {
		return err
	}
	return s.UpdateConnectionState(pid, domain.ConnReconnecting)
}

func (o *Orchestrator) OnMediaFlagsChanged(sid domain.SessionID, pid domain.ParticipantID, flags domain.MediaFlags) error {
	s, err := o.Sessions.Get(sid)
	if err != nil {
		return err
	}
	return s.UpdateMediaFlags(pid, flags)
}

// OnSignalClosed runs when the control channel drops. The participant keeps
// its place for the grace period and resumes by joining again.
func (o *Orchestrator) OnSignalClosed(cid core.ClientID, sig core.SignalConnection) {
	sid, inSession := o.Registry.SessionOf(cid)
	mc, hasMedia := o.Registry.Media(cid)
	if !o.Registry.Unbind(cid, sig) {
		return
	}
	if hasMedia {
		mc.Close()
	}
	if !inSession {
		return
	}
	if err := o.OnParticipantDisconnected(sid, ParticipantOf(cid)); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Str("module", "orch").Str("client", string(cid)).Msg("disconnect")
	}
}

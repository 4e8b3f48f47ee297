package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinSession enters the meeting, leaving any other meeting first. The
// result is either a participant or a pending admission.
func (o *Orchestrator) JoinSession(cid core.ClientID, sid domain.SessionID, name string) (meeting.JoinResult, error) {
	if sid == "" {
		return meeting.JoinResult{}, fmt.Errorf("%w: empty session id", domain.ErrNotFound)
	}
	pid := ParticipantOf(cid)
	if err := domain.ValidateParticipantID(pid); err != nil {
		return meeting.JoinResult{}, err
	}
	if err := domain.ValidateDisplayName(name); err != nil {
		return meeting.JoinResult{}, err
	}
	if prev, ok := o.Registry.SessionOf(cid); ok && prev != sid {
		if err := o.Leave(cid); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("client", string(cid)).Str("from", string(prev)).Msg("leave previous session")
		}
	}

	s, created := o.Sessions.Acquire(sid)
	res, err := s.Join(pid, name)
	if err != nil {
		if created {
			o.Sessions.Discard(sid)
		}
		return meeting.JoinResult{}, err
	}
	o.Registry.BindSession(cid, sid)
	log.Info().Str("module", "orch").Str("client", string(cid)).Str("session", string(sid)).Bool("pending", res.Pending).Msg("joined")
	return res, nil
}

// AwaitAdmission waits for the host decision on the client's request. A
// final non-allowed decision unbinds the client.
func (o *Orchestrator) AwaitAdmission(ctx context.Context, cid core.ClientID) (domain.AdmissionRequest, error) {
	s, pid, err := o.current(cid)
	if err != nil {
		return domain.AdmissionRequest{}, err
	}
	req, err := s.AwaitAdmission(ctx, pid)
	if err != nil {
		return req, err
	}
	if req.Decision != domain.DecisionAllowed {
		o.Registry.ClearSession(cid)
	}
	return req, nil
}

func (o *Orchestrator) WithdrawEntry(cid core.ClientID) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.WithdrawEntry(pid)
}

func (o *Orchestrator) RespondAdmission(cid core.ClientID, target domain.ParticipantID, decision domain.Decision) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.RespondEntry(pid, target, decision)
}

// SetPresenter asks for or releases the presenter slot.
func (o *Orchestrator) SetPresenter(cid core.ClientID, want bool) (meeting.PresentResult, error) {
	s, pid, err := o.current(cid)
	if err != nil {
		return "", err
	}
	if want {
		return s.RequestPresent(pid)
	}
	s.StopPresenting(pid)
	return meeting.PresentAllowed, nil
}

func (o *Orchestrator) ForceStopPresenting(cid core.ClientID) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.ForceStopPresenting(pid)
}

func (o *Orchestrator) SetRecording(cid core.ClientID, want bool) (domain.RecordingJob, error) {
	s, pid, err := o.current(cid)
	if err != nil {
		return domain.RecordingJob{}, err
	}
	if want {
		return s.StartRecording(pid)
	}
	return s.StopRecording(pid)
}

// Subscribe opens the client's event stream; afterSeq > 0 resumes.
func (o *Orchestrator) Subscribe(cid core.ClientID, afterSeq uint64) (*meeting.Subscription, error) {
	s, _, err := o.current(cid)
	if err != nil {
		return nil, err
	}
	return s.Subscribe(afterSeq, string(cid))
}

func (o *Orchestrator) Leave(cid core.ClientID) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	o.Registry.ClearSession(cid)
	if err := s.Leave(pid); err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("client", string(cid)).Str("session", string(s.ID())).Msg("left")
	return nil
}

func (o *Orchestrator) RemoveParticipant(cid core.ClientID, target domain.ParticipantID) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	if err := s.Kick(pid, target); err != nil {
		return err
	}
	o.Registry.ClearSession(core.ClientID(target))
	return nil
}

func (o *Orchestrator) TransferHost(cid core.ClientID, target domain.ParticipantID) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.TransferHost(pid, target)
}

func (o *Orchestrator) SetAdmissionPolicy(cid core.ClientID, policy domain.AdmissionPolicy) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.SetAdmissionPolicy(pid, policy)
}

// EndSession ends the meeting for everyone. Clients are unbound as their
// streams report the end.
func (o *Orchestrator) EndSession(cid core.ClientID) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.End(pid)
}

func (o *Orchestrator) RaiseHand(cid core.ClientID, raised bool) error {
	s, pid, err := o.current(cid)
	if err != nil {
		return err
	}
	return s.SetHandRaised(pid, raised)
}

// Whoami reports the client's participant record, if it is in a meeting.
func (o *Orchestrator) Whoami(cid core.ClientID) (domain.SessionID, domain.Participant, bool) {
	s, pid, err := o.current(cid)
	if err != nil {
		return "", domain.Participant{}, false
	}
	p, ok := s.Participant(pid)
	if !ok {
		return s.ID(), domain.Participant{}, false
	}
	return s.ID(), p, true
}

// StopSession is the operator ending a meeting.
func (o *Orchestrator) StopSession(sid domain.SessionID) error {
	return o.Sessions.Stop(sid, "stopped by operator")
}

// OnStreamEnded drops the client's binding once its meeting has ended.
func (o *Orchestrator) OnStreamEnded(cid core.ClientID, sid domain.SessionID) {
	if cur, ok := o.Registry.SessionOf(cid); ok && cur == sid {
		o.Registry.ClearSession(cid)
	}
}

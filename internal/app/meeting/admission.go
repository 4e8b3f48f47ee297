package meeting

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

const (
	reasonTimedOut  = "no response from host"
	reasonDenied    = "denied by host"
	reasonWithdrawn = "withdrawn by participant"
)

// admission is the pending record behind one waiting-room request. done is
// closed on resolution so waiters never touch the session lock while waiting.
type admission struct {
	req   domain.AdmissionRequest
	timer *time.Timer
	done  chan struct{}
}

// RequestEntry parks a non-host participant in the waiting room. A second
// request from the same participant collapses into the outstanding one.
func (s *Session) RequestEntry(pid domain.ParticipantID, name string) (domain.AdmissionRequest, error) {
	if err := domain.ValidateParticipantID(pid); err != nil {
		return domain.AdmissionRequest{}, err
	}
	if err := domain.ValidateDisplayName(name); err != nil {
		return domain.AdmissionRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != domain.LifecycleActive {
		return domain.AdmissionRequest{}, fmt.Errorf("%w: session %s is %s", domain.ErrSessionNotActive, s.id, s.lifecycle)
	}
	if p, ok := s.members.get(pid); ok {
		if a, ok := s.admissions[pid]; ok && p.Role == domain.RolePendingGuest {
			return a.req, nil
		}
		return domain.AdmissionRequest{}, fmt.Errorf("%w: %s is already admitted", domain.ErrInvalidTransition, pid)
	}
	return s.requestEntryLocked(pid, name), nil
}

func (s *Session) requestEntryLocked(pid domain.ParticipantID, name string) domain.AdmissionRequest {
	s.addLocked(pid, name, domain.RolePendingGuest, domain.ConnConnecting)
	a := &admission{
		req: domain.AdmissionRequest{
			ParticipantID: pid,
			DisplayName:   name,
			RequestedAt:   s.opts.Now(),
			Decision:      domain.DecisionPending,
		},
		done: make(chan struct{}),
	}
	a.timer = time.AfterFunc(s.opts.AdmissionTimeout, func() { s.expireAdmission(a) })
	s.admissions[pid] = a
	s.logger.Info().Str("participant", string(pid)).Str("name", name).Msg("admission requested")
	return a.req
}

func (s *Session) expireAdmission(a *admission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admissions[a.req.ParticipantID] != a || a.req.Decision != domain.DecisionPending {
		return
	}
	s.resolveLocked(a, domain.DecisionTimedOut, reasonTimedOut)
}

// RespondEntry is the host's decision on a pending request.
func (s *Session) RespondEntry(actor, pid domain.ParticipantID, decision domain.Decision) error {
	if decision != domain.DecisionAllowed && decision != domain.DecisionDenied {
		return fmt.Errorf("%w: decision %q", domain.ErrInvalidTransition, decision)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return err
	}
	a, ok := s.admissions[pid]
	if !ok || a.req.Decision != domain.DecisionPending {
		return fmt.Errorf("%w: participant %s", domain.ErrNoSuchRequest, pid)
	}
	reason := ""
	if decision == domain.DecisionDenied {
		reason = reasonDenied
	}
	s.resolveLocked(a, decision, reason)
	return nil
}

// WithdrawEntry cancels the requester's own pending request.
func (s *Session) WithdrawEntry(pid domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admissions[pid]
	if !ok || a.req.Decision != domain.DecisionPending {
		return fmt.Errorf("%w: participant %s", domain.ErrNoSuchRequest, pid)
	}
	s.resolveLocked(a, domain.DecisionWithdrawn, reasonWithdrawn)
	return nil
}

// resolveLocked publishes AdmissionResolved before the membership change it
// causes. Denied, timed out and withdrawn requesters leave the registry.
func (s *Session) resolveLocked(a *admission, decision domain.Decision, reason string) {
	if a == nil || a.req.Decision != domain.DecisionPending {
		return
	}
	now := s.opts.Now()
	pid := a.req.ParticipantID
	a.timer.Stop()
	a.req.Decision = decision
	a.req.DecidedAt = &now
	a.req.Reason = reason
	close(a.done)

	s.publish(domain.AdmissionResolved{ParticipantID: pid, Decision: decision, Reason: reason})

	ev := s.logger.Info()
	if decision == domain.DecisionTimedOut {
		ev = s.logger.Warn()
	}
	ev.Str("participant", string(pid)).Str("decision", string(decision)).Str("reason", reason).Msg("admission resolved")

	if decision == domain.DecisionAllowed {
		if p, ok := s.members.get(pid); ok {
			p.Role = domain.RoleGuest
			p.Conn = domain.ConnConnected
			s.publish(domain.MembershipChanged{Change: domain.MemberRole, Participant: *p})
		}
	} else {
		s.removeMemberLocked(pid)
	}

	time.AfterFunc(s.opts.AdmissionRetention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.admissions[pid] == a {
			delete(s.admissions, pid)
		}
	})
}

// AwaitAdmission blocks until the request is resolved or ctx is done.
func (s *Session) AwaitAdmission(ctx context.Context, pid domain.ParticipantID) (domain.AdmissionRequest, error) {
	s.mu.Lock()
	a, ok := s.admissions[pid]
	s.mu.Unlock()
	if !ok {
		return domain.AdmissionRequest{}, fmt.Errorf("%w: participant %s", domain.ErrNoSuchRequest, pid)
	}

	select {
	case <-a.done:
	case <-ctx.Done():
		return domain.AdmissionRequest{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return a.req, nil
}

// PendingRequests lists outstanding requests in arrival order.
func (s *Session) PendingRequests() []domain.AdmissionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Session) pendingLocked() []domain.AdmissionRequest {
	out := make([]domain.AdmissionRequest, 0)
	for _, p := range s.members.list() {
		if a, ok := s.admissions[p.ID]; ok && a.req.Decision == domain.DecisionPending {
			out = append(out, a.req)
		}
	}
	return out
}

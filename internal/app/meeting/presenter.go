package meeting

import (
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
)

type PresentResult string

const (
	PresentAllowed PresentResult = "allowed"
	// PresentBusy means somebody else holds the slot. It is a normal
	// outcome, callers surface it and do not queue.
	PresentBusy PresentResult = "busy"
)

// RequestPresent grants the presenter slot when it is free or already held
// by pid. Only connected, admitted participants may present.
func (s *Session) RequestPresent(pid domain.ParticipantID) (PresentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestPresentLocked(pid)
}

func (s *Session) requestPresentLocked(pid domain.ParticipantID) (PresentResult, error) {
	if s.lifecycle != domain.LifecycleActive {
		return "", fmt.Errorf("%w: session %s is %s", domain.ErrSessionNotActive, s.id, s.lifecycle)
	}
	p, ok := s.members.get(pid)
	if !ok {
		return "", fmt.Errorf("%w: participant %s", domain.ErrNotFound, pid)
	}
	if !p.Admitted() || p.Conn != domain.ConnConnected {
		return "", fmt.Errorf("%w: %s cannot present while %s/%s", domain.ErrForbidden, pid, p.Role, p.Conn)
	}
	switch s.presenter {
	case pid:
		return PresentAllowed, nil
	case "":
	default:
		return PresentBusy, nil
	}
	s.presenter = pid
	s.publish(domain.PresenterChanged{Presenter: pid})
	s.logger.Info().Str("participant", string(pid)).Msg("presenter granted")
	return PresentAllowed, nil
}

// StopPresenting clears the slot only if pid still holds it, so a late stop
// never evicts a newer presenter.
func (s *Session) StopPresenting(pid domain.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearPresenterLocked(pid)
}

func (s *Session) clearPresenterLocked(pid domain.ParticipantID) bool {
	if pid == "" || s.presenter != pid {
		return false
	}
	s.presenter = ""
	s.publish(domain.PresenterChanged{})
	s.logger.Info().Str("participant", string(pid)).Msg("presenter released")
	return true
}

// ForceStopPresenting is the host clearing the slot regardless of holder.
func (s *Session) ForceStopPresenting(actor domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return err
	}
	prev := s.presenter
	s.presenter = ""
	s.publish(domain.PresenterChanged{})
	s.logger.Info().Str("participant", string(prev)).Str("by", string(actor)).Msg("presenter force stopped")
	return nil
}

func (s *Session) Presenter() domain.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenter
}

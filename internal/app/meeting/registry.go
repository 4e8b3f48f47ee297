package meeting

import (
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// registry keeps participants in join order. It has no lock of its own; the
// owning Session serializes access.
type registry struct {
	byID    map[domain.ParticipantID]*domain.Participant
	order   []domain.ParticipantID
	joinSeq uint64
}

func newRegistry() *registry {
	return &registry{byID: make(map[domain.ParticipantID]*domain.Participant)}
}

func (r *registry) get(id domain.ParticipantID) (*domain.Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *registry) insert(p *domain.Participant) {
	r.joinSeq++
	p.JoinSeq = r.joinSeq
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
}

func (r *registry) delete(id domain.ParticipantID) (*domain.Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}

func (r *registry) list() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

func (r *registry) first(match func(*domain.Participant) bool) *domain.Participant {
	for _, id := range r.order {
		if p := r.byID[id]; match(p) {
			return p
		}
	}
	return nil
}

func (r *registry) len() int { return len(r.order) }

// AddParticipant registers a participant in Connecting state. Adding a host
// is only possible while the session has none. A pending guest goes through
// the waiting room like RequestEntry; an admitted guest can only be added
// directly when the session admits without approval.
func (s *Session) AddParticipant(id domain.ParticipantID, name string, role domain.Role) (domain.Participant, error) {
	if err := domain.ValidateParticipantID(id); err != nil {
		return domain.Participant{}, err
	}
	if err := domain.ValidateDisplayName(name); err != nil {
		return domain.Participant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == domain.LifecycleEnded {
		return domain.Participant{}, fmt.Errorf("%w: session %s has ended", domain.ErrSessionNotActive, s.id)
	}
	if _, ok := s.members.get(id); ok {
		return domain.Participant{}, fmt.Errorf("%w: participant %s already registered", domain.ErrInvalidTransition, id)
	}
	switch role {
	case domain.RoleHost:
		if s.host != "" {
			return domain.Participant{}, fmt.Errorf("%w: session already has a host", domain.ErrInvalidTransition)
		}
		s.host = id
		s.lifecycle = domain.LifecycleActive
	case domain.RoleGuest:
		if s.policy != domain.AdmissionOpen {
			return domain.Participant{}, fmt.Errorf("%w: guests need host approval in this session", domain.ErrInvalidTransition)
		}
	case domain.RolePendingGuest:
		if s.lifecycle != domain.LifecycleActive {
			return domain.Participant{}, fmt.Errorf("%w: session %s is %s", domain.ErrSessionNotActive, s.id, s.lifecycle)
		}
		s.requestEntryLocked(id, name)
		p, _ := s.members.get(id)
		return *p, nil
	default:
		return domain.Participant{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidTransition, role)
	}
	return s.addLocked(id, name, role, domain.ConnConnecting), nil
}

func (s *Session) addLocked(id domain.ParticipantID, name string, role domain.Role, conn domain.ConnState) domain.Participant {
	p := &domain.Participant{
		ID:          id,
		DisplayName: name,
		Role:        role,
		Conn:        conn,
		JoinedAt:    s.opts.Now(),
	}
	s.members.insert(p)
	s.publish(domain.MembershipChanged{Change: domain.MemberJoined, Participant: *p})
	s.logger.Info().Str("participant", string(id)).Str("role", string(role)).Int("count", s.members.len()).Msg("participant added")
	return *p
}

// RemoveParticipant drops the participant from the session. A pending guest
// has its request withdrawn; a departing host hands the role over.
func (s *Session) RemoveParticipant(id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members.get(id); !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, id)
	}
	if a, ok := s.admissions[id]; ok && a.req.Decision == domain.DecisionPending {
		s.resolveLocked(a, domain.DecisionWithdrawn, "left the waiting room")
		return nil
	}
	s.removeMemberLocked(id)
	return nil
}

func (s *Session) removeMemberLocked(id domain.ParticipantID) {
	s.clearPresenterLocked(id)
	s.stopGraceLocked(id)
	p, ok := s.members.delete(id)
	if !ok {
		return
	}
	p.Conn = domain.ConnDisconnected
	s.publish(domain.MembershipChanged{Change: domain.MemberLeft, Participant: *p})
	s.logger.Info().Str("participant", string(id)).Int("count", s.members.len()).Msg("participant removed")
	if id == s.host {
		s.handoffLocked()
	}
}

// UpdateConnectionState mirrors transport connectivity. Reconnecting starts
// the grace period, Disconnected removes the participant at once.
func (s *Session) UpdateConnectionState(id domain.ParticipantID, state domain.ConnState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.members.get(id)
	if !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, id)
	}
	switch state {
	case domain.ConnConnected:
		if !p.Admitted() {
			return fmt.Errorf("%w: %s has not been admitted", domain.ErrInvalidTransition, id)
		}
		s.stopGraceLocked(id)
	case domain.ConnReconnecting:
		if !p.Admitted() {
			if a, ok := s.admissions[id]; ok && a.req.Decision == domain.DecisionPending {
				s.resolveLocked(a, domain.DecisionWithdrawn, "connection lost")
			}
			return nil
		}
		s.startGraceLocked(id)
	case domain.ConnDisconnected:
		if a, ok := s.admissions[id]; ok && a.req.Decision == domain.DecisionPending {
			s.resolveLocked(a, domain.DecisionWithdrawn, "connection lost")
			return nil
		}
		s.removeMemberLocked(id)
		return nil
	case domain.ConnConnecting:
	default:
		return fmt.Errorf("%w: unknown connection state %q", domain.ErrInvalidTransition, state)
	}
	if p.Conn == state {
		return nil
	}
	s.setConnLocked(p, state)
	return nil
}

// setConnLocked frees the presenter slot before announcing that the
// presenter is no longer connected.
func (s *Session) setConnLocked(p *domain.Participant, state domain.ConnState) {
	if state != domain.ConnConnected {
		s.clearPresenterLocked(p.ID)
	}
	p.Conn = state
	s.publish(domain.MembershipChanged{Change: domain.MemberUpdated, Participant: *p})
}

func (s *Session) startGraceLocked(id domain.ParticipantID) {
	if _, ok := s.grace[id]; ok {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(s.opts.ReconnectGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.grace[id] != t {
			return
		}
		delete(s.grace, id)
		if p, ok := s.members.get(id); ok && p.Conn == domain.ConnReconnecting {
			s.logger.Info().Str("participant", string(id)).Msg("reconnect grace expired")
			s.removeMemberLocked(id)
		}
	})
	s.grace[id] = t
}

func (s *Session) stopGraceLocked(id domain.ParticipantID) {
	if t, ok := s.grace[id]; ok {
		t.Stop()
		delete(s.grace, id)
	}
}

func (s *Session) List() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members.list()
}

func (s *Session) Participant(id domain.ParticipantID) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.members.get(id)
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// UpdateMediaFlags mirrors the client's advisory flags. A rising screen flag
// asks for the presenter slot, a falling one releases it.
func (s *Session) UpdateMediaFlags(id domain.ParticipantID, flags domain.MediaFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.members.get(id)
	if !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, id)
	}
	prev := p.Media
	if prev == flags {
		return nil
	}
	p.Media = flags
	s.publish(domain.MembershipChanged{Change: domain.MemberUpdated, Participant: *p})

	switch {
	case flags.Screen && !prev.Screen:
		res, err := s.requestPresentLocked(id)
		if err != nil {
			s.logger.Debug().Err(err).Str("participant", string(id)).Msg("screen share without presenter slot")
		} else if res == PresentBusy {
			s.logger.Debug().Str("participant", string(id)).Str("presenter", string(s.presenter)).Msg("screen share contention")
		}
	case !flags.Screen && prev.Screen:
		s.clearPresenterLocked(id)
	}
	return nil
}

func (s *Session) SetHandRaised(id domain.ParticipantID, raised bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.members.get(id)
	if !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, id)
	}
	if !p.Admitted() {
		return fmt.Errorf("%w: %s is waiting for admission", domain.ErrForbidden, id)
	}
	if p.HandRaised == raised {
		return nil
	}
	p.HandRaised = raised
	s.publish(domain.MembershipChanged{Change: domain.MemberUpdated, Participant: *p})
	return nil
}

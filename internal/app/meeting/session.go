// Package meeting implements the coordination core of one meeting: membership,
// waiting-room admission, presenter arbitration, recording and the ordered
// event stream.
//
// A Session is a single-writer unit. Every state check and mutation happens
// under its mutex, together with sequencing and fan-out of the resulting
// events. Waiting (for a host decision, a recorder acknowledgement or the
// next event) never holds the lock.
package meeting

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Session struct {
	mu sync.Mutex

	id        domain.SessionID
	createdAt time.Time
	endedAt   *time.Time
	lifecycle domain.Lifecycle
	policy    domain.AdmissionPolicy
	host      domain.ParticipantID
	presenter domain.ParticipantID

	members    *registry
	admissions map[domain.ParticipantID]*admission
	grace      map[domain.ParticipantID]*time.Timer
	rec        recording
	bus        *bus

	opts   Options
	logger zerolog.Logger
}

// JoinResult tells the caller whether the participant is in the meeting or
// waiting for the host.
type JoinResult struct {
	Participant domain.Participant
	Pending     bool
	Request     domain.AdmissionRequest
}

func New(id domain.SessionID, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:         id,
		createdAt:  opts.Now(),
		lifecycle:  domain.LifecycleLobby,
		policy:     opts.AdmissionPolicy,
		members:    newRegistry(),
		admissions: make(map[domain.ParticipantID]*admission),
		grace:      make(map[domain.ParticipantID]*time.Timer),
		rec:        recording{job: domain.RecordingJob{State: domain.RecordingIdle}},
		opts:       opts,
		logger:     log.With().Str("module", "app.meeting").Str("session", string(id)).Logger(),
	}
	s.bus = newBus(id, opts, &s.logger)
	s.logger.Info().Str("policy", string(s.policy)).Msg("session created")
	return s
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() domain.SessionInfo {
	return domain.SessionInfo{
		ID:               s.id,
		CreatedAt:        s.createdAt,
		EndedAt:          s.endedAt,
		Lifecycle:        s.lifecycle,
		Policy:           s.policy,
		Host:             s.host,
		Presenter:        s.presenter,
		Recording:        s.rec.job.State,
		ParticipantCount: s.members.len(),
	}
}

func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		Seq:          s.bus.seq,
		Session:      s.infoLocked(),
		Participants: s.members.list(),
		Pending:      s.pendingLocked(),
		Recording:    s.rec.job,
	}
}

// Subscribe opens an event stream. With afterSeq > 0 the stream resumes from
// the journal when it still covers the gap; otherwise the subscription starts
// with a fresh snapshot.
func (s *Session) Subscribe(afterSeq uint64, label string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == domain.LifecycleEnded {
		return nil, domain.ErrSessionEnded
	}
	if afterSeq > 0 {
		if backlog, ok := s.bus.replayAfter(afterSeq); ok {
			s.logger.Debug().Str("subscriber", label).Uint64("after", afterSeq).Int("backlog", len(backlog)).Msg("subscriber resumed")
			return s.bus.add(label, backlog, nil, s.unsubscribe), nil
		}
	}
	snap := s.snapshotLocked()
	s.logger.Debug().Str("subscriber", label).Uint64("seq", snap.Seq).Msg("subscriber attached")
	return s.bus.add(label, nil, &snap, s.unsubscribe), nil
}

func (s *Session) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus.closeSub(id, domain.ErrSubscriptionEnd)
}

func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bus.count()
}

func (s *Session) publish(p domain.Payload) domain.Event {
	return s.bus.publish(p)
}

// Join is the single entry point for a participant. The first participant in
// a host-less session becomes the host; everybody else is either admitted
// directly (open policy) or parked in the waiting room. Joining again with
// a known id resumes that participant.
func (s *Session) Join(pid domain.ParticipantID, name string) (JoinResult, error) {
	if err := domain.ValidateParticipantID(pid); err != nil {
		return JoinResult{}, err
	}
	if err := domain.ValidateDisplayName(name); err != nil {
		return JoinResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle == domain.LifecycleEnded {
		return JoinResult{}, fmt.Errorf("%w: session %s has ended", domain.ErrSessionNotActive, s.id)
	}

	if p, ok := s.members.get(pid); ok {
		if p.Role == domain.RolePendingGuest {
			a, ok := s.admissions[pid]
			if !ok {
				return JoinResult{}, fmt.Errorf("%w: %s has no admission request", domain.ErrInvalidTransition, pid)
			}
			return JoinResult{Participant: *p, Pending: true, Request: a.req}, nil
		}
		s.stopGraceLocked(pid)
		if p.Conn != domain.ConnConnected {
			s.setConnLocked(p, domain.ConnConnected)
			s.logger.Info().Str("participant", string(pid)).Msg("participant resumed")
		}
		return JoinResult{Participant: *p}, nil
	}

	if s.host == "" {
		p := s.addLocked(pid, name, domain.RoleHost, domain.ConnConnected)
		s.host = pid
		s.lifecycle = domain.LifecycleActive
		s.logger.Info().Str("participant", string(pid)).Msg("host joined, session active")
		return JoinResult{Participant: p}, nil
	}

	if s.policy == domain.AdmissionOpen {
		p := s.addLocked(pid, name, domain.RoleGuest, domain.ConnConnected)
		return JoinResult{Participant: p}, nil
	}

	req := s.requestEntryLocked(pid, name)
	p, _ := s.members.get(pid)
	return JoinResult{Participant: *p, Pending: true, Request: req}, nil
}

// Leave removes the participant; a waiting guest withdraws its request.
func (s *Session) Leave(pid domain.ParticipantID) error {
	return s.RemoveParticipant(pid)
}

// Kick is the host removing somebody else from the meeting or waiting room.
func (s *Session) Kick(actor, pid domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return err
	}
	if actor == pid {
		return fmt.Errorf("%w: host cannot remove itself", domain.ErrInvalidTransition)
	}
	if _, ok := s.members.get(pid); !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, pid)
	}
	if a, ok := s.admissions[pid]; ok && a.req.Decision == domain.DecisionPending {
		s.resolveLocked(a, domain.DecisionDenied, "removed by host")
		return nil
	}
	s.logger.Info().Str("participant", string(pid)).Str("by", string(actor)).Msg("participant removed by host")
	s.removeMemberLocked(pid)
	return nil
}

// TransferHost is the only way the host role moves while the host is present.
func (s *Session) TransferHost(actor, to domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return err
	}
	target, ok := s.members.get(to)
	if !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, to)
	}
	if target.Role != domain.RoleGuest || target.Conn != domain.ConnConnected {
		return fmt.Errorf("%w: %s cannot take the host role", domain.ErrInvalidTransition, to)
	}
	if old, ok := s.members.get(actor); ok {
		old.Role = domain.RoleGuest
		s.publish(domain.MembershipChanged{Change: domain.MemberRole, Participant: *old})
	}
	s.promoteLocked(target)
	return nil
}

func (s *Session) promoteLocked(p *domain.Participant) {
	p.Role = domain.RoleHost
	s.host = p.ID
	s.publish(domain.MembershipChanged{Change: domain.MemberRole, Participant: *p})
	s.logger.Info().Str("participant", string(p.ID)).Msg("host role assigned")
}

// handoffLocked runs when the host is gone for good: the earliest-joined
// connected guest takes over, and without guests the session ends.
func (s *Session) handoffLocked() {
	s.host = ""
	next := s.members.first(func(p *domain.Participant) bool {
		return p.Role == domain.RoleGuest && p.Conn == domain.ConnConnected
	})
	if next == nil {
		next = s.members.first(func(p *domain.Participant) bool { return p.Role == domain.RoleGuest })
	}
	if next == nil {
		s.endLocked("host left")
		return
	}
	s.promoteLocked(next)
}

func (s *Session) SetAdmissionPolicy(actor domain.ParticipantID, policy domain.AdmissionPolicy) error {
	if !policy.Valid() {
		return fmt.Errorf("%w: admission policy %q", domain.ErrInvalidTransition, policy)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return err
	}
	s.policy = policy
	return nil
}

// End closes the meeting for everyone.
func (s *Session) End(actor domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return err
	}
	s.endLocked("ended by host")
	return nil
}

// Terminate ends the session without a host decision (operator or shutdown).
func (s *Session) Terminate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(reason)
}

// TerminateIfIdle ends a session nobody has entered yet. It reports whether
// the session ended.
func (s *Session) TerminateIfIdle(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != domain.LifecycleLobby || s.members.len() > 0 {
		return false
	}
	s.endLocked(reason)
	return true
}

func (s *Session) endLocked(reason string) {
	if s.lifecycle == domain.LifecycleEnded {
		return
	}
	s.lifecycle = domain.LifecycleEnded
	now := s.opts.Now()
	s.endedAt = &now

	for _, req := range s.pendingLocked() {
		s.resolveLocked(s.admissions[req.ParticipantID], domain.DecisionDenied, "meeting ended")
	}
	for pid, t := range s.grace {
		t.Stop()
		delete(s.grace, pid)
	}
	if s.presenter != "" {
		s.presenter = ""
		s.publish(domain.PresenterChanged{})
	}
	s.teardownRecordingLocked()
	s.bus.closeAll(domain.ErrSessionEnded)

	s.logger.Info().Str("reason", reason).Msg("session ended")
	if s.opts.OnEnded != nil {
		go s.opts.OnEnded(s.id)
	}
}

func (s *Session) requireHostLocked(actor domain.ParticipantID) error {
	if s.lifecycle == domain.LifecycleEnded {
		return fmt.Errorf("%w: session %s has ended", domain.ErrSessionNotActive, s.id)
	}
	if actor == "" || actor != s.host {
		return fmt.Errorf("%w: %s is not the host", domain.ErrForbidden, actor)
	}
	return nil
}

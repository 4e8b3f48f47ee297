package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionManager owns the live meetings. Sessions share nothing; the map is
// only guarded for lookup and insert.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*meeting.Session
	opts     meeting.Options
}

func NewSessionManager(opts meeting.Options) *SessionManager {
	m := &SessionManager{sessions: make(map[domain.SessionID]*meeting.Session)}
	onEnded := opts.OnEnded
	opts.OnEnded = func(id domain.SessionID) {
		m.forget(id)
		if onEnded != nil {
			onEnded(id)
		}
	}
	m.opts = opts
	return m
}

// Create starts a new session with a generated id. An invalid policy falls
// back to the configured default.
func (m *SessionManager) Create(policy domain.AdmissionPolicy) *meeting.Session {
	opts := m.opts
	if policy.Valid() {
		opts.AdmissionPolicy = policy
	}
	s := meeting.New(domain.NewSessionID(), opts)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	log.Info().Str("module", "app.sessions").Str("session", string(s.ID())).Msg("session created")
	return s
}

func (m *SessionManager) GetOrCreate(id domain.SessionID) *meeting.Session {
	s, _ := m.Acquire(id)
	return s
}

// Acquire is GetOrCreate that also reports whether the session is new.
func (m *SessionManager) Acquire(id domain.SessionID) (*meeting.Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s, false
	}
	s = meeting.New(id, m.opts)
	m.sessions[id] = s
	log.Info().Str("module", "app.sessions").Str("session", string(id)).Msg("session created on join")
	return s, true
}

// Discard drops a session nobody has entered, such as one created by a
// join that was then rejected.
func (m *SessionManager) Discard(id domain.SessionID) bool {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || !s.TerminateIfIdle("discarded before first join") {
		return false
	}
	m.forget(id)
	return true
}

func (m *SessionManager) Get(id domain.SessionID) (*meeting.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return s, nil
}

// List returns live sessions, oldest first.
func (m *SessionManager) List() []domain.SessionInfo {
	m.mu.RLock()
	all := make([]*meeting.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]domain.SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stop ends the session for everyone; it leaves the map once it reports
// Ended.
func (m *SessionManager) Stop(id domain.SessionID, reason string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Terminate(reason)
	m.forget(id)
	return nil
}

func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	all := make([]*meeting.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	for _, s := range all {
		s.Terminate("server shutdown")
	}
	log.Info().Str("module", "app.sessions").Int("count", len(all)).Msg("all sessions terminated")
}

func (m *SessionManager) forget(id domain.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.Info().Lifecycle == domain.LifecycleEnded {
		delete(m.sessions, id)
		log.Info().Str("module", "app.sessions").Str("session", string(id)).Msg("session removed")
	}
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

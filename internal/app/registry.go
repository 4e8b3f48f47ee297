package app

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type clientEntry struct {
	Session domain.SessionID
	Signal  core.SignalConnection
	Media   core.MediaConnection
	Cancel  context.CancelFunc
	// stopStream ends the event pump of the current session binding.
	stopStream context.CancelFunc
}

// Registry maps a client token to its live connections and the meeting it
// takes part in. The participant id is the client id.
type Registry struct {
	mu      sync.RWMutex
	clients map[core.ClientID]*clientEntry
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[core.ClientID]*clientEntry)}
}

// BindSignal attaches a fresh control channel. A previous channel of the
// same client is cancelled; the meeting binding survives so the client can
// resume.
func (r *Registry) BindSignal(cid core.ClientID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	e, ok := r.clients[cid]
	if !ok {
		e = &clientEntry{}
		r.clients[cid] = e
	}
	prev := e.Cancel
	e.Signal = sig
	e.Cancel = cancel
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
	log.Info().Str("module", "app.registry").Str("client", string(cid)).Msg("bound signal")
}

func (r *Registry) Signal(cid core.ClientID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.clients[cid]; ok && e.Signal != nil {
		return e.Signal, true
	}
	return nil, false
}

// BindSession records the meeting the client joined. Moving to another
// meeting stops the event pump of the previous one.
func (r *Registry) BindSession(cid core.ClientID, sid domain.SessionID) {
	r.mu.Lock()
	e, ok := r.clients[cid]
	if !ok {
		e = &clientEntry{}
		r.clients[cid] = e
	}
	var stop context.CancelFunc
	if e.Session != sid {
		stop = e.stopStream
		e.stopStream = nil
	}
	e.Session = sid
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
	log.Info().Str("module", "app.registry").Str("client", string(cid)).Str("session", string(sid)).Msg("bound session")
}

// BindStream registers the cancel func of the client's event pump, replacing
// (and stopping) any previous one.
func (r *Registry) BindStream(cid core.ClientID, stop context.CancelFunc) bool {
	r.mu.Lock()
	e, ok := r.clients[cid]
	if !ok || e.Session == "" {
		r.mu.Unlock()
		return false
	}
	prev := e.stopStream
	e.stopStream = stop
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
	return true
}

func (r *Registry) SessionOf(cid core.ClientID) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[cid]
	if !ok || e.Session == "" {
		return "", false
	}
	return e.Session, true
}

// ClearSession drops the meeting binding and stops its event pump.
func (r *Registry) ClearSession(cid core.ClientID) {
	r.mu.Lock()
	e, ok := r.clients[cid]
	var stop context.CancelFunc
	if ok {
		stop = e.stopStream
		e.Session = ""
		e.stopStream = nil
	}
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
	log.Info().Str("module", "app.registry").Str("client", string(cid)).Msg("removed session association")
}

// BindMedia swaps the media connection and returns the previous one for the
// caller to close.
func (r *Registry) BindMedia(cid core.ClientID, mc core.MediaConnection) core.MediaConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[cid]
	if !ok {
		e = &clientEntry{}
		r.clients[cid] = e
	}
	prev := e.Media
	e.Media = mc
	return prev
}

func (r *Registry) Media(cid core.ClientID) (core.MediaConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.clients[cid]; ok && e.Media != nil {
		return e.Media, true
	}
	return nil, false
}

// DetachMedia clears mc only if it is still the bound connection.
func (r *Registry) DetachMedia(cid core.ClientID, mc core.MediaConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[cid]; ok && e.Media == mc {
		e.Media = nil
		return true
	}
	return false
}

// ClientsOf lists the clients bound to a meeting.
func (r *Registry) ClientsOf(sid domain.SessionID) []core.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ClientID, 0)
	for cid, e := range r.clients {
		if e.Session == sid {
			out = append(out, cid)
		}
	}
	return out
}

// Unbind forgets the client. sig guards against a stale channel unbinding a
// newer one; nil unbinds unconditionally.
func (r *Registry) Unbind(cid core.ClientID, sig core.SignalConnection) bool {
	r.mu.Lock()
	e, ok := r.clients[cid]
	if !ok || (sig != nil && e.Signal != sig) {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, cid)
	r.mu.Unlock()
	if e.stopStream != nil {
		e.stopStream()
	}
	log.Info().Str("module", "app.registry").Str("client", string(cid)).Msg("unbind client")
	return true
}

func (r *Registry) Cancel(cid core.ClientID) bool {
	r.mu.RLock()
	e, ok := r.clients[cid]
	var cancel context.CancelFunc
	if ok {
		cancel = e.Cancel
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if cancel != nil {
		cancel()
	}
	log.Info().Str("module", "app.registry").Str("client", string(cid)).Msg("canceled client")
	return true
}

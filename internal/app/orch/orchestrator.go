// Package orch translates client connections into meeting operations. The
// participant id of a client is its client token.
package orch

import (
	"fmt"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Orchestrator struct {
	Registry *app.Registry
	Sessions *app.SessionManager
}

func ParticipantOf(cid core.ClientID) domain.ParticipantID {
	return domain.ParticipantID(cid)
}

// current resolves the meeting the client is bound to.
func (o *Orchestrator) current(cid core.ClientID) (*meeting.Session, domain.ParticipantID, error) {
	sid, ok := o.Registry.SessionOf(cid)
	if !ok {
		return nil, "", fmt.Errorf("%w: client is not in a session", domain.ErrNotFound)
	}
	s, err := o.Sessions.Get(sid)
	if err != nil {
		o.Registry.ClearSession(cid)
		return nil, "", err
	}
	return s, ParticipantOf(cid), nil
}

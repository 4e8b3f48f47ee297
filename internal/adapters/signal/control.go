package signal

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	_ = ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	cid core.ClientID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type        string              `json:"type"`
		Client      core.ClientID       `json:"client"`
		Session     domain.SessionID    `json:"session,omitempty"`
		Participant *domain.Participant `json:"participant,omitempty"`
	}{
		Type:   "whoami",
		Client: cid,
	}
	if sid, p, ok := ctl.Orch.Whoami(cid); ok {
		resp.Session = sid
		resp.Participant = &p
	}
	_ = ctl.sendJSON(conn, resp)
}

package signal

import (
	"context"

	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	cid core.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Session string `json:"session"`
		Name    string `json:"name"`
		After   uint64 `json:"after,omitempty"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(cid) {
		log.Warn().Str("module", "signal").Str("client", string(cid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited", nil)
		return
	}

	res, err := ctl.Orch.JoinSession(cid, domain.SessionID(p.Session), p.Name)
	if err != nil {
		ctl.reply(conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("client", string(cid)).Str("session", p.Session).Bool("pending", res.Pending).Msg("join")

	if res.Pending {
		_ = ctl.sendJSON(conn, struct {
			Type    string                  `json:"type"`
			Session string                  `json:"session"`
			Request domain.AdmissionRequest `json:"request"`
		}{"pending_admission", p.Session, res.Request})
		go ctl.awaitAdmission(ctx, cid, conn)
		return
	}
	ctl.sendJoined(conn, p.Session, res.Participant)
	ctl.startStream(ctx, cid, conn, p.After)
}

func (ctl *SignalWSController) sendJoined(conn *WsSignalConn, session string, p domain.Participant) {
	_ = ctl.sendJSON(conn, struct {
		Type        string             `json:"type"`
		Session     string             `json:"session"`
		Participant domain.Participant `json:"participant"`
	}{"joined", session, p})
}

// awaitAdmission parks until the host decides, then either streams the
// meeting or reports the terminal decision.
func (ctl *SignalWSController) awaitAdmission(ctx context.Context, cid core.ClientID, conn *WsSignalConn) {
	req, err := ctl.Orch.AwaitAdmission(ctx, cid)
	if err != nil {
		if ctx.Err() == nil {
			ctl.reply(conn, err)
		}
		return
	}
	_ = ctl.sendJSON(conn, struct {
		Type     string          `json:"type"`
		Decision domain.Decision `json:"decision"`
		Reason   string          `json:"reason,omitempty"`
	}{"admission", req.Decision, req.Reason})
	if req.Decision != domain.DecisionAllowed {
		return
	}
	if sid, p, ok := ctl.Orch.Whoami(cid); ok {
		ctl.sendJoined(conn, string(sid), p)
	}
	ctl.startStream(ctx, cid, conn, 0)
}

func (ctl *SignalWSController) handleLeave(
	cid core.ClientID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("client", string(cid)).Msg("leave")
	if err := ctl.Orch.Leave(cid); err != nil {
		ctl.reply(conn, err)
		return
	}
	_ = ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}

func (ctl *SignalWSController) handleRespond(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		Participant domain.ParticipantID `json:"participant"`
		Decision    domain.Decision      `json:"decision"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	ctl.reply(conn, ctl.Orch.RespondAdmission(cid, p.Participant, p.Decision))
}

func (ctl *SignalWSController) handlePolicy(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		Policy domain.AdmissionPolicy `json:"policy"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	ctl.reply(conn, ctl.Orch.SetAdmissionPolicy(cid, p.Policy))
}

func (ctl *SignalWSController) handlePresent(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		Want bool `json:"want"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	res, err := ctl.Orch.SetPresenter(cid, p.Want)
	if err != nil {
		ctl.reply(conn, err)
		return
	}
	resp := struct {
		Type    string                `json:"type"`
		Result  meeting.PresentResult `json:"result"`
		Message string                `json:"message,omitempty"`
	}{Type: "present_result", Result: res}
	if res == meeting.PresentBusy {
		resp.Message = domain.ErrBusy.Error()
	}
	_ = ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleRecord(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		Want bool `json:"want"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	_, err := ctl.Orch.SetRecording(cid, p.Want)
	ctl.reply(conn, err)
}

func (ctl *SignalWSController) handleMedia(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		Mic    bool `json:"mic"`
		Cam    bool `json:"cam"`
		Screen bool `json:"screen"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	sid, _, ok := ctl.Orch.Whoami(cid)
	if !ok {
		ctl.sendError(conn, "not_found", nil)
		return
	}
	flags := domain.MediaFlags{Mic: p.Mic, Camera: p.Cam, Screen: p.Screen}
	ctl.reply(conn, ctl.Orch.OnMediaFlagsChanged(sid, domain.ParticipantID(cid), flags))
}

func (ctl *SignalWSController) handleHand(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		Raised bool `json:"raised"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	ctl.reply(conn, ctl.Orch.RaiseHand(cid, p.Raised))
}

type targetPayload struct {
	Participant domain.ParticipantID `json:"participant"`
}

func (ctl *SignalWSController) handleTransferHost(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p targetPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	ctl.reply(conn, ctl.Orch.TransferHost(cid, p.Participant))
}

func (ctl *SignalWSController) handleRemove(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p targetPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if err := ctl.Orch.RemoveParticipant(cid, p.Participant); err != nil {
		ctl.reply(conn, err)
		return
	}
	if sig, ok := ctl.Orch.Registry.Signal(core.ClientID(p.Participant)); ok {
		_ = ctl.sendJSON(sig, map[string]any{
			"type":   "removed",
			"reason": "removed by host",
		})
	}
}

func (ctl *SignalWSController) handleResume(ctx context.Context, cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p struct {
		After uint64 `json:"after"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	ctl.startStream(ctx, cid, conn, p.After)
}

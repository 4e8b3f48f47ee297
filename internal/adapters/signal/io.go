package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ClientID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", string(cid)).Msg("readPump closing")
		c.Close()
		cancel()
		ctl.Orch.OnSignalClosed(cid, c)
	}()

	for {
		if ctx.Err() != nil {
			log.Info().Str("module", "signal").Str("client", string(cid)).Msg("readPump ctx done")
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("client", string(cid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, cid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ClientID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload", err)
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, cid, c, data)
	case "leave":
		ctl.handleLeave(cid, c)
	case "withdraw":
		ctl.reply(c, ctl.Orch.WithdrawEntry(cid))
	case "respond":
		ctl.handleRespond(cid, c, data)
	case "policy":
		ctl.handlePolicy(cid, c, data)
	case "present":
		ctl.handlePresent(cid, c, data)
	case "force_stop_present":
		ctl.reply(c, ctl.Orch.ForceStopPresenting(cid))
	case "record":
		ctl.handleRecord(cid, c, data)
	case "media":
		ctl.handleMedia(cid, c, data)
	case "hand":
		ctl.handleHand(cid, c, data)
	case "transfer_host":
		ctl.handleTransferHost(cid, c, data)
	case "remove":
		ctl.handleRemove(cid, c, data)
	case "end":
		ctl.reply(c, ctl.Orch.EndSession(cid))
	case "resume":
		ctl.handleResume(ctx, cid, c, data)
	case "offer":
		ctl.handleOffer(ctx, cid, c, data)
	case "candidate":
		ctl.handleCandidate(cid, c, data)
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(cid, c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown_type", nil)
	}
}

// decode unmarshals a typed payload, answering bad_payload on failure.
func (ctl *SignalWSController) decode(c *WsSignalConn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad payload")
		ctl.sendError(c, "bad_payload", err)
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return err
	}
	return c.TrySend(b)
}

type errorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, code string, err error) {
	msg := errorMessage{Type: "error", Error: code}
	if err != nil {
		msg.Message = err.Error()
	}
	_ = ctl.sendJSON(c, msg)
}

// reply reports a failed operation; success is visible on the event stream.
func (ctl *SignalWSController) reply(c core.SignalConnection, err error) {
	if err == nil {
		return
	}
	log.Debug().Err(err).Str("module", "signal").Msg("operation rejected")
	ctl.sendError(c, domain.Code(err), err)
}

package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type snapshotMessage struct {
	Type     string           `json:"type"`
	Snapshot *domain.Snapshot `json:"snapshot"`
}

type eventMessage struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
}

// startStream replaces the client's event pump with one starting after the
// given sequence number.
func (ctl *SignalWSController) startStream(ctx context.Context, cid core.ClientID, conn *WsSignalConn, after uint64) {
	sub, err := ctl.Orch.Subscribe(cid, after)
	if err != nil {
		ctl.reply(conn, err)
		return
	}
	sctx, stop := context.WithCancel(ctx)
	if !ctl.Orch.Registry.BindStream(cid, stop) {
		stop()
		sub.Close()
		return
	}
	go ctl.pump(sctx, cid, conn, sub, after)
}

// pump forwards one subscription to the socket. A kicked subscription is
// resumed from the last delivered sequence number; the cursor drops repeats.
func (ctl *SignalWSController) pump(ctx context.Context, cid core.ClientID, conn core.SignalConnection, sub *meeting.Subscription, after uint64) {
	defer func() { sub.Close() }()
	sid := sub.SessionID()
	logger := log.With().Str("module", "signal").Str("client", string(cid)).Str("session", string(sid)).Logger()

	cur := meeting.NewCursor(sid, after)
	if !ctl.sendSnapshot(conn, sub, &cur) {
		return
	}

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, domain.ErrSlowSubscriber):
				logger.Warn().Uint64("last", cur.Last()).Msg("stream resumed after backpressure")
				sub.Close()
				if sub, err = ctl.Orch.Subscribe(cid, cur.Last()); err != nil {
					ctl.reply(conn, err)
					return
				}
				if !ctl.sendSnapshot(conn, sub, &cur) {
					return
				}
				continue
			case errors.Is(err, domain.ErrSessionEnded):
				_ = ctl.sendJSON(conn, map[string]any{"type": "session_ended", "session": sid})
				ctl.Orch.OnStreamEnded(cid, sid)
			default:
				logger.Debug().Err(err).Msg("stream closed")
			}
			return
		}
		if !cur.Accept(ev) {
			continue
		}
		if err := ctl.sendJSON(conn, eventMessage{Type: "event", Event: ev}); err != nil {
			// A client that cannot take events in order has to resync.
			logger.Warn().Err(err).Uint64("seq", ev.Seq).Msg("socket backpressure, closing")
			conn.Close()
			return
		}
	}
}

// sendSnapshot forwards the subscription's snapshot, if any, and moves the
// cursor to it.
func (ctl *SignalWSController) sendSnapshot(conn core.SignalConnection, sub *meeting.Subscription, cur **meeting.Cursor) bool {
	snap := sub.Snapshot()
	if snap == nil {
		return true
	}
	*cur = meeting.NewCursor(sub.SessionID(), snap.Seq)
	if err := ctl.sendJSON(conn, snapshotMessage{Type: "snapshot", Snapshot: snap}); err != nil {
		conn.Close()
		return false
	}
	return true
}

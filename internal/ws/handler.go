package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/hub"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/table"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	// Scoreboards sit idle for whole hands; the read deadline only catches dead peers.
	readTimeout = 10 * time.Minute
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *table.Table, 1)
		h.Inbox() <- hub.OpenTable{Code: code, Reply: reply}
		tb := <-reply
		if tb == nil {
			http.Error(w, "table not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan table.Outgoing, 8)
		clientID := randID(6)
		log := log.With(zap.String("table", code), zap.String("client", clientID))

		if !tb.Send(r.Context(), table.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusTryAgainLater, "table closed")
			return
		}
		defer tb.Send(context.Background(), table.Leave{ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for o := range out {
				if err := write(writeCtx, conn, toServerMessage(o)); err != nil {
					log.Debug("write failed", zap.Error(err))
				}
			}
			// Table dropped us: slow reader or shutdown.
			conn.Close(websocket.StatusTryAgainLater, "table closed")
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(r.Context(), conn, types.NewError("bad json"))
				continue
			}

			msg, ok := toTableMsg(clientID, cm)
			if !ok {
				_ = write(r.Context(), conn, types.NewError("unknown type"))
				continue
			}
			if !tb.Send(r.Context(), msg) {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func toServerMessage(o table.Outgoing) types.ServerMessage {
	switch {
	case o.Snapshot != nil:
		return types.NewSnapshot(o.Snapshot.Version, o.Snapshot.Live, o.Snapshot.State)
	case o.Err != "":
		return types.NewError(o.Err)
	default:
		return types.NewNotice(o.Notice)
	}
}

func toTableMsg(clientID string, m types.ClientMessage) (table.Msg, bool) {
	cmd := func(c engine.Command) (table.Msg, bool) {
		return table.FromClient{ClientID: clientID, Cmd: c}, true
	}

	switch m.Type {
	case "addPlayer":
		return cmd(engine.Command{Type: engine.CmdAddPlayer, Name: m.Name})
	case "removePlayer":
		return cmd(engine.Command{Type: engine.CmdRemovePlayer, PlayerID: m.PlayerID})
	case "buildPlan":
		return cmd(engine.Command{Type: engine.CmdBuildPlan, Descending: m.Descending})
	case "appendAscending":
		return cmd(engine.Command{Type: engine.CmdAppendAscending})
	case "appendDescending":
		return cmd(engine.Command{Type: engine.CmdAppendDescending})
	case "setBid":
		return cmd(engine.Command{Type: engine.CmdSetBid, RoundID: m.RoundID, PlayerID: m.PlayerID, Bid: m.Bid})
	case "setOutcome":
		return cmd(engine.Command{Type: engine.CmdSetOutcome, RoundID: m.RoundID, PlayerID: m.PlayerID, OK: m.OK})
	case "lock":
		return cmd(engine.Command{Type: engine.CmdSetLocked, RoundID: m.RoundID, Locked: true})
	case "unlock":
		return cmd(engine.Command{Type: engine.CmdSetLocked, RoundID: m.RoundID, Locked: false})
	case "reset":
		return cmd(engine.Command{Type: engine.CmdReset})
	case "live":
		return table.SetLive{ClientID: clientID, On: m.On}, true
	case "saveCloud":
		return table.SaveCloud{ClientID: clientID}, true
	case "loadCloud":
		if m.GameID == "" {
			return nil, false
		}
		return table.LoadCloud{ClientID: clientID, GameID: m.GameID}, true
	default:
		return nil, false
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

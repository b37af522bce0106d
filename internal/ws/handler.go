package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/hub"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
	"github.com/DoyleJ11/piste-live-backend/internal/types"
	api "github.com/DoyleJ11/piste-live-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
)

// Handler streams tournament snapshots, and with ?match= the live timer of
// that match, to one viewer. Viewers never send commands over the socket.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		matchID := 0
		if raw := r.URL.Query().Get("match"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "match must be an integer", http.StatusBadRequest)
				return
			}
			matchID = id
		}

		t, err := h.Get(r.Context(), code)
		if err != nil {
			http.Error(w, "tournament not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := log.With(zap.String("tournament", code), zap.String("client", clientID))

		out := make(chan tournament.Snapshot, 8)
		select {
		case t.Inbox() <- tournament.Join{ClientID: clientID, Outbox: out}:
		case <-t.Done():
			conn.Close(websocket.StatusGoingAway, "tournament closed")
			return
		}
		defer leave(t, clientID)

		// Writer goroutine. It also owns the bout subscription, which starts
		// late when the viewer connects before the match is on a piste.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			var (
				runner *bout.Runner
				timer  chan bout.Snapshot
			)
			joinBout := func() {
				b, ok := t.Bout(matchID)
				if !ok {
					return
				}
				runner, timer = b, make(chan bout.Snapshot, 8)
				select {
				case b.Inbox() <- bout.Join{ClientID: clientID, Outbox: timer}:
				case <-b.Done():
					timer = nil
				}
			}
			defer func() {
				if runner == nil {
					return
				}
				select {
				case runner.Inbox() <- bout.Leave{ClientID: clientID}:
				case <-runner.Done():
				}
			}()

			if matchID != 0 {
				joinBout()
				if runner == nil {
					send(writeCtx, conn, api.ServerMessage{Type: "Error", Error: &api.ErrorBody{
						Code:    "BoutNotFound",
						Message: tournament.ErrNoBout.Error(),
						Detail:  strconv.Itoa(matchID),
					}})
				}
			}

			for {
				select {
				case snap, ok := <-out:
					if !ok {
						// Dropped as a slow client or the tournament stopped.
						conn.Close(websocket.StatusGoingAway, "stream closed")
						return
					}
					if matchID != 0 && runner == nil {
						joinBout()
					}
					state := types.Snapshot(snap)
					if !send(writeCtx, conn, api.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &state}) {
						return
					}
				case snap, ok := <-timer:
					if !ok {
						timer = nil // bout over; keep streaming the tournament
						continue
					}
					b := types.Bout(snap)
					if !send(writeCtx, conn, api.ServerMessage{Type: "BoutSnapshot", Version: snap.Version, Bout: &b}) {
						return
					}
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(writeCtx, readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm api.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				send(writeCtx, conn, errorMessage("InvalidRequest", "bad json"))
				continue
			}
			switch cm.Type {
			case "Ping":
				send(writeCtx, conn, api.ServerMessage{Type: "Pong"})
			case "Resync":
				snap := t.Snapshot()
				state := types.Snapshot(snap)
				send(writeCtx, conn, api.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &state})
				if b, ok := t.Bout(matchID); ok && matchID != 0 {
					bs := types.Bout(b.Snapshot())
					send(writeCtx, conn, api.ServerMessage{Type: "BoutSnapshot", Version: bs.Version, Bout: &bs})
				}
			default:
				send(writeCtx, conn, errorMessage("InvalidRequest", "unknown type"))
			}
		}
	}
}

func leave(t *tournament.Tournament, clientID string) {
	select {
	case t.Inbox() <- tournament.Leave{ClientID: clientID}:
	case <-t.Done():
	}
}

func errorMessage(code, msg string) api.ServerMessage {
	return api.ServerMessage{Type: "Error", Error: &api.ErrorBody{Code: code, Message: msg}}
}

func send(ctx context.Context, conn *websocket.Conn, msg api.ServerMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload) == nil
}

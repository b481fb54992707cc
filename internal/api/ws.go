package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/pathway/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	feedBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
}

// feedMessage is one frame on the profile feed.
type feedMessage struct {
	Type string `json:"type"`
	sessionResponse
}

// handleProfileFeed streams session snapshots over a WebSocket. The first
// frame is the current snapshot; a client that falls behind is disconnected.
func handleProfileFeed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an error response.
			slog.Debug("websocket upgrade failed", "error", err)
			return
		}

		send := make(chan session.Snapshot, feedBuffer)
		overflow := make(chan struct{})
		var overflowed bool
		stop := deps.Session.OnChange(func(snap session.Snapshot) {
			if overflowed {
				return
			}
			select {
			case send <- snap:
			default:
				overflowed = true
				close(overflow)
			}
		})

		done := make(chan struct{})
		go readPump(conn, done)
		writePump(conn, send, overflow, done)

		stop()
		conn.Close()
	}
}

// readPump discards client frames and keeps the read deadline fresh until
// the connection closes.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("profile feed closed unexpectedly", "error", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan session.Snapshot, overflow, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := feedMessage{Type: "session", sessionResponse: sessionBody(snap)}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-overflow:
			slog.Warn("profile feed client too slow, disconnecting")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
				time.Now().Add(writeWait))
			return
		case <-done:
			return
		}
	}
}

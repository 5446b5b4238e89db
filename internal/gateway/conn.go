// ABOUTME: Per-connection WebSocket handling: token gate, read loop, and the write sink.
// ABOUTME: Registration only happens after the token check passes.

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// frame is the wire shape of every event in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// handleWS upgrades the connection, validates the token, and runs the read
// loop until the client goes away.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != g.config.Auth.Token {
		g.logger.Warn("rejected connection with invalid token", "remote", r.RemoteAddr)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Error("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	connID := uuid.NewString()
	g.logger.Info("client connected", "conn_id", connID, "remote", r.RemoteAddr)

	g.registry.Register(connID)
	g.broadcaster.AttachSink(connID, newWSSink(conn, g.logger.With("conn_id", connID)))
	defer func() {
		g.broadcaster.DetachSink(connID)
		g.registry.Unregister(connID)
		conn.Close(websocket.StatusNormalClosure, "")
		g.logger.Info("client disconnected", "conn_id", connID)
	}()

	g.readLoop(r.Context(), connID, conn)
}

func (g *Gateway) readLoop(ctx context.Context, connID string, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				g.logger.Warn("read failed", "conn_id", connID, "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			g.broadcaster.EmitError(connID, "malformed event frame")
			continue
		}

		// Events run off the read loop so a long turn never blocks the
		// connection's inbound traffic.
		go g.dispatch(ctx, connID, f)
	}
}

// wsSink serializes event writes onto one WebSocket connection.
type wsSink struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func newWSSink(conn *websocket.Conn, logger *slog.Logger) *wsSink {
	return &wsSink{conn: conn, logger: logger}
}

func (s *wsSink) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("unserializable event payload", "event", event, "error", err)
		return
	}
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		s.logger.Error("frame encoding failed", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		s.logger.Warn("event write failed", "event", event, "error", err)
	}
}

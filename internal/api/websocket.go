package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/internal/agent"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512
)

// wsClient streams controller events to one websocket connection.
type wsClient struct {
	id      string
	server  *Server
	conn    *websocket.Conn
	events  <-chan agent.Event
	session string
	done    chan struct{}
}

// handleEvents upgrades the connection and streams every controller event as
// JSON. ?session=<id> limits the stream to one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closing:
		s.respondError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	default:
	}

	// Subscribe before the handshake completes so no event published after
	// the client sees the upgrade is missed.
	events, unsubscribe := s.agent.Events().Subscribe()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		unsubscribe()
		s.logger.Warn("Websocket upgrade failed.", zap.Error(err))
		return
	}

	c := &wsClient{
		id:      uuid.New().String(),
		server:  s,
		conn:    conn,
		events:  events,
		session: r.URL.Query().Get("session"),
		done:    make(chan struct{}),
	}
	s.logger.Info("Websocket client connected.", zap.String("client_id", c.id), zap.String("session_filter", c.session))

	s.clients.Add(2)
	go func() {
		defer s.clients.Done()
		defer unsubscribe()
		c.writePump()
	}()
	go func() {
		defer s.clients.Done()
		c.readPump()
	}()
}

// readPump drains control frames until the peer goes away.
func (c *wsClient) readPump() {
	defer close(c.done)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("Websocket client read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards events and keeps the connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.server.logger.Info("Websocket client disconnected.", zap.String("client_id", c.id))
	}()

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.closeWith(websocket.CloseGoingAway, "agent stopped")
				return
			}
			if c.session != "" && ev.SessionID != "" && ev.SessionID != c.session {
				continue
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				c.server.logger.Error("Failed to encode event", zap.String("event_type", string(ev.Type)), zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.server.closing:
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}

package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-xc-watch/internal/playback"
)

// WebSocket upgrader with CORS support
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// playerFrame is one message on the player bridge. The daemon sends
// command and snapshot frames; the web player sends event frames. Every
// frame carries the session ID it belongs to; event frames for a stale
// session are dropped.
type playerFrame struct {
	Type      string                `json:"type"` // command, event, snapshot
	SessionID string                `json:"session_id,omitempty"`
	Command   string                `json:"command,omitempty"`
	URL       string                `json:"url,omitempty"`
	Position  float64               `json:"position,omitempty"`
	Rate      float64               `json:"rate,omitempty"`
	Event     *playback.EngineEvent `json:"event,omitempty"`
	Snapshot  *playback.Snapshot    `json:"snapshot,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// playerHub bridges playback sessions to the web player. It implements
// playback.Engine by sending command frames to connected players; engine
// events flow back through event frames into the current session.
type playerHub struct {
	server *Server
	logger *slog.Logger

	mu        sync.RWMutex
	clients   map[*playerClient]struct{}
	sessionID string
	sessionN  uint64
}

func newPlayerHub(server *Server, logger *slog.Logger) *playerHub {
	return &playerHub{
		server:  server,
		logger:  logger,
		clients: make(map[*playerClient]struct{}),
	}
}

// nextSession rotates the bridge to a fresh session ID and returns it.
// Event frames stamped with an older ID no longer reach any session.
func (h *playerHub) nextSession() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionN++
	h.sessionID = fmt.Sprintf("session-%d", h.sessionN)
	return h.sessionID
}

// send stamps the frame with the current session ID and delivers it to all
// connected players. Delivery happens under the hub lock: unregister closes
// the client channel under the same lock, so a frame can never land on a
// closed channel.
func (h *playerHub) send(frame playerFrame) error {
	frame.Timestamp = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	frame.SessionID = h.sessionID
	if len(h.clients) == 0 {
		return fmt.Errorf("no player connected")
	}

	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			client.logger.Warn("Dropping frame - client channel full",
				"type", frame.Type,
				"command", frame.Command)
		}
	}
	return nil
}

func (h *playerHub) sendCommand(command string, frame playerFrame) error {
	frame.Type = "command"
	frame.Command = command
	return h.send(frame)
}

// playback.Engine implementation: each command becomes a frame driving the
// player's video element.

func (h *playerHub) Load(url string) error {
	return h.sendCommand("load", playerFrame{URL: url})
}

func (h *playerHub) Play() error {
	return h.sendCommand("play", playerFrame{})
}

func (h *playerHub) Pause() error {
	return h.sendCommand("pause", playerFrame{})
}

func (h *playerHub) SeekTo(seconds float64) error {
	return h.sendCommand("seek", playerFrame{Position: seconds})
}

func (h *playerHub) SetRate(rate float64) error {
	return h.sendCommand("rate", playerFrame{Rate: rate})
}

// Stop tolerates a missing player: teardown must succeed even after the
// player disconnected.
func (h *playerHub) Stop() error {
	h.sendCommand("stop", playerFrame{})
	return nil
}

// broadcastSnapshot pushes a session state snapshot to all players. Used
// as the session observer.
func (h *playerHub) broadcastSnapshot(snap playback.Snapshot) {
	h.send(playerFrame{Type: "snapshot", Snapshot: &snap})
}

// dispatchEvent routes an inbound event frame to the current session.
// Frames for any other session ID are dropped.
func (h *playerHub) dispatchEvent(sessionID string, ev playback.EngineEvent) {
	h.mu.RLock()
	current := h.sessionID
	h.mu.RUnlock()

	if sessionID != current {
		h.logger.Debug("Dropping event for stale session",
			"frame_session", sessionID,
			"current_session", current,
			"event", ev.Type)
		return
	}

	sess := h.server.currentSession()
	if sess == nil {
		return
	}
	sess.HandleEngineEvent(ev)
}

// playerClient represents one connected web player.
type playerClient struct {
	conn   *websocket.Conn
	send   chan playerFrame
	hub    *playerHub
	logger *slog.Logger
}

// handlePlayerSocket upgrades the connection and attaches the player to
// the bridge. A freshly connected player receives the current session
// snapshot so it can resume rendering state.
func (s *Server) handlePlayerSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &playerClient{
		conn:   conn,
		send:   make(chan playerFrame, 256),
		hub:    s.hub,
		logger: s.logger,
	}

	s.logger.Info("Player connected", "remote_addr", r.RemoteAddr)

	s.hub.register(client)

	go client.writePump()
	go client.readPump()

	if sess := s.currentSession(); sess != nil {
		snap := sess.Snapshot()
		client.sendFrame(playerFrame{
			Type:      "snapshot",
			SessionID: s.hub.currentSessionID(),
			Snapshot:  &snap,
			Timestamp: time.Now(),
		})
	}
}

func (h *playerHub) register(client *playerClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

// unregister removes the client and closes its send channel in one critical
// section. Idempotent: both pumps call it on the way out.
func (h *playerHub) unregister(client *playerClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

func (h *playerHub) currentSessionID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionID
}

func (c *playerClient) sendFrame(frame playerFrame) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("Failed to send frame - channel full", "type", frame.Type)
	}
}

// writePump handles sending frames to the player.
// Runs in a goroutine and manages connection cleanup on error.
func (c *playerClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
		c.logger.Debug("Player write pump stopped")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Error("Player write error", "error", err)
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("Player ping error", "error", err)
				return
			}
		}
	}
}

// readPump handles frames from the player: engine events stamped with the
// session they belong to.
func (c *playerClient) readPump() {
	defer func() {
		c.conn.Close()
		c.hub.unregister(c)
		c.logger.Debug("Player read pump stopped")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var frame playerFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("Player read error", "error", err)
			}
			return
		}

		if frame.Type == "event" && frame.Event != nil {
			c.hub.dispatchEvent(frame.SessionID, *frame.Event)
		} else {
			c.logger.Debug("Ignoring player frame", "type", frame.Type)
		}

		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

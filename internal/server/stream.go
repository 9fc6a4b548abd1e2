package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	ws "github.com/gorilla/websocket"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/pkg/streaming"
)

const (
	sendChSize     = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamConn pushes one player's snapshots to a WebSocket.
// Only writeLoop writes to conn.
type streamConn struct {
	conn     *ws.Conn
	playerID string
	send     chan []byte
	done     chan struct{} // closed when readLoop exits
	server   *Server
}

// GET /api/game/stream/{playerId}
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("WebSocket upgrade failed", "player", playerID, "error", err)
		return
	}

	snaps, cancel := s.deps.Sessions.Subscribe(playerID)
	defer cancel()

	c := &streamConn{
		conn:     conn,
		playerID: playerID,
		send:     make(chan []byte, sendChSize),
		done:     make(chan struct{}),
		server:   s,
	}

	if snap, err := s.deps.Sessions.Snapshot(playerID); err == nil {
		c.enqueueSnapshot(snap)
	}

	s.deps.Logger.Debug("stream opened", "player", playerID)
	go c.readLoop(r.Context())
	c.writeLoop(snaps)
	s.deps.Logger.Debug("stream closed", "player", playerID)
}

// writeLoop forwards snapshots and queued replies until the client goes away
// or the subscription is cancelled.
func (c *streamConn) writeLoop(snaps <-chan round.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-snaps:
			if !ok {
				c.write(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			data, err := encodeSnapshot(snap)
			if err != nil {
				c.server.deps.Logger.Warn("failed to encode snapshot", "player", c.playerID, "error", err)
				continue
			}
			if !c.write(ws.TextMessage, data) {
				return
			}
		case data := <-c.send:
			if !c.write(ws.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !c.write(ws.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *streamConn) write(msgType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.server.deps.Logger.Warn("WebSocket SetWriteDeadline error", "player", c.playerID, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		c.server.deps.Logger.Debug("WebSocket write error", "player", c.playerID, "error", err)
		return false
	}
	return true
}

// readLoop applies pose updates sent by the client.
func (c *streamConn) readLoop(ctx context.Context) {
	defer close(c.done)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				c.server.deps.Logger.Warn("WebSocket read error", "player", c.playerID, "error", err)
			}
			return
		}
		c.handleMessage(ctx, message)
	}
}

func (c *streamConn) handleMessage(ctx context.Context, message []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.reply(streaming.TypeError, streaming.ErrorPayload{Message: "invalid message"})
		return
	}

	switch env.Type {
	case streaming.TypePose:
		var p streaming.PosePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.reply(streaming.TypeError, streaming.ErrorPayload{For: env.Type, Message: "invalid pose"})
			return
		}
		// the new snapshot reaches the client through the subscription
		if _, err := c.server.deps.Sessions.UpdatePosition(ctx, c.playerID, p.Pose); err != nil {
			c.reply(streaming.TypeError, streaming.ErrorPayload{For: env.Type, Message: err.Error()})
			return
		}
		if data, err := streaming.Ack(env.Type); err == nil {
			c.enqueue(data)
		}
	default:
		c.reply(streaming.TypeError, streaming.ErrorPayload{For: env.Type, Message: "unknown message type"})
	}
}

func (c *streamConn) reply(msgType string, payload any) {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *streamConn) enqueueSnapshot(snap round.Snapshot) {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue drops the message when the client is not keeping up.
func (c *streamConn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.server.deps.Logger.Debug("stream send buffer full, dropping", "player", c.playerID)
	}
}

func encodeSnapshot(snap round.Snapshot) ([]byte, error) {
	msgType := streaming.TypeSnapshot
	if snap.Finished {
		msgType = streaming.TypeRoundFinished
	}
	return streaming.Encode(msgType, snap)
}

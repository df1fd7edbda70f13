package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hspbot/hspbot/booking/events"
)

// WebSocket timeout constants following Gorilla best practices
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// clientSendBuffer bounds queued outbound events per client; a stalled
	// client drops events rather than blocking the broadcaster
	clientSendBuffer = 64
)

// Client is one websocket connection. It implements events.Listener so the
// broadcaster can push booking progress straight to the browser.
type Client struct {
	server    *Server
	conn      *websocket.Conn
	sendMsg   chan interface{}
	id        string
	closeOnce sync.Once
}

// inboundMessage is what the UI sends over the socket
type inboundMessage struct {
	Type        string `json:"type"`
	BookingID   int64  `json:"bookingId"`
	IntervalMS  int    `json:"intervalMs"`
	MaxAttempts int    `json:"maxAttempts"`
	JobID       string `json:"jobId"`
}

// Deliver queues an event for this client. Never blocks: a full buffer
// drops the event, the UI resyncs via the REST API.
func (c *Client) Deliver(ev events.Event) {
	select {
	case c.sendMsg <- ev:
	default:
		c.server.log.Warnw("Client send buffer full, dropping event",
			"client_id", c.id,
			"kind", ev.Kind)
	}
}

// readPump consumes inbound messages until the connection drops
func (c *Client) readPump() {
	defer func() {
		c.server.wg.Done()
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.log.Warnw("WebSocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.server.log.Warnw("Malformed websocket message", "client_id", c.id, "error", err)
			continue
		}
		c.routeMessage(msg)
	}
}

// routeMessage dispatches inbound UI commands
func (c *Client) routeMessage(msg inboundMessage) {
	switch msg.Type {
	case "startPolling":
		interval := time.Duration(msg.IntervalMS) * time.Millisecond
		jobID, err := c.server.scheduler.StartManualPolling(msg.BookingID, interval, msg.MaxAttempts)
		if err != nil {
			c.sendJSON(map[string]interface{}{
				"type":  "error",
				"error": err.Error(),
			})
			return
		}
		c.sendJSON(map[string]interface{}{
			"type":      "pollingAccepted",
			"jobId":     jobID,
			"bookingId": msg.BookingID,
		})

	case "stopPolling":
		if err := c.server.scheduler.Cancel(msg.JobID); err != nil {
			c.sendJSON(map[string]interface{}{
				"type":  "error",
				"jobId": msg.JobID,
				"error": err.Error(),
			})
		}

	case "ping":
		// Deadline already refreshed by the read

	default:
		c.server.log.Debugw("Unknown message type", "type", msg.Type, "client_id", c.id)
	}
}

// writePump flushes queued events and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.server.wg.Done()
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return

		case msg, ok := <-c.sendMsg:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.log.Debugw("Message write error", "client_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues a message without blocking
func (c *Client) sendJSON(data interface{}) {
	select {
	case c.sendMsg <- data:
	default:
		c.server.log.Warnw("Failed to queue message (channel full)", "client_id", c.id)
	}
}

// close tears the connection down exactly once. The send channel stays open
// so late Deliver calls from an in-flight broadcast cannot panic; the pumps
// exit when the connection drops.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

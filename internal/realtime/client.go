package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxFrameBytes  = 4096
	sendQueueDepth = 32
)

// Client is one websocket connection bound to an authenticated user.
//
// gorilla/websocket allows one concurrent writer, so every write goes through
// writePump: other goroutines only enqueue. The queue is bounded and enqueue
// never blocks, which keeps one stalled browser from holding up delivery to
// everyone else.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueDepth),
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendFrame(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return
	}
	c.enqueue(msg)
}

// writePump drains the send queue and pings every pingPeriod. It exits when
// the queue is closed or a write fails, and always closes the connection.
func (c *Client) writePump(registry *Registry) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		registry.Unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump handles client frames until the connection fails.
//
// The connection is already bound to the authenticated user, so client
// frames carry no authority. userConnected is checked against that user and
// the relay events are ignored: the services publish those themselves after
// the matching write commits.
func (c *Client) readPump(registry *Registry, logger *slog.Logger) {
	defer registry.Unregister(c)

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed",
					slog.String("user_id", c.userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.handleFrame(data, logger)
	}
}

func (c *Client) handleFrame(data []byte, logger *slog.Logger) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendFrame(EventError, map[string]string{"message": "malformed frame"})
		return
	}

	switch frame.Event {
	case EventUserConnected:
		var claimed string
		if err := json.Unmarshal(frame.Data, &claimed); err != nil || claimed != c.userID {
			c.sendFrame(EventError, map[string]string{"message": "userConnected does not match the authenticated user"})
		}
	case EventNewFoodListing, EventDonationConfirmed, EventDonationCompleted:
		logger.Debug("ignoring client relay event",
			slog.String("user_id", c.userID),
			slog.String("event", frame.Event),
		)
	default:
		c.sendFrame(EventError, map[string]string{"message": "unknown event " + frame.Event})
	}
}

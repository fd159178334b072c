package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// SDP offers can run to tens of kilobytes.
	maxMessageSize = 64 * 1024

	sendBufferSize = 64
)

// EventHandler receives every inbound event from one connection.
type EventHandler func(client Client, event Event)

// CloseHandler runs once when a connection goes away for any reason.
type CloseHandler func(client Client)

// WSClient is the gorilla/websocket implementation of Client. A read pump
// feeds inbound events to the handler; a write pump drains the send buffer
// and keeps the connection alive with pings.
type WSClient struct {
	userID    int64
	conn      *websocket.Conn
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	onEvent   EventHandler
	onClose   CloseHandler
}

func NewWSClient(userID int64, conn *websocket.Conn, onEvent EventHandler, onClose CloseHandler) *WSClient {
	return &WSClient{
		userID:  userID,
		conn:    conn,
		send:    make(chan Event, sendBufferSize),
		done:    make(chan struct{}),
		onEvent: onEvent,
		onClose: onClose,
	}
}

func (c *WSClient) UserID() int64 { return c.userID }

// Send is safe to call on a handle that was already closed, for example one
// held across a reconnect that replaced it in the registry; it then reports
// the drop instead of delivering.
func (c *WSClient) Send(event Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Close signals shutdown. The send channel stays open so that concurrent
// senders can never hit a closed channel; the write pump observes done and
// exits after a close frame.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *WSClient) Run() {
	go c.writePump()
	go c.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.onClose(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Int64("userId", c.userID).Msg("websocket read error")
			}
			return
		}

		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Warn().Err(err).Int64("userId", c.userID).Msg("dropping malformed inbound event")
			continue
		}

		c.onEvent(c, event)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.writeEvent(event); err != nil {
				return
			}

			// Drain whatever else is already buffered.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.writeEvent(<-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) writeEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Int64("userId", c.userID).Msg("failed to encode outbound event")
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

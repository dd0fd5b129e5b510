package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	// sendBuffer is how many frames a client may fall behind before it is dropped.
	sendBuffer = 256
)

// Client is one dashboard websocket attached to a hub.
type Client struct {
	ID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	backlog func() []Message
}

// NewClient attaches conn to the hub. backlog, when set, is read while the
// hub registers the client and its frames are queued ahead of any live
// broadcast, so nothing published in between is missed. It returns nil once
// the hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn, backlog func() []Message) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		backlog: backlog,
	}
	select {
	case hub.register <- c:
		return c
	case <-hub.quit:
		return nil
	}
}

// Run serves the connection and blocks until either side closes it.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump only exists to notice disconnects and answer pongs; dashboards
// never send data frames.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes. Frames queued while a write was in flight are
// flushed in the same pass.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
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
			if err := c.write(msg); err != nil {
				return
			}
			for n := len(c.send); n > 0; n-- {
				next, ok := <-c.send
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.write(next); err != nil {
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

func (c *Client) write(msg Message) error {
	return c.conn.WriteMessage(websocket.TextMessage, msg.Data)
}

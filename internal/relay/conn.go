package relay

import (
	"time"

	"github.com/BioHazard786/Roomdrop/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP fits comfortably.
	maxMessageSize = 64 * 1024

	sendQueueSize = 256
)

// Conn is one websocket client of the hub.
type Conn struct {
	id     string
	remote string
	hub    *Hub
	ws     *websocket.Conn

	// send is drained by WritePump. Only the hub writes to or closes it.
	send chan *signaling.Frame
}

func newConn(hub *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		remote: ws.RemoteAddr().String(),
		hub:    hub,
		ws:     ws,
		send:   make(chan *signaling.Frame, sendQueueSize),
	}
}

// ReadPump pumps requests from the websocket connection to the hub. There
// is at most one reader per connection.
func (c *Conn) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req signaling.Request
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("conn", c.id).Msg("read failed")
			}
			return
		}

		select {
		case c.hub.requests <- inbound{conn: c, req: &req}:
		case <-c.hub.quit:
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection. There is
// at most one writer per connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				c.hub.log.Debug().Err(err).Str("conn", c.id).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

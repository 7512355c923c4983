package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/config"
	"github.com/BioHazard786/Roomdrop/internal/dns"
	"github.com/BioHazard786/Roomdrop/internal/room"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is a Relay backed by a websocket connection to a relay server.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration

	outgoing chan *Request
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	waiters map[string]chan *Frame
	subs    map[string]*subscription
	closed  bool
}

// Dial connects to the relay server at serverURL. timeout bounds each
// request; zero means config.DefaultRequestTimeout.
func Dial(ctx context.Context, serverURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = dns.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	c := &Client{
		conn:     conn,
		timeout:  timeout,
		outgoing: make(chan *Request, 16),
		done:     make(chan struct{}),
		waiters:  make(map[string]chan *Frame),
		subs:     make(map[string]*subscription),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump routes acks to their waiting request and events to subscriptions.
func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("relay connection closed", "error", err)
			}
			return
		}

		switch frame.Type {
		case FrameAck:
			c.mu.Lock()
			waiter, ok := c.waiters[frame.ID]
			delete(c.waiters, frame.ID)
			c.mu.Unlock()
			if ok {
				waiter <- &frame
			}

		case FrameEvent:
			if frame.Message == nil {
				continue
			}
			c.mu.Lock()
			sub := c.subs[frame.RoomID]
			c.mu.Unlock()
			if sub != nil {
				sub.push(*frame.Message)
			}

		default:
			slog.Debug("ignoring relay frame", "type", frame.Type)
		}
	}
}

// writePump writes requests to the connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case req := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(req); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// shutdown marks the client closed and releases every waiter and subscription.
func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, waiter := range c.waiters {
		close(waiter)
		delete(c.waiters, id)
	}
	for roomID, sub := range c.subs {
		sub.cancel()
		delete(c.subs, roomID)
	}
}

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) request(ctx context.Context, req *Request) (*Frame, error) {
	req.ID = uuid.NewString()
	waiter := make(chan *Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrRelayUnavailable
	}
	c.waiters[req.ID] = waiter
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.waiters, req.ID)
		c.mu.Unlock()
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.outgoing <- req:
	case <-c.done:
		forget()
		return nil, ErrRelayUnavailable
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-timer.C:
		forget()
		return nil, fmt.Errorf("%w: %s timed out", ErrRelayUnavailable, req.Op)
	}

	select {
	case frame, ok := <-waiter:
		if !ok {
			return nil, ErrRelayUnavailable
		}
		if !frame.OK {
			return nil, fmt.Errorf("%s %s: %w", req.Op, req.RoomID, codeError(frame.Error))
		}
		return frame, nil
	case <-c.done:
		forget()
		return nil, ErrRelayUnavailable
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-timer.C:
		forget()
		return nil, fmt.Errorf("%w: %s timed out", ErrRelayUnavailable, req.Op)
	}
}

func (c *Client) Publish(ctx context.Context, roomID string, msg Message) (Message, error) {
	frame, err := c.request(ctx, &Request{Op: OpPublish, RoomID: roomID, Message: &msg})
	if err != nil {
		return Message{}, err
	}
	if frame.Message == nil {
		return Message{}, errors.New("publish ack without message")
	}
	return *frame.Message, nil
}

func (c *Client) Subscribe(ctx context.Context, roomID string, role room.Role, onMessage func(Message)) (func(), error) {
	sub := newSubscription(roomID, role, onMessage, func(order int64) {
		c.consume(roomID, order)
	})

	// Register before asking so replayed events are never missed.
	c.mu.Lock()
	if prev := c.subs[roomID]; prev != nil {
		prev.cancel()
	}
	c.subs[roomID] = sub
	c.mu.Unlock()

	if _, err := c.request(ctx, &Request{Op: OpSubscribe, RoomID: roomID}); err != nil {
		c.drop(roomID, sub)
		return nil, err
	}

	return func() {
		if !c.drop(roomID, sub) {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			if _, err := c.request(ctx, &Request{Op: OpUnsubscribe, RoomID: roomID}); err != nil {
				slog.Debug("unsubscribe failed", "room", roomID, "error", err)
			}
		}()
	}, nil
}

// drop cancels sub and removes it if it is still the room's subscription.
func (c *Client) drop(roomID string, sub *subscription) bool {
	sub.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[roomID] != sub {
		return false
	}
	delete(c.subs, roomID)
	return true
}

func (c *Client) consume(roomID string, order int64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.request(ctx, &Request{Op: OpConsume, RoomID: roomID, Order: order}); err != nil {
		slog.Debug("consume failed", "room", roomID, "order", order, "error", err)
	}
}

func (c *Client) RoomExists(ctx context.Context, roomID string) (bool, error) {
	frame, err := c.request(ctx, &Request{Op: OpRoomExists, RoomID: roomID})
	if err != nil {
		return false, err
	}
	return frame.Exists, nil
}

func (c *Client) CreateRoomRecord(ctx context.Context, roomID string) error {
	_, err := c.request(ctx, &Request{Op: OpCreateRoom, RoomID: roomID})
	return err
}

func (c *Client) JoinRoomRecord(ctx context.Context, roomID string) error {
	_, err := c.request(ctx, &Request{Op: OpJoinRoom, RoomID: roomID})
	return err
}

func (c *Client) LeaveRoomRecord(ctx context.Context, roomID string) error {
	_, err := c.request(ctx, &Request{Op: OpLeaveRoom, RoomID: roomID})
	return err
}

func (c *Client) CloseRoomRecord(ctx context.Context, roomID string) error {
	_, err := c.request(ctx, &Request{Op: OpCloseRoom, RoomID: roomID})
	return err
}

package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/ports"

	"github.com/gorilla/websocket"
)

const (
	readLimit  = 4096
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

type Client struct {
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	dis       *Dispatcher
	egress    chan event.Event
	principal dto.Principal

	mu   sync.Mutex
	subs map[string]ports.ISubscription
}

func NewClient(ctx context.Context, conn *websocket.Conn, dis *Dispatcher, principal dto.Principal) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		dis:       dis,
		egress:    make(chan event.Event, 32),
		principal: principal,
		subs:      make(map[string]ports.ISubscription),
	}
}

// subscribe joins a room once. A forwarding goroutine drains the room
// subscription into the egress; it exits when the subscription closes or
// the client shuts down.
func (c *Client) subscribe(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[room]; ok {
		return
	}
	sub := c.dis.bus.Subscribe(room)
	c.subs[room] = sub

	go func() {
		for ev := range sub.C() {
			select {
			case c.egress <- ev:
			case <-c.ctx.Done():
				return
			default:
				// slow consumer, drop
			}
		}
	}()
}

func (c *Client) unsubscribe(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[room]; ok {
		sub.Close()
		delete(c.subs, room)
	}
}

func (c *Client) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for room, sub := range c.subs {
		sub.Close()
		delete(c.subs, room)
	}
}

// send pushes an event to this client only, bypassing the rooms.
func (c *Client) send(ev event.Event) {
	select {
	case c.egress <- ev:
	case <-c.ctx.Done():
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.send(event.New(event.TypeError, event.ErrorPayload{Code: code, Message: message}))
}

func (c *Client) ReadMessage() {
	defer c.dis.RemoveClient(c)

	c.conn.SetReadLimit(readLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.dis.log.Action("readMessage").Warn("unexpected close: " + err.Error())
			}
			break
		}

		var req event.Event
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError("BAD_EVENT", "malformed event envelope")
			continue
		}
		c.dis.handler.Route(c, req)
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.egress:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
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

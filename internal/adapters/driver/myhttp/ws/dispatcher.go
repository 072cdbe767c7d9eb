package ws

import (
	"context"
	"net/http"
	"sync"

	"ridelink/internal/adapters/driver/myhttp/handle"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"

	"github.com/gorilla/websocket"
)

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ClientList is a map used to help manage a map of clients
type ClientList map[*Client]bool

type Dispatcher struct {
	clients ClientList
	sync.RWMutex
	bus     ports.IBus
	handler *EventHandler
	log     mylogger.Logger
}

func NewDispatcher(bus ports.IBus, handler *EventHandler, log mylogger.Logger) *Dispatcher {
	return &Dispatcher{
		clients: make(ClientList),
		bus:     bus,
		handler: handler,
		log:     log,
	}
}

// ConnectHandler upgrades an authenticated request into a persistent
// websocket connection. The auth middleware has already verified the token
// and stamped the identity headers, so the principal is trusted here.
func (d *Dispatcher) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := d.log.Action("connectHandler")
		p := handle.PrincipalFrom(r)
		if p.UserID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := websocketUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("cannot upgrade", err)
			return
		}

		client := NewClient(context.Background(), conn, d, p)
		d.AddClient(client)

		// every connection listens on its own user room
		client.subscribe(event.UserRoom(p.UserID))

		go client.ReadMessage()
		go client.WriteMessage()
	}
}

func (d *Dispatcher) AddClient(client *Client) {
	d.Lock()
	defer d.Unlock()

	d.clients[client] = true
}

func (d *Dispatcher) RemoveClient(client *Client) {
	d.Lock()
	defer d.Unlock()

	if _, ok := d.clients[client]; !ok {
		return
	}
	delete(d.clients, client)

	client.cancel()
	client.closeSubscriptions()
	client.conn.Close()
}

// Shutdown drops every connected client.
func (d *Dispatcher) Shutdown() {
	d.Lock()
	clients := make([]*Client, 0, len(d.clients))
	for c := range d.clients {
		clients = append(clients, c)
	}
	d.Unlock()

	for _, c := range clients {
		d.RemoveClient(c)
	}
}

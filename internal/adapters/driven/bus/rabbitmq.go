package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"ridelink/internal/config"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

const (
	exchange       = "realtime_topic"
	reconnInterval = 10
)

type envelope struct {
	Room  string      `json:"room"`
	Event event.Event `json:"event"`
}

// RabbitBridge replicates hub publishes across service instances through a
// topic exchange. Local delivery never waits on the broker; the amqp leg
// is fire-and-forget.
type RabbitBridge struct {
	ctx          context.Context
	cfg          config.RabbitMqconfig
	mylog        mylogger.Logger
	hub          *Hub
	instanceID   string
	conn         *amqp.Connection
	ch           *amqp.Channel
	queue        string
	reconnecting bool
	mu           *sync.Mutex
}

func NewRabbitBridge(ctx context.Context, cfg config.RabbitMqconfig, mylog mylogger.Logger, hub *Hub) (*RabbitBridge, error) {
	b := &RabbitBridge{
		ctx:        ctx,
		cfg:        cfg,
		mylog:      mylog,
		hub:        hub,
		instanceID: uuid.NewString(),
		mu:         &sync.Mutex{},
	}
	if err := b.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %v", err)
	}
	go b.consume()
	return b, nil
}

var _ ports.IBus = (*RabbitBridge)(nil)

func (b *RabbitBridge) Publish(room string, ev event.Event) {
	b.hub.Publish(room, ev)

	if b.conn == nil || b.conn.IsClosed() {
		go b.reconnect(b.ctx)
		return
	}

	body, err := json.Marshal(envelope{Room: room, Event: ev})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()
	if err := b.ch.PublishWithContext(ctx, exchange, routingKey(room), false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     amqp.Table{"origin": b.instanceID},
		Body:        body,
	}); err != nil {
		b.mylog.Warn("broker publish failed", "room", room, "type", ev.Type)
	}
}

func (b *RabbitBridge) Subscribe(room string) ports.ISubscription {
	return b.hub.Subscribe(room)
}

func (b *RabbitBridge) IsAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		return false
	}
	if b.ch == nil || b.ch.IsClosed() {
		return false
	}
	return true
}

func (b *RabbitBridge) Close() error {
	if b.ch != nil && !b.ch.IsClosed() {
		if err := b.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %v", err)
		}
	}
	if b.conn != nil && !b.conn.IsClosed() {
		if err := b.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %v", err)
		}
	}
	return nil
}

func (b *RabbitBridge) connect() error {
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%v:%v@%v:%v/%v",
		b.cfg.User,
		b.cfg.Password,
		b.cfg.Host,
		b.cfg.Port,
		b.cfg.VHost,
	))
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", false, false, false, false, nil); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, "#", exchange, false, nil); err != nil {
		return err
	}

	b.conn = conn
	b.ch = ch
	b.queue = q.Name
	return nil
}

func (b *RabbitBridge) consume() {
	mylog := b.mylog.Action("bus_consume")
	for {
		deliveries, err := b.ch.ConsumeWithContext(b.ctx, b.queue, "", true, false, false, false, nil)
		if err != nil {
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(time.Second * reconnInterval):
				b.reconnect(b.ctx)
				continue
			}
		}
		for d := range deliveries {
			if origin, ok := d.Headers["origin"].(string); ok && origin == b.instanceID {
				continue
			}
			var env envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				mylog.Warn("malformed bus envelope", "routing_key", d.RoutingKey)
				continue
			}
			b.hub.Publish(env.Room, env.Event)
		}
		select {
		case <-b.ctx.Done():
			return
		default:
		}
	}
}

func (b *RabbitBridge) reconnect(ctx context.Context) {
	b.mu.Lock()
	if b.reconnecting {
		b.mu.Unlock()
		return
	}
	b.reconnecting = true
	b.mu.Unlock()

	t := time.NewTicker(time.Second * reconnInterval)
	mylog := b.mylog.Action("bus_reconnecting")

	for {
		select {
		case <-t.C:
			if err := b.connect(); err == nil {
				t.Stop()
				mylog.Info("successfully reconnected")
				b.mu.Lock()
				b.reconnecting = false
				b.mu.Unlock()
				return
			}
			mylog.Info("rabbitmq failed to reconnect")

		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// routingKey maps a room name to a topic routing key.
func routingKey(room string) string {
	return strings.ReplaceAll(room, ":", ".")
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// Publisher sends purchase notifications to RabbitMQ.  Each publish
// opens its own connection; notifications are rare compared to reads and
// this keeps the publisher free of reconnect state.
type Publisher struct {
	URL   string
	Queue string
}

// NewPublisher returns a Publisher for url and queue, falling back to the
// package defaults for empty values.
func NewPublisher(url, queue string) *Publisher {
	if url == "" {
		url = DefaultBrokerURL
	}
	if queue == "" {
		queue = DefaultPurchaseQueue
	}
	return &Publisher{URL: url, Queue: queue}
}

// NotifyPurchase publishes n as a persistent JSON message on the default
// exchange, routed by queue name.
func (p *Publisher) NotifyPurchase(ctx context.Context, n model.PurchaseNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	conn, err := dial(ctx, p.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.OrderID,
		Timestamp:    time.Now().UTC(),
		Type:         "beat_license.purchased",
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// defaultDialTimeout bounds connect plus handshake when ctx carries no
// deadline.
const defaultDialTimeout = 30 * time.Second

// dial is amqp.Dial with the TCP connect tied to ctx and the AMQP
// handshake ending at ctx's deadline.  The library clears the deadline
// once the connection is open.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultDialTimeout)
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	})
}

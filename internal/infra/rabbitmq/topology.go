package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyIngest = "sign.video.ingest"
	RoutingKeyStatus = "sign.video.status"
)

type Topology struct {
	Exchange    string
	IngestQueue string
	StatusQueue string
	DLQ         string
}

// Declare creates the topic exchange and the durable ingest, status and dead-letter
// queues. It is idempotent and safe to call from both the API and the worker.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{t.IngestQueue, t.DLQ, t.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(t.IngestQueue, RoutingKeyIngest, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind ingest queue: %w", err)
	}
	if err := ch.QueueBind(t.StatusQueue, RoutingKeyStatus, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

// Dial opens a connection and declares the topology on a short-lived channel.
func Dial(url string, topo Topology) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := topo.Declare(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

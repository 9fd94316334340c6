package queue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const scanRoutingKey = "attendance.scan"

// AMQPQueue publishes scans to a topic exchange and consumes them from a durable queue.
type AMQPQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	log      zerolog.Logger
}

// NewAMQPQueue dials the broker and declares the exchange, queue and binding.
func NewAMQPQueue(url, exchange, queue string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(step string, err error) (*AMQPQueue, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, scanRoutingKey, exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, exchange: exchange, queue: q.Name, log: log}, nil
}

// Publish sends a scan as a persistent JSON message.
func (q *AMQPQueue) Publish(ctx context.Context, scan Scan) error {
	b, err := Encode(scan)
	if err != nil {
		return err
	}
	return q.ch.PublishWithContext(ctx, q.exchange, scanRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
}

// Consume acknowledges each delivery once it is decoded and handed off.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Scan, error) {
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	out := make(chan Scan)
	go func() {
		defer close(out)
		for d := range deliveries {
			scan, err := Decode(d.Body)
			if err != nil {
				q.log.Warn().Err(err).Msg("rejecting malformed scan")
				_ = d.Nack(false, false)
				continue
			}
			select {
			case out <- scan:
				_ = d.Ack(false)
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		}
	}()
	return out, nil
}

// Close closes the channel and connection.
func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

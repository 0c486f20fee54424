package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// AMQPClient wraps one RabbitMQ connection/channel pair. It carries the
// normalized inbound-message stream into the reply listener worker and the
// message-status event feed out to external consumers.
type AMQPClient struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func DialAMQP(url string) (*AMQPClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &AMQPClient{conn: conn, ch: ch}, nil
}

func (c *AMQPClient) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *AMQPClient) declare(queueName string) (amqp.Queue, error) {
	return c.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

// PublishJSON marshals v and publishes it to the named durable queue.
func (c *AMQPClient) PublishJSON(queueName string, v any) error {
	q, err := c.declare(queueName)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.ch.Publish(
		"",
		q.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Consume delivers each message body to handler. A failing delivery is
// republished with an incremented x-retry-count header up to maxRetries, then
// dropped; malformed or exhausted deliveries are acked so they don't wedge
// the queue.
func (c *AMQPClient) Consume(ctx context.Context, queueName string, maxRetries int, handler func(body []byte) error) error {
	q, err := c.declare(queueName)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := c.ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}

			if err := handler(d.Body); err != nil {
				retryCount := 0
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = int(v)
				}
				if retryCount < maxRetries {
					_ = c.ch.Publish("", q.Name, false, false, amqp.Publishing{
						ContentType: "application/json",
						Body:        d.Body,
						Headers:     amqp.Table{"x-retry-count": int32(retryCount + 1)},
					})
				}
			}
			d.Ack(false)
		}
	}
}

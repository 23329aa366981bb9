// Package rabbit wraps an AMQP connection used to fan promotion events out
// to workers.
package rabbit

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when the delivery channel closes underneath a consumer.
var ErrClosed = errors.New("amqp delivery channel closed")

// Client owns one connection and one channel bound to a durable queue.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	log      *zerolog.Logger
}

// Dial connects to url and declares a durable fanout exchange with queue
// bound to it.
func Dial(url, exchange, queue string, log *zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queue,
		log:      log,
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}

	log.Info().Str("exchange", exchange).Str("queue", queue).Msg("rabbitmq initialized")
	return client, nil
}

// Close releases the channel and the connection.
func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Info().Msg("rabbitmq connection closed")
}

// Publish sends one persistent JSON message to the exchange.
func (c *Client) Publish(ctx context.Context, body []byte) error {
	err := c.channel.PublishWithContext(ctx,
		c.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.exchange, err)
	}
	c.log.Debug().Str("exchange", c.exchange).Int("bytes", len(body)).Msg("message published")
	return nil
}

// Consume delivers queued messages to handle until ctx is cancelled.
// A message is acked when handle returns nil and requeued otherwise.
func (c *Client) Consume(ctx context.Context, handle func([]byte) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.log.Info().Str("queue", c.queue).Msg("started consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrClosed
			}
			if err := handle(d.Body); err != nil {
				c.log.Warn().Err(err).Msg("failed to process message, requeueing")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

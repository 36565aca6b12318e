package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"

	"contestbot/internal/dto"
	"contestbot/internal/model"
)

// Routing keys on the contest exchange.
const (
	RoutingEntryAccepted = "entry.accepted"
	RoutingUpdates       = "update.inbound"
)

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	exchange string
	queue    string
}

type Rabbiter interface {
	Close()
	Publish(ctx context.Context, routingKey string, message []byte) error
	PublishEntry(ctx context.Context, p model.Participant) error
	Consume(handler func([]byte) error) error
}

// NewRabbit declares a durable topic exchange. When queue is set it is
// declared and bound to RoutingUpdates so inbound updates can be consumed.
func NewRabbit(url, exchange, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, err
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queue,
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return nil, err
	}

	if queue != "" {
		if _, err := ch.QueueDeclare(
			queue,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			client.Close()
			zlog.Logger.Error().Err(err).Msg("failed to declare queue")
			return nil, err
		}

		if err := ch.QueueBind(
			queue,
			RoutingUpdates,
			exchange,
			false,
			nil,
		); err != nil {
			client.Close()
			zlog.Logger.Error().Err(err).Msg("failed to bind queue")
			return nil, err
		}
	}

	zlog.Logger.Info().Str("exchange", exchange).Str("queue", queue).Msg("RabbitMQ initialized")

	return client, nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// Publish sends a persistent JSON message. amqp channels are not safe for
// concurrent publishing, so calls are serialized.
func (c *Client) Publish(ctx context.Context, routingKey string, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		zlog.Logger.Error().Err(err).Str("routing_key", routingKey).Msg("failed to publish message to RabbitMQ")
	} else {
		zlog.Logger.Debug().Str("exchange", c.exchange).Str("routing_key", routingKey).Msg("message published")
	}
	return err
}

// PublishEntry announces an accepted, committed entry.
func (c *Client) PublishEntry(ctx context.Context, p model.Participant) error {
	body, err := encodeEntry(p)
	if err != nil {
		return err
	}
	return c.Publish(ctx, RoutingEntryAccepted, body)
}

func encodeEntry(p model.Participant) ([]byte, error) {
	body, err := json.Marshal(dto.EntryAcceptedMessage{
		EventID:       uuid.NewString(),
		ParticipantID: p.ParticipantID,
		DisplayName:   p.DisplayName,
		TeamName:      p.TeamName,
		PhotoRef:      p.PhotoRef,
		TicketNumber:  p.TicketNumber,
		CommittedAt:   p.CommittedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal entry event: %w", err)
	}
	return body, nil
}

// Consume delivers queue messages to handler one at a time. A handler
// error requeues the message.
func (c *Client) Consume(handler func([]byte) error) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to set prefetch")
		return err
	}

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
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				zlog.Logger.Warn().Err(err).Msg("failed to process message")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}()

	zlog.Logger.Info().Str("queue", c.queue).Msg("started consuming")
	return nil
}

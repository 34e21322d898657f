package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bookingsvc/internal/config"
	"bookingsvc/internal/models"
	"bookingsvc/internal/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes ReminderDue events to a durable topic exchange.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	ch         amqpChannel
	exchange   string
	routingKey string
	logger     *zerolog.Logger
}

func NewRabbitMQPublisher(cfg config.RabbitMQConfig, logger *zerolog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := newRabbitMQPublisher(ch, cfg, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newRabbitMQPublisher(ch amqpChannel, cfg config.RabbitMQConfig, logger *zerolog.Logger) (*RabbitMQPublisher, error) {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RabbitMQPublisher{
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, reminder models.ReminderDue) (err error) {
	ctx, done := tracing.Subsegment(ctx, "ReminderPublisher.Publish")
	defer func() { done(err) }()

	body, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         reminder.Type,
		AppId:        models.ReminderSource,
		Headers:      amqp.Table{"type": reminder.Type},
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}

	p.logger.Debug().
		Str("exchange", p.exchange).
		Str("routing_key", p.routingKey).
		Str("booking_id", reminder.BookingID).
		Msg("reminder published")
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

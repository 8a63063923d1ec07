package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// connector opens a channel with the queue declared, plus the connection
// that owns it.
type connector func() (publishChannel, io.Closer, error)

// AMQPPublisher forwards events to a durable RabbitMQ queue as persistent
// JSON messages. A closed channel or connection is reopened on the next
// publish.
type AMQPPublisher struct {
	mu      sync.Mutex
	connect connector
	conn    io.Closer
	ch      publishChannel
	queue   string
	logger  *zap.Logger
}

// NewAMQPPublisher dials url and declares queue. The declaration is
// idempotent, so it is repeated on every reconnect.
func NewAMQPPublisher(url, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	return newAMQPPublisher(func() (publishChannel, io.Closer, error) {
		return dialQueue(url, queue)
	}, queue, logger)
}

func newAMQPPublisher(connect connector, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch, conn, err := connect()
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{connect: connect, conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

func dialQueue(url, queue string) (publishChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return ch, conn, nil
}

// Handle publishes event. It matches EventHandler so it can be subscribed
// directly to a Dispatcher.
func (p *AMQPPublisher) Handle(ctx context.Context, event Event) error {
	msg, err := buildPublishing(event, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.logger.Info("rabbitmq: channel closed, reconnecting")
		p.reset()
		err = p.publish(ctx, msg)
	}
	if err != nil {
		p.logger.Warn("rabbitmq: publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// publish sends msg, reopening the channel first when it is gone. Callers
// hold mu.
func (p *AMQPPublisher) publish(ctx context.Context, msg amqp.Publishing) error {
	if p.ch == nil || p.ch.IsClosed() {
		p.reset()
		ch, conn, err := p.connect()
		if err != nil {
			return err
		}
		p.ch, p.conn = ch, conn
	}
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	)
}

// reset drops the current channel and connection. Callers hold mu.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return err
}

func buildPublishing(event Event, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}

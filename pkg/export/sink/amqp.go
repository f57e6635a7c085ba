package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/telemetry/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of an AMQP channel the sink publishes through.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes each record as a persistent JSON message. The routing
// key is the shape name and the trace context travels in the headers.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Publisher
	exchange string
	timeout  time.Duration
	now      func() time.Time
	closed   bool
}

// DialAMQP connects to the broker, declares the exchange and returns a sink
// publishing to it.
func DialAMQP(cfg config.AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, export.NewSinkError("amqp", "", fmt.Errorf("dial: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, export.NewSinkError("amqp", "", fmt.Errorf("open channel: %w", err))
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		cfg.ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, export.NewSinkError("amqp", "", fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err))
	}

	s := NewAMQPSink(ch, cfg.Exchange, cfg.PublishTimeout)
	s.conn = conn
	return s, nil
}

// NewAMQPSink creates a sink over an already configured channel.
func NewAMQPSink(ch Publisher, exchange string, timeout time.Duration) *AMQPSink {
	return &AMQPSink{
		ch:       ch,
		exchange: exchange,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Write publishes one record.
func (s *AMQPSink) Write(ctx context.Context, shape string, record export.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return export.NewSinkError("amqp", shape, err)
	}

	carrier := make(map[string]string)
	tracing.InjectToMap(ctx, carrier)
	headers := amqp.Table{"shape": shape}
	for k, v := range carrier {
		headers[k] = v
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         shape,
		Timestamp:    s.now(),
		Headers:      headers,
		Body:         body,
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return export.NewSinkError("amqp", shape, errClosed)
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, shape, false, false, msg); err != nil {
		return export.NewSinkError("amqp", shape, err)
	}
	return nil
}

// Ping reports whether the broker connection is open.
func (s *AMQPSink) Ping(ctx context.Context) error {
	if s.conn != nil && s.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.ch.Close()
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
	}
	if err != nil {
		return export.NewSinkError("amqp", "", err)
	}
	return nil
}

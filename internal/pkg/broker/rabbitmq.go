package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// RabbitMQConfig configures the error-topic-only RabbitMQ producer.
// RabbitMQ's lack of Kafka-style strict partition ordering maps onto
// the error publisher's documented unordered, best-effort contract; it
// is never offered as a response-topic driver.
type RabbitMQConfig struct {
	URL               string
	Exchange          string
	ExchangeType      string
	ConnectionTimeout time.Duration
	Heartbeat         time.Duration
}

// RabbitMQProducer publishes error-topic records as persistent AMQP
// messages, routed by topic name.
type RabbitMQProducer struct {
	cfg  RabbitMQConfig
	log  *logger.Logger
	conn *amqp.Connection
	ch   *amqp.Channel

	mu        sync.RWMutex
	closed    bool
	exchanges map[string]bool
}

func NewRabbitMQProducer(cfg RabbitMQConfig, log *logger.Logger) (*RabbitMQProducer, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Dial:      amqp.DefaultDial(cfg.ConnectionTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("broker: connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: opening rabbitmq channel: %w", err)
	}

	p := &RabbitMQProducer{
		cfg:       cfg,
		log:       log,
		conn:      conn,
		ch:        ch,
		exchanges: make(map[string]bool),
	}

	if cfg.Exchange != "" {
		if err := p.declareExchange(cfg.Exchange, cfg.ExchangeType); err != nil {
			conn.Close()
			return nil, err
		}
	}

	log.Info("broker: connected to rabbitmq error-topic producer", "exchange", cfg.Exchange)
	return p, nil
}

func (p *RabbitMQProducer) declareExchange(name, kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exchanges[name] {
		return nil
	}
	if kind == "" {
		kind = "topic"
	}
	if err := p.ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declaring exchange %s: %w", name, err)
	}
	p.exchanges[name] = true
	return nil
}

func (p *RabbitMQProducer) Publish(ctx context.Context, topic string, rec OutboundRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("broker: rabbitmq producer is closed")
	}

	headers := make(amqp.Table, len(rec.Headers))
	for k, v := range rec.Headers {
		headers[k] = v
	}

	publishing := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         rec.Value,
		Timestamp:    time.Now(),
		Headers:      headers,
	}
	if len(rec.Key) > 0 {
		publishing.MessageId = string(rec.Key)
	}

	return p.ch.Publish(p.cfg.Exchange, topic, false, false, publishing)
}

// Flush is a no-op: publishing confirms are not enabled on this
// channel, matching the best-effort contract of the error topic.
func (p *RabbitMQProducer) Flush(ctx context.Context) error { return nil }

func (p *RabbitMQProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.ch.Close()
	return p.conn.Close()
}

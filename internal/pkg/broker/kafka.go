package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// KafkaBroker is the Kafka driver: the only source the pipeline ever
// consumes from, and the durable producer the response topic always
// uses. It may also serve as the error-topic producer when
// error_topic.driver=kafka.
type KafkaBroker struct {
	cfg           config.KafkaConfig
	log           *logger.Logger
	client        sarama.Client
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	mu     sync.RWMutex
	closed bool
}

// NewKafkaBroker connects to the brokers named in cfg and builds a
// shared sync-producer and consumer group on top of one sarama.Client.
func NewKafkaBroker(cfg config.KafkaConfig, log *logger.Logger) (*KafkaBroker, error) {
	saramaCfg := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("broker: invalid kafka version %s: %w", cfg.Version, err)
	}
	saramaCfg.Version = version
	saramaCfg.ClientID = cfg.ClientID

	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1

	if cfg.InitialOffset == "oldest" {
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	saramaCfg.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	saramaCfg.Consumer.Group.Heartbeat.Interval = cfg.HeartbeatInterval
	saramaCfg.Consumer.Group.Rebalance.Timeout = cfg.RebalanceTimeout
	// offset commits are driven by the consumer group framework, not the
	// pipeline; auto-commit tracks the most recently marked offset.
	saramaCfg.Consumer.Offsets.AutoCommit.Enable = true
	saramaCfg.Consumer.Offsets.AutoCommit.Interval = time.Second

	saramaCfg.Net.DialTimeout = cfg.ConnectTimeout
	saramaCfg.Net.ReadTimeout = 10 * time.Second
	saramaCfg.Net.WriteTimeout = 10 * time.Second

	if cfg.SASL != nil && cfg.SASL.Enable {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.SASL.Username
		saramaCfg.Net.SASL.Password = cfg.SASL.Password
		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if cfg.TLS != nil && cfg.TLS.Enable {
		tlsCfg := &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("broker: loading client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		saramaCfg.Net.TLS.Enable = true
		saramaCfg.Net.TLS.Config = tlsCfg
	}

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("broker: creating kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("broker: creating kafka producer: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, fmt.Errorf("broker: creating kafka consumer group: %w", err)
	}

	log.Info("broker: connected to kafka", "brokers", strings.Join(cfg.Brokers, ","), "group_id", cfg.GroupID)

	return &KafkaBroker{
		cfg:           cfg,
		log:           log,
		client:        client,
		producer:      producer,
		consumerGroup: consumerGroup,
	}, nil
}

// Consume blocks on the consumer group loop until ctx is cancelled.
// Sarama rebalances the group and re-invokes ConsumeClaim across the
// assigned partitions for as long as Consume keeps being called.
func (k *KafkaBroker) Consume(ctx context.Context, topics []string, handler RecordHandler) error {
	consumer := &groupConsumer{handler: handler, ready: make(chan struct{})}

	go func() {
		for ctx.Err() == nil {
			if err := k.consumerGroup.Consume(ctx, topics, consumer); err != nil {
				k.log.Warn("broker: consumer group session ended with error", "error", err.Error())
				time.Sleep(time.Second)
			}
			if ctx.Err() != nil {
				return
			}
			consumer.resetReady()
		}
	}()

	select {
	case <-consumer.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	<-ctx.Done()
	return ctx.Err()
}

func (k *KafkaBroker) Producer(kind ProducerKind) Producer {
	return &kafkaProducer{broker: k}
}

func (k *KafkaBroker) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true

	var firstErr error
	if err := k.consumerGroup.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := k.producer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := k.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type kafkaProducer struct {
	broker *KafkaBroker
}

func (p *kafkaProducer) Publish(ctx context.Context, topic string, rec OutboundRecord) error {
	p.broker.mu.RLock()
	defer p.broker.mu.RUnlock()
	if p.broker.closed {
		return fmt.Errorf("broker: kafka producer is closed")
	}

	headers := make([]sarama.RecordHeader, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(rec.Value),
		Headers:   headers,
		Timestamp: time.Now(),
	}
	if len(rec.Key) > 0 {
		msg.Key = sarama.ByteEncoder(rec.Key)
	}

	_, _, err := p.broker.producer.SendMessage(msg)
	return err
}

// Flush is a no-op: sarama's SyncProducer publishes synchronously, so
// there is nothing buffered to drain.
func (p *kafkaProducer) Flush(ctx context.Context) error { return nil }

func (p *kafkaProducer) Close() error { return nil }

// groupConsumer adapts sarama.ConsumerGroupHandler to RecordHandler.
type groupConsumer struct {
	handler RecordHandler
	ready   chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

func (c *groupConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.once.Do(func() { close(c.ready) })
	return nil
}

func (c *groupConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *groupConsumer) resetReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.once = sync.Once{}
	c.ready = make(chan struct{})
}

func (c *groupConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			rec := Record{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
				Headers:   make(map[string]string, len(msg.Headers)),
				Timestamp: msg.Timestamp,
			}
			for _, h := range msg.Headers {
				rec.Headers[string(h.Key)] = string(h.Value)
			}

			if err := c.handler(session.Context(), rec); err != nil {
				// the framework's delivery contract is at-least-once;
				// a handler error leaves the offset uncommitted so the
				// rebalance re-delivers this record.
				return err
			}

			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

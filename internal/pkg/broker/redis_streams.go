package broker

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// RedisStreamsConfig configures a Redis Streams producer. Unlike the
// ambient OAuth2 token cache's plain redis.Client, this one is
// dedicated to publishing OutboundRecords.
type RedisStreamsConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      *config.TLSConfig
}

// RedisStreamsProducer publishes to a Redis Stream per topic name via
// XADD, upgrading the teacher's Pub/Sub driver (fire-and-forget, no
// durability) to a durable append log. It is wired only as the
// error-topic producer (error_topic.driver=redis); the response topic
// always uses the Kafka producer.
type RedisStreamsProducer struct {
	client *redis.Client
}

func NewRedisStreamsProducer(cfg RedisStreamsConfig, log *logger.Logger) (*RedisStreamsProducer, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS != nil && cfg.TLS.Enable {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("broker: connecting to redis: %w", err)
	}

	log.Info("broker: connected to redis streams producer", "addr", cfg.Addr)
	return &RedisStreamsProducer{client: client}, nil
}

func (p *RedisStreamsProducer) Publish(ctx context.Context, topic string, rec OutboundRecord) error {
	values := map[string]interface{}{
		"value": rec.Value,
	}
	if len(rec.Key) > 0 {
		values["key"] = rec.Key
	}
	for k, v := range rec.Headers {
		values["header."+k] = v
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: values,
	}).Err()
}

// Flush is a no-op: each Publish call is a synchronous XADD round trip.
func (p *RedisStreamsProducer) Flush(ctx context.Context) error { return nil }

func (p *RedisStreamsProducer) Close() error { return p.client.Close() }

package broker

import (
	"fmt"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// NewSourceBroker builds the Kafka consumer-group source every task
// instance reads from, per SPEC_FULL §1: the source is always Kafka.
func NewSourceBroker(cfg config.KafkaConfig, log *logger.Logger) (*KafkaBroker, error) {
	return NewKafkaBroker(cfg, log)
}

// NewErrorProducer builds the Producer named by driver, reusing source
// when driver is "kafka" (the response topic's own durable producer)
// instead of opening a second connection to the same cluster.
func NewErrorProducer(driver string, source *KafkaBroker, cfg *config.Config, log *logger.Logger) (Producer, error) {
	switch driver {
	case "", "kafka":
		return source.Producer(Error), nil
	case "redis":
		r := cfg.ErrorTopic.Redis
		return NewRedisStreamsProducer(RedisStreamsConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		}, log)
	case "rabbitmq":
		rmq := cfg.ErrorTopic.RabbitMQ
		return NewRabbitMQProducer(RabbitMQConfig{
			URL:               rmq.URL,
			Exchange:          rmq.Exchange,
			ExchangeType:      rmq.ExchangeType,
			ConnectionTimeout: rmq.ConnectionTimeout,
			Heartbeat:         rmq.Heartbeat,
		}, log)
	default:
		return nil, fmt.Errorf("broker: unsupported error_topic.driver %q", driver)
	}
}

// Package broker defines the Broker/Producer abstraction the pipeline
// consumes records through and publishes results through (SPEC_FULL
// §4.8), plus the three driver implementations: Kafka (source and
// durable producer), Redis Streams (producer), and RabbitMQ (producer).
package broker

import (
	"context"
	"time"
)

// Record is one message read from a source topic, opaque enough to
// carry any broker's wire shape without the rest of the pipeline caring
// which driver produced it.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerKind selects which of the two producer roles a Producer plays.
// The distinction matters because the response topic is always
// published durably (Kafka sync-producer semantics) while the error
// topic is explicitly best-effort and may run on a different driver.
type ProducerKind int

const (
	// Response producers are always durable: a publish failure here is
	// returned to the pipeline, which logs it and still treats the
	// record as processed, per SPEC_FULL §4.5.
	Response ProducerKind = iota
	// Error producers are best-effort: a publish failure here triggers
	// the dead-letter/error-index fan-out, never the record's own
	// disposition, per SPEC_FULL §4.6.
	Error
)

// OutboundRecord is what the publisher builds and a Producer sends.
type OutboundRecord struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// RecordHandler processes one consumed Record. A non-nil error stops
// the partition's claim loop; the consumer group rebalances and retries
// delivery of the same record to a (possibly different) consumer.
type RecordHandler func(ctx context.Context, rec Record) error

// Broker is the source-side abstraction: a partitioned, at-least-once
// log the pipeline consumes from, plus the two outbound Producer roles.
type Broker interface {
	// Consume blocks, dispatching each record on topics to handler,
	// until ctx is cancelled or an unrecoverable broker error occurs.
	Consume(ctx context.Context, topics []string, handler RecordHandler) error
	Producer(kind ProducerKind) Producer
	Close() error
}

// Producer publishes OutboundRecords to a single logical topic.
type Producer interface {
	Publish(ctx context.Context, topic string, rec OutboundRecord) error
	Flush(ctx context.Context) error
	Close() error
}

package publisher

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/broker"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/codec"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/deadletter"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/errorindex"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// ErrorInput is everything the error publisher needs from one
// exhausted or faulted pipeline run.
type ErrorInput struct {
	SourceTopic     string
	SourceKey       []byte
	SourceHeaders   map[string]string
	SourcePartition int32
	SourceOffset    int64
	FaultType       string // errorType, per the SPEC_FULL §7 taxonomy
	FaultDetail     string // errorMessage
	StatusCode      int    // httpStatusCode, 0 = no HTTP response was received
	ResponseBody    []byte // httpResponseBody
	ResponseHeaders http.Header
	Attempts        int // retryCount
}

// errorRecordValue is the error-topic value with the fixed keys §3
// mandates.
type errorRecordValue struct {
	ErrorType         string `json:"errorType"`
	ErrorMessage      string `json:"errorMessage"`
	ErrorTimestamp    int64  `json:"errorTimestamp"`
	RetryCount        int    `json:"retryCount,omitempty"`
	HTTPStatusCode    int    `json:"httpStatusCode,omitempty"`
	HTTPResponseBody  string `json:"httpResponseBody,omitempty"`
	OriginalTopic     string `json:"originalTopic"`
	OriginalPartition int32  `json:"originalPartition"`
	OriginalOffset    int64  `json:"originalOffset"`
}

// ErrorPublisher publishes best-effort: a publish failure is routed to
// the dead-letter sink and the Elasticsearch mirror, never returned to
// the pipeline as a fault, per SPEC_FULL §4.6.
type ErrorPublisher struct {
	cfg        config.ErrorTopicConfig
	producer   broker.Producer
	deadLetter deadletter.Sink
	index      *errorindex.Mirror
	log        *logger.Logger
}

func NewErrorPublisher(cfg config.ErrorTopicConfig, producer broker.Producer, deadLetter deadletter.Sink, index *errorindex.Mirror, log *logger.Logger) *ErrorPublisher {
	return &ErrorPublisher{cfg: cfg, producer: producer, deadLetter: deadLetter, index: index, log: log}
}

// Enabled reports whether the error topic is configured to receive
// records, so callers (e.g. CHECK_NULL) can choose their own
// DONE_OK/FAIL_BATCH transition without reaching into config directly.
func (p *ErrorPublisher) Enabled() bool {
	return p.cfg.Enabled
}

// Publish is a no-op when the error topic is disabled. It never returns
// an error: every failure is absorbed into the dead-letter fan-out.
func (p *ErrorPublisher) Publish(ctx context.Context, in ErrorInput) {
	if !p.cfg.Enabled {
		return
	}

	envelope := errorRecordValue{
		ErrorType:         in.FaultType,
		ErrorMessage:      in.FaultDetail,
		ErrorTimestamp:    time.Now().UnixMilli(),
		RetryCount:        in.Attempts,
		HTTPStatusCode:    in.StatusCode,
		HTTPResponseBody:  string(in.ResponseBody),
		OriginalTopic:     in.SourceTopic,
		OriginalPartition: in.SourcePartition,
		OriginalOffset:    in.SourceOffset,
	}

	value, err := codec.EncodeEnvelope(envelope)
	if err != nil {
		p.log.Warn("publisher: encoding error envelope failed", "error", err.Error())
		p.fallback(ctx, in, nil, "encoding failed: "+err.Error())
		return
	}

	topic := resolveTopicTemplate(p.cfg.NameTemplate, in.SourceTopic)
	rec := broker.OutboundRecord{
		Key:     in.SourceKey,
		Value:   value,
		Headers: p.buildHeaders(in, envelope.ErrorTimestamp),
	}
	if err := p.producer.Publish(ctx, topic, rec); err != nil {
		p.log.Warn("publisher: error-topic publish failed, falling back", "topic", topic, "error", err.Error())
		p.fallback(ctx, in, value, err.Error())
	}

	if p.index != nil {
		doc := errorindex.Document{
			RecordTopic: in.SourceTopic,
			RecordKey:   string(in.SourceKey),
			FaultType:   in.FaultType,
			FaultDetail: in.FaultDetail,
			Attempts:    in.Attempts,
			IndexedAt:   time.Now(),
		}
		go func() {
			indexCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p.index.Index(indexCtx, doc)
		}()
	}
}

// buildHeaders assembles the §4.6 header set: original record headers,
// renamed HTTP response headers (when a response was received), then
// the fixed error.* and kafka.original.* headers.
func (p *ErrorPublisher) buildHeaders(in ErrorInput, errorTimestampMs int64) map[string]string {
	out := map[string]string{}

	for name, value := range in.SourceHeaders {
		out[name] = value
	}

	for name, values := range in.ResponseHeaders {
		out["http.response."+name] = strings.Join(values, ",")
	}

	out["error.type"] = in.FaultType
	out["error.message"] = in.FaultDetail
	out["error.timestamp"] = strconv.FormatInt(errorTimestampMs, 10)
	if in.StatusCode > 0 {
		out["error.http.status.code"] = strconv.Itoa(in.StatusCode)
	}
	if in.Attempts > 0 {
		out["error.retry.count"] = strconv.Itoa(in.Attempts)
	}
	out["kafka.original.topic"] = in.SourceTopic
	out["kafka.original.partition"] = strconv.Itoa(int(in.SourcePartition))
	out["kafka.original.offset"] = strconv.FormatInt(in.SourceOffset, 10)

	return out
}

// fallback writes value (the encoded error-topic value, nil when encoding
// itself failed) to the dead-letter sink.
func (p *ErrorPublisher) fallback(ctx context.Context, in ErrorInput, value []byte, reason string) {
	if p.deadLetter == nil {
		return
	}
	entry := deadletter.Entry{
		Topic:      in.SourceTopic,
		Key:        in.SourceKey,
		Value:      value,
		Reason:     reason,
		RecordedAt: time.Now().Format(time.RFC3339),
	}
	if err := p.deadLetter.Write(ctx, entry); err != nil {
		p.log.Warn("publisher: dead-letter write also failed", "error", err.Error())
	}
}

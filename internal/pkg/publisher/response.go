// Package publisher builds and sends the response-topic (durable) and
// error-topic (best-effort) records the pipeline produces after an
// endpoint call completes (SPEC_FULL §4.5/§4.6).
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/broker"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// ResponseInput is everything the response publisher needs from one
// concluded pipeline run — success or failure, since MAYBE_PUBLISH_RESPONSE
// runs on both (SPEC_FULL §4.7).
type ResponseInput struct {
	SourceTopic     string
	SourceKey       []byte
	SourceHeaders   map[string]string
	SourcePartition int32
	SourceOffset    int64
	SourceTimestamp time.Time
	StatusCode      int
	ResponseBody    []byte
	ResponseHeaders http.Header
	ElapsedMs       int64
	RequestAttempts int
}

// ResponsePublisher publishes durably: a failure here is logged by the
// caller, never retried against the endpoint, per SPEC_FULL §4.5 ("the
// pipeline treats the record as processed").
type ResponsePublisher struct {
	cfg      config.ResponseTopicConfig
	producer broker.Producer
	log      *logger.Logger
}

func NewResponsePublisher(cfg config.ResponseTopicConfig, producer broker.Producer, log *logger.Logger) *ResponsePublisher {
	return &ResponsePublisher{cfg: cfg, producer: producer, log: log}
}

// Publish is a no-op when the response topic is disabled.
func (p *ResponsePublisher) Publish(ctx context.Context, in ResponseInput) error {
	if !p.cfg.Enabled {
		return nil
	}

	if p.cfg.ValueFormat == "json" && len(in.ResponseBody) > 0 && !json.Valid(in.ResponseBody) {
		p.log.Warn("publisher: response body is not valid JSON, forwarding verbatim as string", "topic", in.SourceTopic)
	}

	rec := broker.OutboundRecord{
		Value:   in.ResponseBody,
		Headers: p.buildHeaders(in),
	}
	if p.cfg.IncludeOriginalKey {
		rec.Key = in.SourceKey
	}

	topic := resolveTopicTemplate(p.cfg.NameTemplate, in.SourceTopic)
	if err := p.producer.Publish(ctx, topic, rec); err != nil {
		return fmt.Errorf("publisher: publishing response record: %w", err)
	}
	return nil
}

// buildHeaders assembles the §4.5 header groups: filtered original
// headers, renamed HTTP response headers, then request metadata. The
// result is a map, so the order of the groups is not kept on the
// outbound record; on a name clash a later group overwrites an earlier
// one. All values, numeric ones included, are strings.
func (p *ResponsePublisher) buildHeaders(in ResponseInput) map[string]string {
	out := map[string]string{}

	if p.cfg.IncludeOriginalHeaders {
		for name, value := range filterHeaders(in.SourceHeaders, p.cfg.OriginalHeadersInclude) {
			out[name] = value
		}
	}

	for name, values := range in.ResponseHeaders {
		out["http.response."+name] = strings.Join(values, ",")
	}

	if p.cfg.IncludeRequestMetadata {
		out["http.status.code"] = strconv.Itoa(in.StatusCode)
		out["http.response.time.ms"] = strconv.FormatInt(in.ElapsedMs, 10)
		out["kafka.original.topic"] = in.SourceTopic
		out["kafka.original.partition"] = strconv.Itoa(int(in.SourcePartition))
		out["kafka.original.offset"] = strconv.FormatInt(in.SourceOffset, 10)
		if !in.SourceTimestamp.IsZero() {
			out["kafka.timestamp"] = strconv.FormatInt(in.SourceTimestamp.UnixMilli(), 10)
		}
	}

	return out
}

func filterHeaders(headers map[string]string, include []string) map[string]string {
	if len(include) == 0 {
		return headers
	}
	out := make(map[string]string, len(include))
	for _, name := range include {
		if v, ok := headers[name]; ok {
			out[name] = v
		}
	}
	return out
}

// resolveTopicTemplate supports a single "${source}" placeholder so one
// configured template can fan response topics out per-source-topic.
func resolveTopicTemplate(template, sourceTopic string) string {
	return strings.ReplaceAll(template, "${source}", sourceTopic)
}

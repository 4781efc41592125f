// Package pipeline runs the per-record state machine SPEC_FULL §4.7
// describes: CHECK_NULL -> BUILD_REQUEST -> EXECUTE -> (retry loop) ->
// PUBLISH_RESPONSE / PUBLISH_ERROR. One Pipeline instance is built per
// consumer-group task, mirroring the teacher's
// app.initDependencies/setupRouter composition-root style: collaborators
// are constructed once and wired together behind a single entry point,
// here Pipeline.Handle, called once per consumed Record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/broker"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/codec"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/headers"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/httpclient"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/metrics"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/publisher"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/retry"
)

// Pipeline wires every per-record collaborator: the HTTP executor, the
// header forwarder, the retry policy, and the two publishers.
type Pipeline struct {
	behaviour config.BehaviourConfig
	retryCfg  config.RetryConfig

	client    *httpclient.Client
	headers   *headers.Builder
	response  *publisher.ResponsePublisher
	errTopic  *publisher.ErrorPublisher
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New builds a Pipeline from its already-constructed collaborators.
// cmd/httpsink is responsible for wiring each one from Config.
func New(
	behaviour config.BehaviourConfig,
	retryCfg config.RetryConfig,
	client *httpclient.Client,
	headerBuilder *headers.Builder,
	response *publisher.ResponsePublisher,
	errTopic *publisher.ErrorPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		behaviour: behaviour,
		retryCfg:  retryCfg,
		client:    client,
		headers:   headerBuilder,
		response:  response,
		errTopic:  errTopic,
		metrics:   m,
		log:       log,
	}
}

// Handle runs one record through the full state machine. Its return
// value is what the broker's RecordHandler contract expects: non-nil
// means "do not advance the offset," which this pipeline only returns
// for faults the operator must see immediately (ConfigFault-class
// conditions do not reach here; they fail at startup).
func (p *Pipeline) Handle(ctx context.Context, rec broker.Record) error {
	p.metrics.RecordsInFlight.Inc()
	defer p.metrics.RecordsInFlight.Dec()

	body, err := codec.Encode(rec.Value)
	if err != nil {
		return p.handleNullValue(ctx, rec, err)
	}

	outboundHeaders := p.headers.Build(rec.Headers)

	status, respBody, respHeaders, elapsedMs, attempts, execErr := p.execute(ctx, body, outboundHeaders)

	// MAYBE_PUBLISH_RESPONSE runs before EMIT_ERROR on every path, per
	// SPEC_FULL's resolution of the publish-ordering open question. A
	// publish failure here is logged, not surfaced: the upstream call
	// already happened and must not be retried on account of it.
	if respErr := p.response.Publish(ctx, publisher.ResponseInput{
		SourceTopic:     rec.Topic,
		SourceKey:       rec.Key,
		SourceHeaders:   rec.Headers,
		SourcePartition: rec.Partition,
		SourceOffset:    rec.Offset,
		SourceTimestamp: rec.Timestamp,
		StatusCode:      status,
		ResponseBody:    respBody,
		ResponseHeaders: respHeaders,
		ElapsedMs:       elapsedMs,
		RequestAttempts: attempts,
	}); respErr != nil {
		p.log.Warn("pipeline: publishing response record failed", "topic", rec.Topic, "error", respErr.Error())
	}

	if execErr != nil {
		var transportErr error
		if _, ok := execErr.(*retry.StatusError); !ok {
			transportErr = execErr
		}
		p.errTopic.Publish(ctx, publisher.ErrorInput{
			SourceTopic:     rec.Topic,
			SourceKey:       rec.Key,
			SourceHeaders:   rec.Headers,
			SourcePartition: rec.Partition,
			SourceOffset:    rec.Offset,
			FaultType:       p.classifyHTTPFault(status, attempts, transportErr),
			FaultDetail:     execErr.Error(),
			StatusCode:      status,
			ResponseBody:    respBody,
			ResponseHeaders: respHeaders,
			Attempts:        attempts,
		})
		if p.behaviour.OnError == "fail" {
			return fmt.Errorf("pipeline: endpoint call failed after %d attempts: %w", attempts, execErr)
		}
		return nil
	}

	return nil
}

// classifyHTTPFault maps an exhausted EXECUTE outcome onto the
// errorType taxonomy SPEC_FULL §7 names.
func (p *Pipeline) classifyHTTPFault(status, attempts int, transportErr error) string {
	if transportErr != nil {
		return "HTTP_EXCEPTION"
	}
	if p.retryCfg.Enabled && attempts >= p.retryCfg.MaxAttempts && statusInList(status, p.retryCfg.RetryOnStatusCodes) {
		return "RETRY_EXHAUSTED"
	}
	return "HTTP_ERROR"
}

func statusInList(status int, codes []int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}

func (p *Pipeline) handleNullValue(ctx context.Context, rec broker.Record, cause error) error {
	if errors.Is(cause, codec.ErrNullValue) {
		if p.behaviour.OnNullValue == "ignore" {
			p.log.Debug("pipeline: ignoring null-value record", "topic", rec.Topic)
			return nil
		}
		if p.errTopic.Enabled() {
			p.errTopic.Publish(ctx, publisher.ErrorInput{
				SourceTopic:     rec.Topic,
				SourceKey:       rec.Key,
				SourceHeaders:   rec.Headers,
				SourcePartition: rec.Partition,
				SourceOffset:    rec.Offset,
				FaultType:       "NULL_VALUE",
				FaultDetail:     cause.Error(),
			})
			return nil
		}
		return fmt.Errorf("pipeline: %w", cause)
	}

	// A non-null value that still failed to convert is a BUILD_REQUEST
	// fault: on_null_value does not govern it, only error-topic
	// availability does.
	if p.errTopic.Enabled() {
		p.errTopic.Publish(ctx, publisher.ErrorInput{
			SourceTopic:     rec.Topic,
			SourceKey:       rec.Key,
			SourceHeaders:   rec.Headers,
			SourcePartition: rec.Partition,
			SourceOffset:    rec.Offset,
			FaultType:       "CONVERSION_ERROR",
			FaultDetail:     cause.Error(),
		})
		return nil
	}
	return fmt.Errorf("pipeline: %w", cause)
}

// execute runs the EXECUTE state and its retry loop: attempt, consult
// retry.Next, sleep (honoring ctx), repeat until retry.Next says stop.
// It always returns the last attempt's status/body/headers, even on
// failure, so the caller can still MAYBE_PUBLISH_RESPONSE with it.
func (p *Pipeline) execute(ctx context.Context, body []byte, outboundHeaders map[string]string) (status int, respBody []byte, respHeaders http.Header, elapsedMs int64, attempts int, err error) {
	for {
		attempts++
		start := time.Now()

		resp, doErr := p.client.Do(ctx, "", body, outboundHeaders)
		elapsed := time.Since(start)
		elapsedMs = elapsed.Milliseconds()

		var respStatus int
		if resp != nil {
			respStatus = resp.StatusCode
			respBody = resp.Body
			respHeaders = resp.Header
		}

		outcome := "success"
		if doErr != nil || respStatus >= 400 {
			outcome = "failure"
		}
		p.metrics.EndpointRequests.WithLabelValues(outcome).Inc()
		p.metrics.EndpointRequestLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())

		if doErr == nil && respStatus < 400 {
			return respStatus, respBody, respHeaders, elapsedMs, attempts, nil
		}

		var transportErr error
		if doErr != nil {
			transportErr = doErr
		}

		decision := retry.Next(p.retryCfg, attempts, respStatus, transportErr)
		if !decision.Retry {
			if doErr != nil {
				return 0, nil, nil, elapsedMs, attempts, doErr
			}
			return respStatus, respBody, respHeaders, elapsedMs, attempts, &retry.StatusError{Code: respStatus}
		}

		p.metrics.RetryAttempts.WithLabelValues("retried").Inc()

		select {
		case <-time.After(decision.Delay):
		case <-ctx.Done():
			return respStatus, respBody, respHeaders, elapsedMs, attempts, ctx.Err()
		}
	}
}

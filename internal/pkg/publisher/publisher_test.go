package publisher

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/broker"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/deadletter"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

var assertErr = &fakeErr{"boom"}

func TestResponsePublisher_DisabledIsNoop(t *testing.T) {
	producer := &broker.FakeProducer{}
	p := NewResponsePublisher(config.ResponseTopicConfig{Enabled: false}, producer, logger.New("info", "json"))
	err := p.Publish(context.Background(), ResponseInput{SourceTopic: "orders"})
	require.NoError(t, err)
	assert.Equal(t, 0, producer.Count())
}

func TestResponsePublisher_PublishesEnvelope(t *testing.T) {
	producer := &broker.FakeProducer{}
	p := NewResponsePublisher(config.ResponseTopicConfig{
		Enabled:                true,
		NameTemplate:           "${source}-responses",
		IncludeOriginalKey:     true,
		IncludeRequestMetadata: true,
		ValueFormat:            "string",
	}, producer, logger.New("info", "json"))

	err := p.Publish(context.Background(), ResponseInput{
		SourceTopic:     "orders",
		SourceKey:       []byte("k1"),
		SourcePartition: 0,
		SourceOffset:    100,
		StatusCode:      200,
		ResponseBody:    []byte(`{"ok":true}`),
	})
	require.NoError(t, err)
	require.Equal(t, 1, producer.Count())
	assert.Equal(t, "orders-responses", producer.Published[0].Topic)
	assert.Equal(t, []byte("k1"), producer.Published[0].Rec.Key)
	assert.Equal(t, []byte(`{"ok":true}`), producer.Published[0].Rec.Value)
	assert.Equal(t, "200", producer.Published[0].Rec.Headers["http.status.code"])
	assert.Equal(t, "orders", producer.Published[0].Rec.Headers["kafka.original.topic"])
	assert.Equal(t, "100", producer.Published[0].Rec.Headers["kafka.original.offset"])
}

func TestResponsePublisher_PublishFailureIsFault(t *testing.T) {
	producer := &broker.FakeProducer{PublishErr: assertErr}
	p := NewResponsePublisher(config.ResponseTopicConfig{Enabled: true, NameTemplate: "responses"}, producer, logger.New("info", "json"))
	err := p.Publish(context.Background(), ResponseInput{SourceTopic: "orders"})
	assert.Error(t, err)
}

func TestErrorPublisher_DisabledIsNoop(t *testing.T) {
	producer := &broker.FakeProducer{}
	p := NewErrorPublisher(config.ErrorTopicConfig{Enabled: false}, producer, nil, nil, logger.New("info", "json"))
	p.Publish(context.Background(), ErrorInput{SourceTopic: "orders"})
	assert.Equal(t, 0, producer.Count())
}

func TestErrorPublisher_PublishesEnvelope(t *testing.T) {
	producer := &broker.FakeProducer{}
	p := NewErrorPublisher(config.ErrorTopicConfig{Enabled: true, NameTemplate: "${source}-errors"}, producer, nil, nil, logger.New("info", "json"))
	p.Publish(context.Background(), ErrorInput{
		SourceTopic:     "orders",
		SourcePartition: 2,
		SourceOffset:    42,
		FaultType:       "RETRY_EXHAUSTED",
		StatusCode:      503,
		Attempts:        5,
	})
	require.Equal(t, 1, producer.Count())
	assert.Equal(t, "orders-errors", producer.Published[0].Topic)
	assert.JSONEq(t, `{"errorType":"RETRY_EXHAUSTED","errorMessage":"","errorTimestamp":`+
		producer.Published[0].Rec.Headers["error.timestamp"]+
		`,"retryCount":5,"httpStatusCode":503,"originalTopic":"orders","originalPartition":2,"originalOffset":42}`,
		string(producer.Published[0].Rec.Value))
	assert.Equal(t, "RETRY_EXHAUSTED", producer.Published[0].Rec.Headers["error.type"])
	assert.Equal(t, "503", producer.Published[0].Rec.Headers["error.http.status.code"])
	assert.Equal(t, "orders", producer.Published[0].Rec.Headers["kafka.original.topic"])
	assert.Equal(t, "42", producer.Published[0].Rec.Headers["kafka.original.offset"])
}

func TestErrorPublisher_FallsBackToDeadLetterOnPublishFailure(t *testing.T) {
	producer := &broker.FakeProducer{PublishErr: assertErr}
	dir := t.TempDir()
	sink, err := deadletter.New(config.DeadLetterConfig{Enabled: true, Backend: "file", Path: dir}, logger.New("info", "json"))
	require.NoError(t, err)

	p := NewErrorPublisher(config.ErrorTopicConfig{Enabled: true, NameTemplate: "errors"}, producer, sink, nil, logger.New("info", "json"))
	p.Publish(context.Background(), ErrorInput{SourceTopic: "orders", FaultType: "retry_exhausted"})

	entries, err := readDirNames(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func readDirNames(dir string) ([]string, error) {
	f, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f))
	for _, e := range f {
		names = append(names, e.Name())
	}
	return names, nil
}

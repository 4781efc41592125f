package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FakeProducer is a minimal in-memory Producer used by tests across
// packages that depend on broker.Producer (publisher, pipeline).
type FakeProducer struct {
	mu        sync.Mutex
	Published []struct {
		Topic string
		Rec   OutboundRecord
	}
	PublishErr error
}

func (f *FakeProducer) Publish(_ context.Context, topic string, rec OutboundRecord) error {
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, struct {
		Topic string
		Rec   OutboundRecord
	}{topic, rec})
	return nil
}

func (f *FakeProducer) Flush(_ context.Context) error { return nil }
func (f *FakeProducer) Close() error                  { return nil }

func (f *FakeProducer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Published)
}

func TestFakeProducer_PublishAppends(t *testing.T) {
	p := &FakeProducer{}
	err := p.Publish(context.Background(), "responses", OutboundRecord{Value: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count())
	assert.Equal(t, "responses", p.Published[0].Topic)
}

func TestFakeProducer_PublishError(t *testing.T) {
	p := &FakeProducer{PublishErr: assertErr}
	err := p.Publish(context.Background(), "responses", OutboundRecord{})
	assert.Error(t, err)
}

var assertErr = &testErr{"boom"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

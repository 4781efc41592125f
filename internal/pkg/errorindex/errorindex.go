// Package errorindex mirrors error-topic publications into an
// Elasticsearch index (SPEC_FULL §3/§4.6 NEW, error_topic.es_index)
// purely for operator search/inspection. It is additive and
// best-effort: an indexing failure is logged and never propagated.
package errorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// Document is the shape indexed for each failed record.
type Document struct {
	RecordTopic string    `json:"record_topic"`
	RecordKey   string    `json:"record_key,omitempty"`
	FaultType   string    `json:"fault_type"`
	FaultDetail string    `json:"fault_detail"`
	Attempts    int       `json:"attempts"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// Mirror indexes Documents into a single configured index. A zero-value
// Mirror (built with an empty index name) is a no-op, matching
// es_index being optional.
type Mirror struct {
	client *elasticsearch.Client
	index  string
	log    *logger.Logger
}

// New returns a no-op Mirror when index is empty, so callers never need
// to nil-check before calling Index.
func New(addresses []string, index string, log *logger.Logger) (*Mirror, error) {
	if index == "" {
		return &Mirror{}, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("errorindex: creating client: %w", err)
	}

	return &Mirror{client: client, index: index, log: log}, nil
}

// Index best-effort-mirrors doc into the configured index.
func (m *Mirror) Index(ctx context.Context, doc Document) {
	if m.index == "" {
		return
	}

	body, err := json.Marshal(doc)
	if err != nil {
		m.log.Warn("errorindex: marshaling document failed", "error", err.Error())
		return
	}

	req := esapi.IndexRequest{
		Index:      m.index,
		DocumentID: uuid.NewString(),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	resp, err := req.Do(ctx, m.client)
	if err != nil {
		m.log.Warn("errorindex: request failed", "error", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.IsError() {
		m.log.Warn("errorindex: indexing returned error status", "status", resp.Status())
	}
}

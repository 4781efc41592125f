// Package deadletter holds a record that could not be published to the
// error topic (SPEC_FULL §4.6 NEW): a last-resort sink so a best-effort
// publish failure does not silently lose the record's fault context.
// Disabled by default; never affects the record's own disposition.
package deadletter

import (
	"context"
	"fmt"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

// Entry is what gets written to the dead-letter backend: the record
// that failed, the value that would have gone to the error topic, and
// why the error-topic publish itself failed.
type Entry struct {
	Topic      string
	Key        []byte
	Value      []byte
	Reason     string
	RecordedAt string
}

// Sink writes dead-lettered entries. Failures here are logged, never
// propagated — this is already the fallback path.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// New builds the configured Sink, or a no-op Sink when disabled.
func New(cfg config.DeadLetterConfig, log *logger.Logger) (Sink, error) {
	if !cfg.Enabled {
		return noopSink{}, nil
	}
	switch cfg.Backend {
	case "s3":
		return newS3Sink(cfg.S3, log)
	case "file":
		return newFileSink(cfg.Path, log), nil
	default:
		return nil, fmt.Errorf("deadletter: unsupported backend %q", cfg.Backend)
	}
}

type noopSink struct{}

func (noopSink) Write(context.Context, Entry) error { return nil }

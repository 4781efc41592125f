package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

type fileSink struct {
	dir string
	log *logger.Logger
}

func newFileSink(dir string, log *logger.Logger) *fileSink {
	return &fileSink{dir: dir, log: log}
}

func (s *fileSink) Write(_ context.Context, entry Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("deadletter: creating directory %s: %w", s.dir, err)
	}

	body, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("deadletter: marshaling entry: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", entry.Topic, uuid.NewString()))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		s.log.Warn("deadletter: file write failed", "path", path, "error", err.Error())
		return err
	}
	return nil
}

package errorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
)

func TestNew_EmptyIndexIsNoop(t *testing.T) {
	m, err := New(nil, "", logger.New("info", "json"))
	require.NoError(t, err)
	// Index must not panic or dial anything when the mirror is disabled.
	m.Index(context.Background(), Document{RecordTopic: "orders"})
}

func TestNew_BuildsClientWhenIndexSet(t *testing.T) {
	m, err := New([]string{"http://localhost:9200"}, "httpsink-errors", logger.New("info", "json"))
	require.NoError(t, err)
	assert.Equal(t, "httpsink-errors", m.index)
}

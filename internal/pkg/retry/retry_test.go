package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
)

func testCfg() config.RetryConfig {
	return config.RetryConfig{
		Enabled:            true,
		MaxAttempts:        5,
		BackoffInitialMs:   100,
		BackoffMaxMs:       2000,
		BackoffMultiplier:  2,
		RetryOnStatusCodes: []int{429, 500, 502, 503, 504},
	}
}

func TestNext_DisabledNeverRetries(t *testing.T) {
	cfg := testCfg()
	cfg.Enabled = false
	d := Next(cfg, 1, 500, nil)
	assert.False(t, d.Retry)
}

func TestNext_RetriableStatus(t *testing.T) {
	d := Next(testCfg(), 1, 503, nil)
	assert.True(t, d.Retry)
	assert.Equal(t, 100*time.Millisecond, d.Delay)
}

func TestNext_NonRetriableStatus(t *testing.T) {
	d := Next(testCfg(), 1, 404, nil)
	assert.False(t, d.Retry)
}

func TestNext_TransportErrorAlwaysRetries(t *testing.T) {
	d := Next(testCfg(), 1, 0, errors.New("connection reset"))
	assert.True(t, d.Retry)
}

func TestNext_StopsAtMaxAttempts(t *testing.T) {
	cfg := testCfg()
	d := Next(cfg, cfg.MaxAttempts, 500, nil)
	assert.False(t, d.Retry)
}

func TestNext_BackoffGrows(t *testing.T) {
	cfg := testCfg()
	d1 := Next(cfg, 1, 500, nil)
	d2 := Next(cfg, 2, 500, nil)
	d3 := Next(cfg, 3, 500, nil)
	d4 := Next(cfg, 4, 500, nil)

	assert.Equal(t, 100*time.Millisecond, d1.Delay)
	assert.Equal(t, 200*time.Millisecond, d2.Delay)
	assert.Equal(t, 400*time.Millisecond, d3.Delay)
	assert.Equal(t, 800*time.Millisecond, d4.Delay)
}

func TestNext_BackoffCapsAtMax(t *testing.T) {
	cfg := testCfg()
	cfg.MaxAttempts = 20
	d := Next(cfg, 10, 500, nil)
	assert.Equal(t, 2000*time.Millisecond, d.Delay)
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{Code: 503}
	assert.NotEmpty(t, err.Error())
}

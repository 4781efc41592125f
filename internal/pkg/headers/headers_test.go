package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
)

func TestBuild_Disabled(t *testing.T) {
	b := New(config.ForwardHeadersConfig{Enabled: false})
	out := b.Build(map[string]string{"X-Trace-Id": "abc"})
	assert.Empty(t, out)
}

func TestBuild_IncludeGlob(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"x-*"},
	})
	out := b.Build(map[string]string{"X-Trace-Id": "abc", "Content-Length": "10"})
	assert.Equal(t, map[string]string{"X-Trace-Id": "abc"}, out)
}

func TestBuild_ExcludeGlobWins(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"*"},
		Exclude: []string{"content-*"},
	})
	out := b.Build(map[string]string{"X-Trace-Id": "abc", "Content-Length": "10"})
	assert.Equal(t, map[string]string{"X-Trace-Id": "abc"}, out)
}

func TestBuild_Prefix(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"*"},
		Prefix:  "Kafka-",
	})
	out := b.Build(map[string]string{"Trace-Id": "abc"})
	assert.Equal(t, "abc", out["Kafka-Trace-Id"])
}

func TestBuild_SanitizesInvalidCharacters(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"*"},
	})
	out := b.Build(map[string]string{"trace:id": "abc"})
	assert.Equal(t, "abc", out["trace-id"])
}

func TestBuild_PrependsXWhenNameDoesNotStartWithLetter(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"*"},
	})
	out := b.Build(map[string]string{"1-trace": "abc"})
	assert.Equal(t, "abc", out["X-1-trace"])
}

func TestBuild_CollidingNamesConcatenateValues(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"*"},
	})
	out := b.Build(map[string]string{"trace:id": "a", "trace-id": "b"})
	assert.Equal(t, "b,a", out["trace-id"])
}

func TestBuild_StaticOverridesForwarded(t *testing.T) {
	b := New(config.ForwardHeadersConfig{
		Enabled: true,
		Include: []string{"*"},
		Static:  map[string]string{"X-Trace-Id": "static-value"},
	})
	out := b.Build(map[string]string{"X-Trace-Id": "forwarded-value"})
	assert.Equal(t, "static-value", out["X-Trace-Id"])
}

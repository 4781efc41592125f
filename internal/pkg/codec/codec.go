// Package codec maps a consumed record's value onto the JSON body sent
// to the endpoint (SPEC_FULL §4.1). The source topic's value is always
// treated as either already-JSON bytes or UTF-8 text; this sink does
// not perform schema-registry decoding (an explicit Non-goal).
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrNullValue is returned by Encode when value is nil or empty; the
// pipeline's CHECK_NULL state decides whether that is fatal based on
// behaviour.on_null_value.
var ErrNullValue = fmt.Errorf("codec: record value is null")

// Encode returns the exact bytes to send as the request body. A value
// that already parses as a JSON object or array is passed through
// unchanged (preserving field order and formatting is not a goal); a
// bare JSON primitive (string/number/boolean/null) or a value that
// does not parse as JSON at all is wrapped as `{"value": ...}` so the
// endpoint always receives a JSON object.
func Encode(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, ErrNullValue
	}

	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return value, nil
	}

	if json.Valid(trimmed) {
		wrapped, err := json.Marshal(struct {
			Value json.RawMessage `json:"value"`
		}{Value: json.RawMessage(trimmed)})
		if err != nil {
			return nil, fmt.Errorf("codec: wrapping JSON primitive: %w", err)
		}
		return wrapped, nil
	}

	wrapped, err := json.Marshal(struct {
		Value string `json:"value"`
	}{Value: string(value)})
	if err != nil {
		return nil, fmt.Errorf("codec: wrapping non-JSON value: %w", err)
	}
	return wrapped, nil
}

// EncodeEnvelope wraps record metadata and a payload together, used by
// the error publisher to build its topic's value format rather than the
// endpoint's request body.
func EncodeEnvelope(v interface{}) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshaling envelope: %w", err)
	}
	return out, nil
}

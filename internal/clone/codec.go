package clone

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode clones v and renders the copy as JSON text, the form in which
// structured payloads travel through a channel.
func Encode(v any) (string, error) {
	s, err := sonic.ConfigStd.MarshalToString(Clone(v))
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return s, nil
}

// Decode parses a payload produced by Encode or by a worker's postMessage.
// Numbers decode as float64, objects as map[string]any, arrays as []any.
func Decode(payload string) (any, error) {
	if payload == "" {
		return nil, nil
	}
	var v any
	if err := sonic.ConfigStd.UnmarshalFromString(payload, &v); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return v, nil
}

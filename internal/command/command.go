// Package command defines the decoded form of one inbound request document
// and the typed accessors handlers use to read its fields.
package command

import (
	"encoding/json"
	"fmt"
)

// Command is one decoded inbound request. It lives for the duration of a
// single handler execution; unknown extra fields are carried along and
// ignored.
type Command map[string]any

// Decode parses the raw UTF-8 payload of an inbound message. The payload
// must be a JSON object; anything else is a decode failure and the message
// is dropped by the caller.
func Decode(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if cmd == nil {
		return nil, fmt.Errorf("decode command: payload is not a JSON object")
	}
	return cmd, nil
}

// String returns the field as a string, reporting whether it was present and
// of the right type.
func (c Command) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64 returns the field as an int64. JSON numbers decode as float64; whole
// floats are accepted, anything else is treated as absent.
func (c Command) Int64(key string) (int64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

package wamp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeJSON parses a JSON document keeping numbers exact.
// Integers become int64 or uint64, floats become float64 when that re-encodes
// to the same text. Anything else stays a json.Number.
func DecodeJSON(raw []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var v any
	e := decoder.Decode(&v)
	if e != nil {
		return nil, e
	}
	if decoder.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		return normalizeNumber(v)
	case map[string]any:
		for key, value := range v {
			v[key] = normalizeNumbers(value)
		}
		return v
	case []any:
		for i, value := range v {
			v[i] = normalizeNumbers(value)
		}
		return v
	}
	return v
}

func normalizeNumber(v json.Number) any {
	if n, e := v.Int64(); e == nil {
		return n
	}
	if n, e := strconv.ParseUint(v.String(), 10, 64); e == nil {
		return n
	}
	f, e := v.Float64()
	if e != nil {
		return v
	}
	text, e := json.Marshal(f)
	if e != nil || string(text) != v.String() {
		return v
	}
	return f
}

// SplitPayload maps a payload onto WAMP arguments.
// A JSON object travels as named arguments, anything else as one positional argument.
func SplitPayload(payload any) (args []any, kwargs map[string]any, e error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return splitRaw(v)
	case []byte:
		return splitRaw(v)
	case map[string]any:
		if v == nil {
			v = map[string]any{}
		}
		return nil, v, nil
	}
	return []any{payload}, nil, nil
}

func splitRaw(raw []byte) ([]any, map[string]any, error) {
	v, e := DecodeJSON(raw)
	if e != nil {
		return nil, nil, e
	}
	return SplitPayload(v)
}

// JoinPayload reverses SplitPayload for a received event
func JoinPayload(args []any, kwargs map[string]any) any {
	if len(args) == 0 && kwargs != nil {
		return kwargs
	}
	if len(args) == 1 && len(kwargs) == 0 {
		return args[0]
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{"args": args, "kwargs": kwargs}
}

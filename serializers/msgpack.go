package wampSerializers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	wamp "github.com/wamp3hub/wampytester"
)

type MsgpackSerializer struct{}

func (MsgpackSerializer) Code() string {
	return "msgpack"
}

func (MsgpackSerializer) Binary() bool {
	return true
}

func (MsgpackSerializer) Encode(event wamp.Event) ([]byte, error) {
	list, e := wamp.EncodeList(event)
	if e != nil {
		return nil, e
	}
	return msgpack.Marshal(encodeNumbers(list))
}

// encodeNumbers turns json.Number into the closest msgpack numeric type
func encodeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, e := v.Int64(); e == nil {
			return n
		}
		if n, e := strconv.ParseUint(v.String(), 10, 64); e == nil {
			return n
		}
		if f, e := v.Float64(); e == nil {
			return f
		}
		return v.String()
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = encodeNumbers(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = encodeNumbers(value)
		}
		return result
	}
	return v
}

func (MsgpackSerializer) Decode(v []byte) (wamp.Event, error) {
	var list []any
	e := msgpack.NewDecoder(bytes.NewReader(v)).Decode(&list)
	if e != nil {
		return nil, fmt.Errorf("%w: %s", wamp.ErrorProtocolViolation, e)
	}
	return wamp.DecodeList(list)
}

// ByCode resolves a serializer from its short code
func ByCode(code string) (wamp.Serializer, error) {
	switch code {
	case "", "json":
		return new(JSONSerializer), nil
	case "msgpack":
		return new(MsgpackSerializer), nil
	}
	return nil, fmt.Errorf("unknown serializer %q", code)
}

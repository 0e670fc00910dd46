package wampSerializers

import (
	"encoding/json"
	"fmt"

	wamp "github.com/wamp3hub/wampytester"
)

type JSONSerializer struct{}

func (JSONSerializer) Code() string {
	return "json"
}

func (JSONSerializer) Binary() bool {
	return false
}

func (JSONSerializer) Encode(event wamp.Event) ([]byte, error) {
	list, e := wamp.EncodeList(event)
	if e != nil {
		return nil, e
	}
	return json.Marshal(list)
}

// Decode keeps integers exact, they arrive as int64
func (JSONSerializer) Decode(v []byte) (wamp.Event, error) {
	message, e := wamp.DecodeJSON(v)
	if e != nil {
		return nil, fmt.Errorf("%w: %s", wamp.ErrorProtocolViolation, e)
	}
	list, ok := message.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: message is not a list", wamp.ErrorProtocolViolation)
	}
	return wamp.DecodeList(list)
}

var DefaultSerializer wamp.Serializer = new(JSONSerializer)

package wamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrorUnexpectedEventKind = errors.New("UnexpectedEventKind")

func appendPayload(list []any, args []any, kwargs map[string]any) []any {
	if kwargs != nil {
		if args == nil {
			args = []any{}
		}
		return append(list, args, kwargs)
	}
	if len(args) > 0 {
		return append(list, args)
	}
	return list
}

func details(v Details) Details {
	if v == nil {
		return Details{}
	}
	return v
}

// EncodeList converts an event into its WAMP array representation
func EncodeList(event Event) ([]any, error) {
	switch event := event.(type) {
	case HelloEvent:
		features := event.Features()
		return []any{MK_HELLO, features.Realm, details(features.Details)}, nil
	case WelcomeEvent:
		features := event.Features()
		return []any{MK_WELCOME, features.SessionID, details(features.Details)}, nil
	case AbortEvent:
		features := event.Features()
		return []any{MK_ABORT, details(features.Details), features.Reason}, nil
	case GoodbyeEvent:
		features := event.Features()
		return []any{MK_GOODBYE, details(features.Details), features.Reason}, nil
	case ErrorEvent:
		features := event.Features()
		list := []any{MK_ERROR, features.RequestKind, features.RequestID, details(features.Details), features.URI}
		return appendPayload(list, event.Arguments(), event.ArgumentsKw()), nil
	case PublishEvent:
		features := event.Features()
		list := []any{MK_PUBLISH, features.RequestID, details(features.Options), features.Topic}
		return appendPayload(list, event.Arguments(), event.ArgumentsKw()), nil
	case PublishedEvent:
		features := event.Features()
		return []any{MK_PUBLISHED, features.RequestID, features.PublicationID}, nil
	case SubscribeEvent:
		features := event.Features()
		return []any{MK_SUBSCRIBE, features.RequestID, details(features.Options), features.Topic}, nil
	case SubscribedEvent:
		features := event.Features()
		return []any{MK_SUBSCRIBED, features.RequestID, features.SubscriptionID}, nil
	case UnsubscribeEvent:
		features := event.Features()
		return []any{MK_UNSUBSCRIBE, features.RequestID, features.SubscriptionID}, nil
	case UnsubscribedEvent:
		features := event.Features()
		return []any{MK_UNSUBSCRIBED, features.RequestID}, nil
	case PublicationEvent:
		features := event.Features()
		list := []any{MK_EVENT, features.SubscriptionID, features.PublicationID, details(features.Details)}
		return appendPayload(list, event.Arguments(), event.ArgumentsKw()), nil
	}
	return nil, ErrorUnexpectedEventKind
}

type listReader struct {
	items []any
	e     error
}

func (reader *listReader) fail(index int, expected string) {
	if reader.e == nil {
		reader.e = fmt.Errorf("%w: element %d is not %s", ErrorProtocolViolation, index, expected)
	}
}

func (reader *listReader) require(n int) bool {
	if len(reader.items) < n {
		reader.e = fmt.Errorf("%w: expected at least %d elements, got %d", ErrorProtocolViolation, n, len(reader.items))
		return false
	}
	return true
}

func (reader *listReader) id(index int) uint64 {
	v, ok := toID(reader.items[index])
	if !ok {
		reader.fail(index, "an ID")
	}
	return v
}

func (reader *listReader) string(index int) string {
	v, ok := reader.items[index].(string)
	if !ok {
		reader.fail(index, "a string")
	}
	return v
}

func (reader *listReader) dict(index int) Details {
	v, ok := toDict(reader.items[index])
	if !ok {
		reader.fail(index, "a dictionary")
	}
	return v
}

func (reader *listReader) payload(index int) ([]any, map[string]any) {
	var args []any
	var kwargs map[string]any
	if len(reader.items) > index {
		v, ok := toList(reader.items[index])
		if !ok {
			reader.fail(index, "a list")
		}
		args = v
	}
	if len(reader.items) > index+1 {
		v, ok := toDict(reader.items[index+1])
		if !ok {
			reader.fail(index+1, "a dictionary")
		}
		kwargs = v
	}
	return args, kwargs
}

// DecodeList converts a WAMP array into an event
func DecodeList(items []any) (Event, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrorProtocolViolation)
	}
	code, ok := toID(items[0])
	if !ok {
		return nil, fmt.Errorf("%w: invalid message kind", ErrorProtocolViolation)
	}

	reader := listReader{items: items}
	var event Event
	switch kind := MessageKind(code); kind {
	case MK_HELLO:
		if reader.require(3) {
			event = MakeHelloEvent(&HelloFeatures{reader.string(1), reader.dict(2)})
		}
	case MK_WELCOME:
		if reader.require(3) {
			event = MakeWelcomeEvent(&WelcomeFeatures{reader.id(1), reader.dict(2)})
		}
	case MK_ABORT:
		if reader.require(3) {
			event = MakeAbortEvent(&CloseFeatures{reader.dict(1), reader.string(2)})
		}
	case MK_GOODBYE:
		if reader.require(3) {
			event = MakeGoodbyeEvent(&CloseFeatures{reader.dict(1), reader.string(2)})
		}
	case MK_ERROR:
		if reader.require(5) {
			features := ErrorFeatures{MessageKind(reader.id(1)), reader.id(2), reader.dict(3), reader.string(4)}
			args, kwargs := reader.payload(5)
			event = MakeErrorEvent(&features, args, kwargs)
		}
	case MK_PUBLISH:
		if reader.require(4) {
			features := PublishFeatures{reader.id(1), reader.dict(2), reader.string(3)}
			args, kwargs := reader.payload(4)
			event = MakePublishEvent(&features, args, kwargs)
		}
	case MK_PUBLISHED:
		if reader.require(3) {
			event = MakePublishedEvent(&PublishedFeatures{reader.id(1), reader.id(2)})
		}
	case MK_SUBSCRIBE:
		if reader.require(4) {
			event = MakeSubscribeEvent(&SubscribeFeatures{reader.id(1), reader.dict(2), reader.string(3)})
		}
	case MK_SUBSCRIBED:
		if reader.require(3) {
			event = MakeSubscribedEvent(&SubscribedFeatures{reader.id(1), reader.id(2)})
		}
	case MK_UNSUBSCRIBE:
		if reader.require(3) {
			event = MakeUnsubscribeEvent(&UnsubscribeFeatures{reader.id(1), reader.id(2)})
		}
	case MK_UNSUBSCRIBED:
		if reader.require(2) {
			event = MakeUnsubscribedEvent(&UnsubscribedFeatures{reader.id(1)})
		}
	case MK_EVENT:
		if reader.require(4) {
			features := PublicationFeatures{reader.id(1), reader.id(2), reader.dict(3)}
			args, kwargs := reader.payload(4)
			event = MakePublicationEvent(&features, args, kwargs)
		}
	default:
		return nil, fmt.Errorf("%w(%d)", ErrorUnexpectedEventKind, code)
	}

	if reader.e != nil {
		return nil, reader.e
	}
	return event, nil
}

// toID accepts every numeric representation produced by the JSON and msgpack decoders
func toID(v any) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int64:
		return uint64(v), v >= 0
	case int32:
		return uint64(v), v >= 0
	case int16:
		return uint64(v), v >= 0
	case int8:
		return uint64(v), v >= 0
	case int:
		return uint64(v), v >= 0
	case MessageKind:
		return uint64(v), v >= 0
	case float64:
		return uint64(v), v >= 0 && v == math.Trunc(v)
	case float32:
		return uint64(v), v >= 0 && float64(v) == math.Trunc(float64(v))
	case json.Number:
		n, e := v.Int64()
		return uint64(n), e == nil && n >= 0
	}
	return 0, false
}

func toDict(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			name, ok := key.(string)
			if !ok {
				return nil, false
			}
			result[name] = value
		}
		return result, true
	case nil:
		return map[string]any{}, true
	}
	return nil, false
}

func toList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case nil:
		return nil, true
	}
	return nil, false
}

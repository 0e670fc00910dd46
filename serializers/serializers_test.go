package wampSerializers_test

import (
	"testing"

	wamp "github.com/wamp3hub/wampytester"
	wampSerializers "github.com/wamp3hub/wampytester/serializers"
)

func roundTrip(t *testing.T, serializer wamp.Serializer, event wamp.Event) wamp.Event {
	raw, e := serializer.Encode(event)
	if e != nil {
		t.Fatal(e)
	}
	decoded, e := serializer.Decode(raw)
	if e != nil {
		t.Fatal(e)
	}
	if decoded.Kind() != event.Kind() {
		t.Fatalf("InvalidKind: expected %s, got %s", event.Kind(), decoded.Kind())
	}
	return decoded
}

func testHelloEventSerializer(t *testing.T, serializer wamp.Serializer) {
	event := wamp.MakeHelloEvent(&wamp.HelloFeatures{Realm: "realm1", Details: wamp.Details{"agent": "test"}})
	hello, ok := roundTrip(t, serializer, event).(wamp.HelloEvent)
	if !ok {
		t.Fatal("InvalidBehaviour")
	}
	features := hello.Features()
	if features.Realm != "realm1" || features.Details["agent"] != "test" {
		t.Fatalf("InvalidFeatures %+v", features)
	}
}

func testPublishEventSerializer(t *testing.T, serializer wamp.Serializer) {
	expectedFeatures := wamp.PublishFeatures{RequestID: 7, Options: wamp.Details{}, Topic: "t.a"}
	event := wamp.MakePublishEvent(&expectedFeatures, nil, map[string]any{"x": int64(1)})
	publish, ok := roundTrip(t, serializer, event).(wamp.PublishEvent)
	if !ok {
		t.Fatal("InvalidBehaviour")
	}
	features := publish.Features()
	if features.RequestID != 7 || features.Topic != "t.a" {
		t.Fatalf("InvalidFeatures %+v", features)
	}
	if len(publish.Arguments()) != 0 {
		t.Fatalf("InvalidArguments %v", publish.Arguments())
	}
	x, ok := publish.ArgumentsKw()["x"]
	if !ok {
		t.Fatal("InvalidPayload")
	}
	n, ok := wampSerializersNumber(x)
	if !ok || n != 1 {
		t.Fatalf("InvalidPayload %#v", x)
	}
}

func testPositionalPayloadSerializer(t *testing.T, serializer wamp.Serializer) {
	event := wamp.MakePublicationEvent(
		&wamp.PublicationFeatures{SubscriptionID: 3, PublicationID: 9, Details: wamp.Details{}},
		[]any{"hello"},
		nil,
	)
	publication, ok := roundTrip(t, serializer, event).(wamp.PublicationEvent)
	if !ok {
		t.Fatal("InvalidBehaviour")
	}
	if publication.Features().SubscriptionID != 3 || publication.Features().PublicationID != 9 {
		t.Fatal("InvalidFeatures")
	}
	args := publication.Arguments()
	if len(args) != 1 || args[0] != "hello" {
		t.Fatalf("InvalidPayload %v", args)
	}
	if publication.ArgumentsKw() != nil {
		t.Fatalf("unexpected kwargs %v", publication.ArgumentsKw())
	}
}

func testErrorEventSerializer(t *testing.T, serializer wamp.Serializer) {
	event := wamp.MakeErrorEvent(
		&wamp.ErrorFeatures{RequestKind: wamp.MK_SUBSCRIBE, RequestID: 4, Details: wamp.Details{}, URI: "wamp.error.not_authorized"},
		[]any{"denied"},
		nil,
	)
	errorEvent, ok := roundTrip(t, serializer, event).(wamp.ErrorEvent)
	if !ok {
		t.Fatal("InvalidBehaviour")
	}
	features := errorEvent.Features()
	if features.RequestKind != wamp.MK_SUBSCRIBE || features.RequestID != 4 || features.URI != "wamp.error.not_authorized" {
		t.Fatalf("InvalidFeatures %+v", features)
	}
}

func testGoodbyeAbortSerializer(t *testing.T, serializer wamp.Serializer) {
	goodbye := wamp.MakeGoodbyeEvent(&wamp.CloseFeatures{Details: wamp.Details{}, Reason: wamp.CloseRealm})
	if _, ok := roundTrip(t, serializer, goodbye).(wamp.GoodbyeEvent); !ok {
		t.Fatal("GOODBYE decoded as another kind")
	}
	abort := wamp.MakeAbortEvent(&wamp.CloseFeatures{Details: wamp.Details{}, Reason: "wamp.error.no_such_realm"})
	decoded, ok := roundTrip(t, serializer, abort).(wamp.AbortEvent)
	if !ok {
		t.Fatal("ABORT decoded as another kind")
	}
	if decoded.Features().Reason != "wamp.error.no_such_realm" {
		t.Fatal("InvalidFeatures")
	}
}

func testSubscribeFlowSerializer(t *testing.T, serializer wamp.Serializer) {
	subscribe := wamp.MakeSubscribeEvent(&wamp.SubscribeFeatures{RequestID: 1, Options: wamp.Details{}, Topic: "t.a"})
	if roundTrip(t, serializer, subscribe).(wamp.SubscribeEvent).Features().Topic != "t.a" {
		t.Fatal("InvalidFeatures")
	}
	subscribed := wamp.MakeSubscribedEvent(&wamp.SubscribedFeatures{RequestID: 1, SubscriptionID: 77})
	if roundTrip(t, serializer, subscribed).(wamp.SubscribedEvent).Features().SubscriptionID != 77 {
		t.Fatal("InvalidFeatures")
	}
	unsubscribed := wamp.MakeUnsubscribedEvent(&wamp.UnsubscribedFeatures{RequestID: 2})
	if roundTrip(t, serializer, unsubscribed).(wamp.UnsubscribedEvent).Features().RequestID != 2 {
		t.Fatal("InvalidFeatures")
	}
}

func wampSerializersNumber(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	if n, ok := v.(interface{ Int64() (int64, error) }); ok {
		value, e := n.Int64()
		return value, e == nil
	}
	return 0, false
}

func testSerializer(t *testing.T, serializer wamp.Serializer) {
	testHelloEventSerializer(t, serializer)
	testPublishEventSerializer(t, serializer)
	testPositionalPayloadSerializer(t, serializer)
	testErrorEventSerializer(t, serializer)
	testGoodbyeAbortSerializer(t, serializer)
	testSubscribeFlowSerializer(t, serializer)
}

func TestHappyPathJSONSerializer(t *testing.T) {
	serializer := new(wampSerializers.JSONSerializer)
	if serializer.Code() != "json" {
		t.Fatal("invalid serializer code")
	}
	testSerializer(t, serializer)
}

func TestHappyPathMsgpackSerializer(t *testing.T) {
	serializer := new(wampSerializers.MsgpackSerializer)
	if serializer.Code() != "msgpack" {
		t.Fatal("invalid serializer code")
	}
	testSerializer(t, serializer)
}

func TestJSONWireFormat(t *testing.T) {
	serializer := new(wampSerializers.JSONSerializer)
	event := wamp.MakePublishEvent(
		&wamp.PublishFeatures{RequestID: 1, Topic: "t.a"},
		nil,
		map[string]any{},
	)
	raw, e := serializer.Encode(event)
	if e != nil {
		t.Fatal(e)
	}
	if string(raw) != `[16,1,{},"t.a",[],{}]` {
		t.Fatalf("unexpected wire format %s", raw)
	}

	_, e = serializer.Decode([]byte(`[999]`))
	if e == nil {
		t.Fatal("expected error for unknown message kind")
	}
	_, e = serializer.Decode([]byte(`{"kind":1}`))
	if e == nil {
		t.Fatal("expected error for non-array message")
	}
}

func TestByCode(t *testing.T) {
	for _, code := range []string{"json", "msgpack"} {
		serializer, e := wampSerializers.ByCode(code)
		if e != nil || serializer.Code() != code {
			t.Errorf("ByCode(%q) failed: %v", code, e)
		}
	}
	if _, e := wampSerializers.ByCode("cbor"); e == nil {
		t.Error("expected error for unknown serializer")
	}
}

func TestMsgpackJSONNumber(t *testing.T) {
	payload, e := wamp.DecodeJSON([]byte(`{"n":12345678901234567890,"f":1.0}`))
	if e != nil {
		t.Fatal(e)
	}
	features := wamp.PublishFeatures{RequestID: 1, Options: wamp.Details{}, Topic: "t.a"}
	event := wamp.MakePublishEvent(&features, nil, payload.(map[string]any))
	publish, ok := roundTrip(t, new(wampSerializers.MsgpackSerializer), event).(wamp.PublishEvent)
	if !ok {
		t.Fatal("InvalidBehaviour")
	}
	kwargs := publish.ArgumentsKw()
	if n, ok := kwargs["n"].(uint64); !ok || n != 12345678901234567890 {
		t.Fatalf("InvalidPayload %#v", kwargs["n"])
	}
	if f, ok := kwargs["f"].(float64); !ok || f != 1 {
		t.Fatalf("InvalidPayload %#v", kwargs["f"])
	}
}

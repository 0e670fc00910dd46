package wamp

type MessageKind int

const (
	MK_UNDEFINED    MessageKind = 0
	MK_HELLO        MessageKind = 1
	MK_WELCOME      MessageKind = 2
	MK_ABORT        MessageKind = 3
	MK_GOODBYE      MessageKind = 6
	MK_ERROR        MessageKind = 8
	MK_PUBLISH      MessageKind = 16
	MK_PUBLISHED    MessageKind = 17
	MK_SUBSCRIBE    MessageKind = 32
	MK_SUBSCRIBED   MessageKind = 33
	MK_UNSUBSCRIBE  MessageKind = 34
	MK_UNSUBSCRIBED MessageKind = 35
	MK_EVENT        MessageKind = 36
)

func (kind MessageKind) String() string {
	switch kind {
	case MK_HELLO:
		return "HELLO"
	case MK_WELCOME:
		return "WELCOME"
	case MK_ABORT:
		return "ABORT"
	case MK_GOODBYE:
		return "GOODBYE"
	case MK_ERROR:
		return "ERROR"
	case MK_PUBLISH:
		return "PUBLISH"
	case MK_PUBLISHED:
		return "PUBLISHED"
	case MK_SUBSCRIBE:
		return "SUBSCRIBE"
	case MK_SUBSCRIBED:
		return "SUBSCRIBED"
	case MK_UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case MK_UNSUBSCRIBED:
		return "UNSUBSCRIBED"
	case MK_EVENT:
		return "EVENT"
	}
	return "UNDEFINED"
}

// Close reasons used during the session close handshake
const (
	CloseRealm      = "wamp.close.close_realm"
	CloseGoodbyeOut = "wamp.close.goodbye_and_out"
	CloseSystemDown = "wamp.close.system_shutdown"
)

type Details = map[string]any

type Event interface {
	Kind() MessageKind
}

type messageProto[F any] struct {
	kind     MessageKind
	features F
}

func (message *messageProto[F]) Kind() MessageKind {
	return message.kind
}

func (message *messageProto[F]) Features() F {
	return message.features
}

type messagePayload interface {
	Arguments() []any
	ArgumentsKw() map[string]any
}

type messagePayloadField struct {
	args   []any
	kwargs map[string]any
}

func (field *messagePayloadField) Arguments() []any {
	return field.args
}

func (field *messagePayloadField) ArgumentsKw() map[string]any {
	return field.kwargs
}

type payloadMessage[F any] struct {
	*messageProto[F]
	*messagePayloadField
}

func makePayloadMessage[F any](kind MessageKind, features F, args []any, kwargs map[string]any) *payloadMessage[F] {
	return &payloadMessage[F]{
		&messageProto[F]{kind, features},
		&messagePayloadField{args, kwargs},
	}
}

type HelloFeatures struct {
	Realm   string
	Details Details
}

type HelloEvent interface {
	Event
	Features() *HelloFeatures
}

func MakeHelloEvent(features *HelloFeatures) HelloEvent {
	return &messageProto[*HelloFeatures]{MK_HELLO, features}
}

type WelcomeFeatures struct {
	SessionID uint64
	Details   Details
}

type WelcomeEvent interface {
	Event
	Features() *WelcomeFeatures
}

func MakeWelcomeEvent(features *WelcomeFeatures) WelcomeEvent {
	return &messageProto[*WelcomeFeatures]{MK_WELCOME, features}
}

// CloseFeatures are shared by ABORT and GOODBYE
type CloseFeatures struct {
	Details Details
	Reason  string
}

type AbortEvent interface {
	Event
	Features() *CloseFeatures
	abort()
}

type abortMessage struct {
	*messageProto[*CloseFeatures]
}

func (abortMessage) abort() {}

func MakeAbortEvent(features *CloseFeatures) AbortEvent {
	return abortMessage{&messageProto[*CloseFeatures]{MK_ABORT, features}}
}

type GoodbyeEvent interface {
	Event
	Features() *CloseFeatures
	goodbye()
}

type goodbyeMessage struct {
	*messageProto[*CloseFeatures]
}

func (goodbyeMessage) goodbye() {}

func MakeGoodbyeEvent(features *CloseFeatures) GoodbyeEvent {
	return goodbyeMessage{&messageProto[*CloseFeatures]{MK_GOODBYE, features}}
}

type ErrorFeatures struct {
	RequestKind MessageKind
	RequestID   uint64
	Details     Details
	URI         string
}

type ErrorEvent interface {
	Event
	Features() *ErrorFeatures
	messagePayload
}

func MakeErrorEvent(features *ErrorFeatures, args []any, kwargs map[string]any) ErrorEvent {
	return makePayloadMessage(MK_ERROR, features, args, kwargs)
}

type PublishFeatures struct {
	RequestID uint64
	Options   Details
	Topic     string
}

type PublishEvent interface {
	Event
	Features() *PublishFeatures
	messagePayload
}

func MakePublishEvent(features *PublishFeatures, args []any, kwargs map[string]any) PublishEvent {
	return makePayloadMessage(MK_PUBLISH, features, args, kwargs)
}

type PublishedFeatures struct {
	RequestID     uint64
	PublicationID uint64
}

type PublishedEvent interface {
	Event
	Features() *PublishedFeatures
}

func MakePublishedEvent(features *PublishedFeatures) PublishedEvent {
	return &messageProto[*PublishedFeatures]{MK_PUBLISHED, features}
}

type SubscribeFeatures struct {
	RequestID uint64
	Options   Details
	Topic     string
}

type SubscribeEvent interface {
	Event
	Features() *SubscribeFeatures
}

func MakeSubscribeEvent(features *SubscribeFeatures) SubscribeEvent {
	return &messageProto[*SubscribeFeatures]{MK_SUBSCRIBE, features}
}

type SubscribedFeatures struct {
	RequestID      uint64
	SubscriptionID uint64
}

type SubscribedEvent interface {
	Event
	Features() *SubscribedFeatures
}

func MakeSubscribedEvent(features *SubscribedFeatures) SubscribedEvent {
	return &messageProto[*SubscribedFeatures]{MK_SUBSCRIBED, features}
}

type UnsubscribeFeatures struct {
	RequestID      uint64
	SubscriptionID uint64
}

type UnsubscribeEvent interface {
	Event
	Features() *UnsubscribeFeatures
}

func MakeUnsubscribeEvent(features *UnsubscribeFeatures) UnsubscribeEvent {
	return &messageProto[*UnsubscribeFeatures]{MK_UNSUBSCRIBE, features}
}

type UnsubscribedFeatures struct {
	RequestID uint64
}

type UnsubscribedEvent interface {
	Event
	Features() *UnsubscribedFeatures
}

func MakeUnsubscribedEvent(features *UnsubscribedFeatures) UnsubscribedEvent {
	return &messageProto[*UnsubscribedFeatures]{MK_UNSUBSCRIBED, features}
}

type PublicationFeatures struct {
	SubscriptionID uint64
	PublicationID  uint64
	Details        Details
}

// PublicationEvent is the WAMP EVENT message delivered to subscribers
type PublicationEvent interface {
	Event
	Features() *PublicationFeatures
	messagePayload
}

func MakePublicationEvent(features *PublicationFeatures, args []any, kwargs map[string]any) PublicationEvent {
	return makePayloadMessage(MK_EVENT, features, args, kwargs)
}

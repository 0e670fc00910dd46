package wampEngine

import "time"

// Viewer is a passive consumer of the message history.
// Methods run on the goroutine that runs Engine.Run.
type Viewer interface {
	OnSent(realm string, topic string, timestamp time.Time, payload any)
	OnReceived(realm string, topic string, timestamp time.Time, payload any, failed bool)
}

// Resettable viewers can clear what they display, the log file is untouched
type Resettable interface {
	Reset()
}

type Direction int

const (
	DirectionSent Direction = iota
	DirectionReceived
	// status notifications only reach the subscription callback
	DirectionStatus
)

// SubscriptionCallback receives (realm, topic, {"args", "kwargs"}) for events
// and (realm, "Subscription"|"Connection", {"success"|"error"}) for status
type SubscriptionCallback func(realm string, topic string, payload map[string]any)

// Notification crosses from background goroutines to the foreground
type Notification struct {
	Direction Direction
	Realm     string
	Topic     string
	Timestamp time.Time
	// what the log and the viewers see
	Payload any
	Failed  bool

	callback        SubscriptionCallback
	callbackPayload map[string]any
}

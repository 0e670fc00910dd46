package wampEngine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	wamp "github.com/wamp3hub/wampytester"
	wampConfig "github.com/wamp3hub/wampytester/config"
)

const (
	TOPIC_SUBSCRIPTION = "Subscription"
	TOPIC_CONNECTION   = "Connection"
)

type subscriptionAttempt struct {
	realm          string
	topics         []string
	callback       SubscriptionCallback
	active         atomic.Bool
	summaryOnce    sync.Once
	connectionOnce sync.Once
}

type SubscriptionManagerOptions struct {
	Registry *Registry
	// called from session goroutines, must not block
	Post     func(Notification)
	Received func(realm string)
	Failed   func(ErrorKind)
	Logger   *slog.Logger
}

// SubscriptionManager keeps one subscriber session per realm with its set of topics
type SubscriptionManager struct {
	mutex    sync.Mutex
	starting sync.Mutex
	attempts map[string]*subscriptionAttempt
	registry *Registry
	post     func(Notification)
	received func(string)
	failed   func(ErrorKind)
	logger   *slog.Logger
}

func NewSubscriptionManager(options *SubscriptionManagerOptions) *SubscriptionManager {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	manager := SubscriptionManager{
		attempts: make(map[string]*subscriptionAttempt),
		registry: options.Registry,
		post:     options.Post,
		received: options.Received,
		failed:   options.Failed,
		logger:   options.Logger.With("name", "SubscriptionManager"),
	}
	return &manager
}

// Start replaces the subscriber session of realm and subscribes to topics on a fresh one.
// It returns once the previous session left, the outcome arrives through callback.
func (manager *SubscriptionManager) Start(
	ctx context.Context,
	realm string,
	routerURL string,
	topics []string,
	callback SubscriptionCallback,
) error {
	if len(realm) == 0 {
		return newError(KindConfiguration, "", "", fmt.Errorf("realm is required"))
	}
	e := wampConfig.ValidateRouterURL(routerURL)
	if e != nil {
		return newError(KindConfiguration, realm, "", e)
	}
	if len(topics) == 0 {
		return newError(KindConfiguration, realm, "", fmt.Errorf("at least one topic is required"))
	}
	for _, topic := range topics {
		if len(topic) == 0 {
			return newError(KindConfiguration, realm, "", fmt.Errorf("empty topic"))
		}
	}

	manager.starting.Lock()
	defer manager.starting.Unlock()

	manager.mutex.Lock()
	previous, found := manager.attempts[realm]
	delete(manager.attempts, realm)
	manager.mutex.Unlock()
	if found {
		previous.active.Store(false)
	}
	manager.registry.Replace(ctx, realm, RoleSubscriber)

	attempt := subscriptionAttempt{
		realm:    realm,
		topics:   append([]string(nil), topics...),
		callback: callback,
	}
	attempt.active.Store(true)
	manager.mutex.Lock()
	manager.attempts[realm] = &attempt
	manager.mutex.Unlock()

	manager.logger.Info("subscribing", slog.Group("subscription", "realm", realm, "topics", topics))
	manager.registry.GetOrCreate(
		realm, routerURL, RoleSubscriber,
		func(handle *Handle) {
			go manager.subscribeAll(&attempt, handle)
			go func() {
				<-handle.Done()
				manager.connectionLost(&attempt, handle.LastError())
			}()
		},
		func(_ *Handle, e error) {
			manager.connectionLost(&attempt, e)
		},
	)
	return nil
}

func (manager *SubscriptionManager) subscribeAll(attempt *subscriptionAttempt, handle *Handle) {
	session := handle.Session()
	if session == nil {
		return
	}
	logger := manager.logger.With(slog.Group("subscription", "realm", attempt.realm, "handleID", handle.ID))

	var failures []string
	var subscribed []string
	for _, topic := range attempt.topics {
		if !attempt.active.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), wamp.DEFAULT_TIMEOUT)
		_, e := session.Subscribe(ctx, topic, manager.endpoint(attempt, topic))
		cancel()
		if e != nil {
			logger.Warn("during subscribe", "topic", topic, "error", e)
			failures = append(failures, fmt.Sprintf("Topic %s: %s", topic, e))
			if manager.failed != nil {
				manager.failed(KindSubscribe)
			}
			continue
		}
		subscribed = append(subscribed, topic)
	}

	var summary map[string]any
	if len(failures) > 0 {
		summary = map[string]any{"error": strings.Join(failures, "; ")}
	} else {
		summary = map[string]any{"success": "Subscribed to " + strings.Join(subscribed, ", ")}
	}
	attempt.summaryOnce.Do(func() {
		if !attempt.active.Load() {
			return
		}
		logger.Info("subscription summary", "subscribed", len(subscribed), "failed", len(failures))
		manager.post(Notification{
			Direction:       DirectionStatus,
			Realm:           attempt.realm,
			Topic:           TOPIC_SUBSCRIPTION,
			Timestamp:       time.Now(),
			Payload:         summary,
			Failed:          len(failures) > 0,
			callback:        attempt.callback,
			callbackPayload: summary,
		})
	})
}

// endpoint runs on the session read loop, events are posted in arrival order
func (manager *SubscriptionManager) endpoint(attempt *subscriptionAttempt, topic string) wamp.PublishEndpoint {
	return func(event wamp.PublicationEvent) {
		if !attempt.active.Load() {
			return
		}
		args := event.Arguments()
		if args == nil {
			args = []any{}
		}
		kwargs := event.ArgumentsKw()
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		if manager.received != nil {
			manager.received(attempt.realm)
		}
		manager.post(Notification{
			Direction:       DirectionReceived,
			Realm:           attempt.realm,
			Topic:           topic,
			Timestamp:       time.Now(),
			Payload:         wamp.JoinPayload(event.Arguments(), event.ArgumentsKw()),
			callback:        attempt.callback,
			callbackPayload: map[string]any{"args": args, "kwargs": kwargs},
		})
	}
}

// connectionLost reports the end of a session that nobody asked to stop
func (manager *SubscriptionManager) connectionLost(attempt *subscriptionAttempt, cause error) {
	if !attempt.active.Load() {
		return
	}
	manager.mutex.Lock()
	if manager.attempts[attempt.realm] == attempt {
		delete(manager.attempts, attempt.realm)
	}
	manager.mutex.Unlock()

	attempt.connectionOnce.Do(func() {
		attempt.active.Store(false)
		if cause == nil {
			cause = wamp.ErrorConnectionClosed
		}
		if manager.failed != nil {
			manager.failed(KindConnection)
		}
		manager.logger.Warn("subscriber connection lost", "realm", attempt.realm, "error", cause)
		payload := map[string]any{"error": cause.Error()}
		manager.post(Notification{
			Direction:       DirectionReceived,
			Realm:           attempt.realm,
			Topic:           TOPIC_CONNECTION,
			Timestamp:       time.Now(),
			Payload:         payload,
			Failed:          true,
			callback:        attempt.callback,
			callbackPayload: payload,
		})
	})
}

// Realms lists realms with an active subscription attempt
func (manager *SubscriptionManager) Realms() []string {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	result := make([]string, 0, len(manager.attempts))
	for realm := range manager.attempts {
		result = append(result, realm)
	}
	return result
}

// Topics returns the topics requested for realm
func (manager *SubscriptionManager) Topics(realm string) ([]string, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	attempt, found := manager.attempts[realm]
	if !found {
		return nil, false
	}
	return append([]string(nil), attempt.topics...), true
}

func (manager *SubscriptionManager) StopAll(ctx context.Context) {
	manager.starting.Lock()
	defer manager.starting.Unlock()

	manager.mutex.Lock()
	for realm, attempt := range manager.attempts {
		attempt.active.Store(false)
		delete(manager.attempts, realm)
	}
	manager.mutex.Unlock()
	manager.registry.StopAll(ctx, RoleSubscriber)
}

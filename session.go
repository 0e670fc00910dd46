package wamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	wampShared "github.com/wamp3hub/wampytester/shared"
)

const DEFAULT_TIMEOUT = time.Minute

const AGENT = "wamPy Tester"

// welcome replies are correlated under the reserved request ID 0
const welcomeKey uint64 = 0

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateJoined
	StateLeaving
	StateClosed
	StateFailed
)

func (state SessionState) String() string {
	switch state {
	case StateConnecting:
		return "Connecting"
	case StateJoined:
		return "Joined"
	case StateLeaving:
		return "Leaving"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

func (state SessionState) Terminal() bool {
	return state == StateClosed || state == StateFailed
}

type Subscription struct {
	ID       uint64
	Topic    string
	endpoint PublishEndpoint
}

type pendingSubscribe struct {
	topic    string
	endpoint PublishEndpoint
}

type Session struct {
	ID            uint64
	realm         string
	details       Details
	peer          *Peer
	mutex         sync.Mutex
	state         SessionState
	e             error
	requestSeq    atomic.Uint64
	replies       *wampShared.PendingMap[uint64, Event]
	subscribing   map[uint64]pendingSubscribe
	subscriptions map[uint64][]*Subscription
	leaving       wampShared.Completable[GoodbyeEvent]
	States        *wampShared.Observable[SessionState]
	done          chan struct{}
	logger        *slog.Logger
}

type JoinOptions struct {
	// extra HELLO details merged over the defaults
	Details Details
	Timeout time.Duration
	Logger  *slog.Logger
}

func newSession(realm string, logger *slog.Logger) *Session {
	return &Session{
		realm:         realm,
		state:         StateConnecting,
		replies:       wampShared.NewPendingMap[uint64, Event](),
		subscribing:   make(map[uint64]pendingSubscribe),
		subscriptions: make(map[uint64][]*Subscription),
		States:        wampShared.NewObservable[SessionState](),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

func helloDetails(extra Details) Details {
	result := Details{
		"agent": AGENT,
		"roles": Details{
			"publisher":  Details{"features": Details{}},
			"subscriber": Details{"features": Details{}},
		},
	}
	for key, value := range extra {
		result[key] = value
	}
	return result
}

// Join performs the HELLO/WELCOME handshake over an open transport
func Join(
	ctx context.Context,
	transport Transport,
	realm string,
	options *JoinOptions,
) (*Session, error) {
	if options == nil {
		options = new(JoinOptions)
	}
	if options.Timeout == 0 {
		options.Timeout = DEFAULT_TIMEOUT
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	e := ctx.Err()
	if e != nil {
		transport.Close()
		return nil, e
	}

	logger := options.Logger.With("name", "Session", "realm", realm)
	session := newSession(realm, logger)
	welcomePromise, cancelWelcome := session.replies.New(welcomeKey, options.Timeout)
	session.peer = SpawnPeer(transport, session.onMessage, session.onClose, logger)

	logger.Debug("trying to join")
	hello := MakeHelloEvent(&HelloFeatures{realm, helloDetails(options.Details)})
	e = session.peer.Send(hello)
	if e != nil {
		cancelWelcome()
		session.peer.Close(e)
		return nil, e
	}

	select {
	case <-ctx.Done():
		cancelWelcome()
		session.peer.Close(ctx.Err())
		return nil, ctx.Err()
	case reply, done := <-welcomePromise:
		if !done {
			e = session.peer.Err()
			if e == nil && session.State().Terminal() {
				e = ErrorConnectionClosed
			} else if e == nil {
				e = ErrorTimedOut
			}
			session.peer.Close(e)
			logger.Error("during join", "error", e)
			return nil, e
		}

		switch reply := reply.(type) {
		case WelcomeEvent:
			features := reply.Features()
			session.mutex.Lock()
			session.ID = features.SessionID
			session.details = features.Details
			session.logger = logger.With("sessionID", features.SessionID)
			session.mutex.Unlock()
			session.setState(StateJoined, nil)
			session.logger.Info("successfully joined")
			return session, nil
		case AbortEvent:
			e = newAbortError(reply)
		default:
			e = fmt.Errorf("%w: unexpected %s during join", ErrorProtocolViolation, reply.Kind())
		}
		session.peer.Close(e)
		logger.Error("join rejected", "error", e)
		return nil, e
	}
}

func (session *Session) Realm() string {
	return session.realm
}

func (session *Session) Details() Details {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.details
}

func (session *Session) State() SessionState {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.state
}

// Done is closed once the session reaches Closed or Failed
func (session *Session) Done() <-chan struct{} {
	return session.done
}

// Err returns the terminal error of a Failed session
func (session *Session) Err() error {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.e
}

func (session *Session) setState(state SessionState, e error) bool {
	session.mutex.Lock()
	if session.state.Terminal() || session.state == state {
		session.mutex.Unlock()
		return false
	}
	session.state = state
	if e != nil {
		session.e = e
	}
	session.mutex.Unlock()

	session.logger.Debug("state changed", "state", state)
	session.States.Next(state)
	if state.Terminal() {
		close(session.done)
		session.States.Complete()
	}
	return true
}

func (session *Session) nextRequestID() uint64 {
	return session.requestSeq.Add(1)
}

func (session *Session) ready() error {
	if session.State() != StateJoined {
		return ErrorNotReady
	}
	return nil
}

func (session *Session) onClose(reason error) {
	session.replies.CancelAll()
	session.mutex.Lock()
	leaving := session.state == StateLeaving || session.state == StateClosed
	session.mutex.Unlock()

	if leaving || reason == nil {
		session.setState(StateClosed, nil)
		return
	}
	e := errors.Join(ErrorConnectionLost, reason)
	if session.setState(StateFailed, e) {
		session.logger.Warn("connection lost", "error", reason)
	}
}

func (session *Session) onMessage(event Event) {
	switch event := event.(type) {
	case WelcomeEvent:
		session.complete(welcomeKey, event)
	case AbortEvent:
		if !session.complete(welcomeKey, event) {
			session.logger.Warn("session aborted", "reason", event.Features().Reason)
			session.peer.Close(newAbortError(event))
		}
	case SubscribedEvent:
		features := event.Features()
		session.mutex.Lock()
		request, found := session.subscribing[features.RequestID]
		delete(session.subscribing, features.RequestID)
		if found {
			subscription := Subscription{features.SubscriptionID, request.topic, request.endpoint}
			session.subscriptions[features.SubscriptionID] = append(
				session.subscriptions[features.SubscriptionID], &subscription,
			)
		}
		session.mutex.Unlock()
		session.complete(features.RequestID, event)
	case PublishedEvent:
		session.complete(event.Features().RequestID, event)
	case UnsubscribedEvent:
		session.complete(event.Features().RequestID, event)
	case ErrorEvent:
		features := event.Features()
		if features.RequestKind == MK_SUBSCRIBE {
			session.mutex.Lock()
			delete(session.subscribing, features.RequestID)
			session.mutex.Unlock()
		}
		if !session.complete(features.RequestID, event) {
			session.logger.Warn(
				"router error",
				slog.Group("error", "URI", features.URI, "request", features.RequestKind, "ID", features.RequestID),
			)
		}
	case PublicationEvent:
		session.deliver(event)
	case GoodbyeEvent:
		session.onGoodbye(event)
	default:
		session.logger.Warn("unexpected message", "kind", event.Kind())
	}
}

func (session *Session) complete(requestID uint64, event Event) bool {
	e := session.replies.Complete(requestID, event)
	if e != nil {
		session.logger.Debug("reply without pending request", "requestID", requestID, "kind", event.Kind())
		return false
	}
	return true
}

func (session *Session) deliver(event PublicationEvent) {
	features := event.Features()
	session.mutex.Lock()
	subscriptions := append([]*Subscription(nil), session.subscriptions[features.SubscriptionID]...)
	session.mutex.Unlock()

	if len(subscriptions) == 0 {
		session.logger.Warn(
			"subscription not found",
			"subscriptionID", features.SubscriptionID,
			"publicationID", features.PublicationID,
		)
		return
	}
	for _, subscription := range subscriptions {
		subscription.execute(session.logger, event)
	}
}

func (session *Session) onGoodbye(event GoodbyeEvent) {
	session.mutex.Lock()
	state := session.state
	leaving := session.leaving
	session.mutex.Unlock()

	if state == StateLeaving && leaving != nil {
		leaving(event)
		return
	}

	session.logger.Info("router closed the session", "reason", event.Features().Reason)
	session.setState(StateLeaving, nil)
	reply := MakeGoodbyeEvent(&CloseFeatures{Details{}, CloseGoodbyeOut})
	e := session.peer.SendNow(reply)
	if e != nil {
		session.logger.Debug("during goodbye reply", "error", e)
	}
	session.peer.Close(nil)
}

func (session *Session) await(
	ctx context.Context,
	promise wampShared.Promise[Event],
	cancel wampShared.Cancellable,
) (Event, error) {
	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case reply, done := <-promise:
		if done {
			errorEvent, isError := reply.(ErrorEvent)
			if isError {
				return nil, newProtocolError(errorEvent)
			}
			return reply, nil
		}
		if e := session.Err(); e != nil {
			return nil, e
		}
		if session.State().Terminal() {
			return nil, ErrorConnectionClosed
		}
		return nil, ErrorTimedOut
	}
}

// Publish enqueues a PUBLISH without waiting for the router
func (session *Session) Publish(topic string, payload any) error {
	_, e := session.publish(topic, payload, Details{})
	return e
}

func (session *Session) publish(topic string, payload any, options Details) (uint64, error) {
	e := session.ready()
	if e != nil {
		return 0, e
	}
	args, kwargs, e := SplitPayload(payload)
	if e != nil {
		return 0, e
	}
	requestID := session.nextRequestID()
	event := MakePublishEvent(&PublishFeatures{requestID, options, topic}, args, kwargs)
	return requestID, session.peer.Send(event)
}

// PublishAcknowledged publishes and waits for PUBLISHED, returning the publication ID
func (session *Session) PublishAcknowledged(ctx context.Context, topic string, payload any) (uint64, error) {
	e := session.ready()
	if e != nil {
		return 0, e
	}
	args, kwargs, e := SplitPayload(payload)
	if e != nil {
		return 0, e
	}
	requestID := session.nextRequestID()
	promise, cancel := session.replies.New(requestID, DEFAULT_TIMEOUT)
	event := MakePublishEvent(&PublishFeatures{requestID, Details{"acknowledge": true}, topic}, args, kwargs)
	e = session.peer.Send(event)
	if e != nil {
		cancel()
		return 0, e
	}
	reply, e := session.await(ctx, promise, cancel)
	if e != nil {
		return 0, e
	}
	published, ok := reply.(PublishedEvent)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected %s", ErrorProtocolViolation, reply.Kind())
	}
	return published.Features().PublicationID, nil
}

func (session *Session) Subscribe(
	ctx context.Context,
	topic string,
	endpoint PublishEndpoint,
) (*Subscription, error) {
	e := session.ready()
	if e != nil {
		return nil, e
	}

	requestID := session.nextRequestID()
	session.mutex.Lock()
	session.subscribing[requestID] = pendingSubscribe{topic, endpoint}
	session.mutex.Unlock()

	logData := slog.Group("subscribe", "topic", topic, "requestID", requestID)
	session.logger.Debug("trying to subscribe", logData)

	promise, cancel := session.replies.New(requestID, DEFAULT_TIMEOUT)
	e = session.peer.Send(MakeSubscribeEvent(&SubscribeFeatures{requestID, Details{}, topic}))
	if e == nil {
		var reply Event
		reply, e = session.await(ctx, promise, cancel)
		if e == nil {
			subscribed, ok := reply.(SubscribedEvent)
			if ok {
				subscriptionID := subscribed.Features().SubscriptionID
				session.logger.Debug("subscribe success", logData, "subscriptionID", subscriptionID)
				return session.findSubscription(subscriptionID, topic), nil
			}
			e = fmt.Errorf("%w: unexpected %s", ErrorProtocolViolation, reply.Kind())
		}
	} else {
		cancel()
	}

	session.mutex.Lock()
	delete(session.subscribing, requestID)
	session.mutex.Unlock()
	session.logger.Warn("during subscribe", "error", e, logData)
	return nil, e
}

func (session *Session) findSubscription(subscriptionID uint64, topic string) *Subscription {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	list := session.subscriptions[subscriptionID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Topic == topic {
			return list[i]
		}
	}
	return &Subscription{ID: subscriptionID, Topic: topic}
}

// Subscriptions lists the topics with at least one local handler
func (session *Session) Subscriptions() []*Subscription {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	var result []*Subscription
	for _, list := range session.subscriptions {
		result = append(result, list...)
	}
	return result
}

func (session *Session) Unsubscribe(ctx context.Context, subscription *Subscription) error {
	e := session.ready()
	if e != nil {
		return e
	}

	session.mutex.Lock()
	list := session.subscriptions[subscription.ID]
	remaining := list[:0:0]
	for _, instance := range list {
		if instance != subscription {
			remaining = append(remaining, instance)
		}
	}
	if len(remaining) > 0 {
		session.subscriptions[subscription.ID] = remaining
	} else {
		delete(session.subscriptions, subscription.ID)
	}
	session.mutex.Unlock()

	if len(remaining) > 0 {
		// other local handlers still need the router subscription
		return nil
	}

	requestID := session.nextRequestID()
	promise, cancel := session.replies.New(requestID, DEFAULT_TIMEOUT)
	e = session.peer.Send(MakeUnsubscribeEvent(&UnsubscribeFeatures{requestID, subscription.ID}))
	if e != nil {
		cancel()
		return e
	}
	_, e = session.await(ctx, promise, cancel)
	return e
}

// Leave runs the GOODBYE handshake and closes the transport.
// The transport is closed even when ctx expires before the router answers.
func (session *Session) Leave(ctx context.Context, reason string) error {
	if len(reason) == 0 {
		reason = CloseRealm
	}

	session.mutex.Lock()
	state := session.state
	if state != StateJoined {
		session.mutex.Unlock()
		if !state.Terminal() {
			session.peer.Close(nil)
		}
		return nil
	}
	promise, complete, cancel := wampShared.NewPromise[GoodbyeEvent](0)
	session.leaving = complete
	session.mutex.Unlock()
	session.setState(StateLeaving, nil)

	session.logger.Debug("trying to leave", "reason", reason)
	e := session.peer.Send(MakeGoodbyeEvent(&CloseFeatures{Details{}, reason}))
	if e == nil {
		select {
		case <-ctx.Done():
			e = ctx.Err()
			session.logger.Warn("goodbye not acknowledged", "error", e)
		case <-promise:
		case <-session.peer.Closed():
		}
	}
	cancel()
	session.peer.Close(nil)
	return e
}

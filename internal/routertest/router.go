// Package wampRouterTest is a minimal in-process WAMP broker for tests.
// It understands the basic profile pub/sub messages and nothing else.
package wampRouterTest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	wamp "github.com/wamp3hub/wampytester"
	wampTransports "github.com/wamp3hub/wampytester/transports"
)

type Publication struct {
	Realm   string
	Topic   string
	Args    []any
	Kwargs  map[string]any
	Options wamp.Details
}

// Payload reassembles the published value the way the client split it
func (publication Publication) Payload() any {
	return wamp.JoinPayload(publication.Args, publication.Kwargs)
}

type Options struct {
	// accepted realms, empty accepts any realm
	Realms []string
	// topics answered with an ERROR instead of SUBSCRIBED
	RejectTopics []string
	Logger       *slog.Logger
}

type subscription struct {
	ID          uint64
	subscribers map[uint64]*peerSession
}

type peerSession struct {
	ID        uint64
	realm     string
	transport wamp.Transport
	writing   sync.Mutex
	kicked    bool
}

func (session *peerSession) send(event wamp.Event) error {
	session.writing.Lock()
	defer session.writing.Unlock()
	return session.transport.Write(event)
}

type Router struct {
	mutex         sync.Mutex
	realms        map[string]bool
	rejected      map[string]bool
	sessions      map[uint64]*peerSession
	subscriptions map[string]map[string]*subscription
	publications  []Publication
	joins         map[string]int
	changed       chan struct{}
	sequence      uint64
	servers       []*httptest.Server
	logger        *slog.Logger
}

func New(options *Options) *Router {
	if options == nil {
		options = new(Options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	router := Router{
		realms:        make(map[string]bool),
		rejected:      make(map[string]bool),
		sessions:      make(map[uint64]*peerSession),
		subscriptions: make(map[string]map[string]*subscription),
		joins:         make(map[string]int),
		changed:       make(chan struct{}),
		logger:        options.Logger.With("name", "TestRouter"),
	}
	for _, realm := range options.Realms {
		router.realms[realm] = true
	}
	for _, topic := range options.RejectTopics {
		router.rejected[topic] = true
	}
	return &router
}

func (router *Router) nextID() uint64 {
	router.sequence++
	return router.sequence
}

// notify wakes every waiter, the caller must hold the mutex
func (router *Router) notify() {
	close(router.changed)
	router.changed = make(chan struct{})
}

// ConnectLocal serves one end of an in-memory transport and returns the other
func (router *Router) ConnectLocal() wamp.Transport {
	client, server := wampTransports.NewDuplexLocalTransport(128)
	go router.Serve(server)
	return client
}

// ListenWebsocket starts an HTTP server accepting WAMP websocket clients and returns its ws:// URL
func (router *Router) ListenWebsocket() string {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport, e := wampTransports.WebsocketAccept(w, r)
		if e != nil {
			router.logger.Warn("during websocket accept", "error", e)
			return
		}
		router.Serve(transport)
	}))
	router.mutex.Lock()
	router.servers = append(router.servers, server)
	router.mutex.Unlock()
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// Close drops every client and stops the websocket servers
func (router *Router) Close() {
	router.mutex.Lock()
	servers := router.servers
	router.servers = nil
	sessions := make([]*peerSession, 0, len(router.sessions))
	for _, session := range router.sessions {
		sessions = append(sessions, session)
	}
	router.mutex.Unlock()

	for _, session := range sessions {
		session.transport.Close()
	}
	for _, server := range servers {
		server.CloseClientConnections()
		server.Close()
	}
}

// Serve runs the broker side of one client connection until it closes
func (router *Router) Serve(transport wamp.Transport) {
	defer transport.Close()

	event, e := transport.Read()
	if e != nil {
		return
	}
	hello, ok := event.(wamp.HelloEvent)
	if !ok {
		transport.Write(wamp.MakeAbortEvent(&wamp.CloseFeatures{Details: wamp.Details{}, Reason: "wamp.error.protocol_violation"}))
		return
	}
	realm := hello.Features().Realm

	router.mutex.Lock()
	if len(router.realms) > 0 && !router.realms[realm] {
		router.mutex.Unlock()
		transport.Write(wamp.MakeAbortEvent(&wamp.CloseFeatures{
			Details: wamp.Details{"message": "realm " + realm + " does not exist"},
			Reason:  "wamp.error.no_such_realm",
		}))
		return
	}
	session := peerSession{ID: router.nextID(), realm: realm, transport: transport}
	router.sessions[session.ID] = &session
	router.joins[realm]++
	router.notify()
	router.mutex.Unlock()

	logger := router.logger.With(slog.Group("session", "realm", realm, "ID", session.ID))
	defer router.forget(&session)

	e = session.send(wamp.MakeWelcomeEvent(&wamp.WelcomeFeatures{
		SessionID: session.ID,
		Details:   wamp.Details{"roles": wamp.Details{"broker": wamp.Details{}}},
	}))
	if e != nil {
		return
	}
	logger.Debug("joined")

	for {
		event, e := transport.Read()
		if e != nil {
			logger.Debug("client gone", "error", e)
			return
		}
		switch event := event.(type) {
		case wamp.SubscribeEvent:
			router.onSubscribe(&session, event)
		case wamp.UnsubscribeEvent:
			router.onUnsubscribe(&session, event)
		case wamp.PublishEvent:
			router.onPublish(&session, event)
		case wamp.GoodbyeEvent:
			router.mutex.Lock()
			kicked := session.kicked
			router.mutex.Unlock()
			if !kicked {
				session.send(wamp.MakeGoodbyeEvent(&wamp.CloseFeatures{Details: wamp.Details{}, Reason: wamp.CloseGoodbyeOut}))
			}
			logger.Debug("left", "reason", event.Features().Reason)
			return
		default:
			logger.Warn("unexpected message", "kind", event.Kind())
		}
	}
}

func (router *Router) forget(session *peerSession) {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	delete(router.sessions, session.ID)
	for _, topics := range router.subscriptions[session.realm] {
		delete(topics.subscribers, session.ID)
	}
	router.notify()
}

func (router *Router) onSubscribe(session *peerSession, event wamp.SubscribeEvent) {
	features := event.Features()
	router.mutex.Lock()
	if router.rejected[features.Topic] {
		router.mutex.Unlock()
		session.send(wamp.MakeErrorEvent(
			&wamp.ErrorFeatures{
				RequestKind: wamp.MK_SUBSCRIBE,
				RequestID:   features.RequestID,
				Details:     wamp.Details{},
				URI:         "wamp.error.not_authorized",
			},
			[]any{"subscription to " + features.Topic + " denied"},
			nil,
		))
		return
	}
	topics, found := router.subscriptions[session.realm]
	if !found {
		topics = make(map[string]*subscription)
		router.subscriptions[session.realm] = topics
	}
	instance, found := topics[features.Topic]
	if !found {
		instance = &subscription{router.nextID(), make(map[uint64]*peerSession)}
		topics[features.Topic] = instance
	}
	instance.subscribers[session.ID] = session
	router.notify()
	router.mutex.Unlock()

	session.send(wamp.MakeSubscribedEvent(&wamp.SubscribedFeatures{
		RequestID:      features.RequestID,
		SubscriptionID: instance.ID,
	}))
}

func (router *Router) onUnsubscribe(session *peerSession, event wamp.UnsubscribeEvent) {
	features := event.Features()
	router.mutex.Lock()
	found := false
	for _, instance := range router.subscriptions[session.realm] {
		if instance.ID == features.SubscriptionID {
			_, found = instance.subscribers[session.ID]
			delete(instance.subscribers, session.ID)
		}
	}
	router.mutex.Unlock()

	if !found {
		session.send(wamp.MakeErrorEvent(
			&wamp.ErrorFeatures{
				RequestKind: wamp.MK_UNSUBSCRIBE,
				RequestID:   features.RequestID,
				Details:     wamp.Details{},
				URI:         "wamp.error.no_such_subscription",
			},
			nil, nil,
		))
		return
	}
	session.send(wamp.MakeUnsubscribedEvent(&wamp.UnsubscribedFeatures{RequestID: features.RequestID}))
}

func (router *Router) onPublish(session *peerSession, event wamp.PublishEvent) {
	features := event.Features()
	excludeMe := true
	if v, ok := features.Options["exclude_me"].(bool); ok {
		excludeMe = v
	}
	acknowledge, _ := features.Options["acknowledge"].(bool)

	publicationID := router.dispatch(
		Publication{session.realm, features.Topic, event.Arguments(), event.ArgumentsKw(), features.Options},
		session.ID, excludeMe,
	)
	if acknowledge {
		session.send(wamp.MakePublishedEvent(&wamp.PublishedFeatures{
			RequestID:     features.RequestID,
			PublicationID: publicationID,
		}))
	}
}

func (router *Router) dispatch(publication Publication, publisherID uint64, excludeMe bool) uint64 {
	router.mutex.Lock()
	publicationID := router.nextID()
	router.publications = append(router.publications, publication)
	var receivers []*peerSession
	var subscriptionID uint64
	instance, found := router.subscriptions[publication.Realm][publication.Topic]
	if found {
		subscriptionID = instance.ID
		for ID, subscriber := range instance.subscribers {
			if excludeMe && ID == publisherID {
				continue
			}
			receivers = append(receivers, subscriber)
		}
	}
	router.notify()
	router.mutex.Unlock()

	for _, receiver := range receivers {
		receiver.send(wamp.MakePublicationEvent(
			&wamp.PublicationFeatures{
				SubscriptionID: subscriptionID,
				PublicationID:  publicationID,
				Details:        wamp.Details{},
			},
			publication.Args, publication.Kwargs,
		))
	}
	return publicationID
}

// Emit publishes on behalf of an external client
func (router *Router) Emit(realm string, topic string, payload any) {
	args, kwargs, e := wamp.SplitPayload(payload)
	if e != nil {
		panic(e)
	}
	router.dispatch(Publication{realm, topic, args, kwargs, wamp.Details{}}, 0, false)
}

// Kick asks every session of realm to leave with a router-initiated GOODBYE
func (router *Router) Kick(realm string) {
	router.mutex.Lock()
	var sessions []*peerSession
	for _, session := range router.sessions {
		if session.realm == realm {
			session.kicked = true
			sessions = append(sessions, session)
		}
	}
	router.mutex.Unlock()

	for _, session := range sessions {
		session.send(wamp.MakeGoodbyeEvent(&wamp.CloseFeatures{
			Details: wamp.Details{},
			Reason:  wamp.CloseSystemDown,
		}))
	}
}

// Drop closes the transports of realm without any GOODBYE
func (router *Router) Drop(realm string) {
	router.mutex.Lock()
	var sessions []*peerSession
	for _, session := range router.sessions {
		if session.realm == realm {
			sessions = append(sessions, session)
		}
	}
	router.mutex.Unlock()

	for _, session := range sessions {
		session.transport.Close()
	}
}

func (router *Router) Publications() []Publication {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	return append([]Publication(nil), router.publications...)
}

// Sessions counts the currently joined sessions of realm
func (router *Router) Sessions(realm string) int {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	count := 0
	for _, session := range router.sessions {
		if session.realm == realm {
			count++
		}
	}
	return count
}

// Joins counts every successful join of realm since start
func (router *Router) Joins(realm string) int {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	return router.joins[realm]
}

// Subscribers counts the sessions subscribed to topic in realm
func (router *Router) Subscribers(realm string, topic string) int {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	instance, found := router.subscriptions[realm][topic]
	if !found {
		return 0
	}
	return len(instance.subscribers)
}

// WaitFor blocks until condition holds or ctx expires
func (router *Router) WaitFor(ctx context.Context, condition func() bool) error {
	for {
		router.mutex.Lock()
		changed := router.changed
		router.mutex.Unlock()
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// WaitPublications blocks until at least n publications were recorded
func (router *Router) WaitPublications(ctx context.Context, n int) ([]Publication, error) {
	e := router.WaitFor(ctx, func() bool {
		return len(router.Publications()) >= n
	})
	return router.Publications(), e
}

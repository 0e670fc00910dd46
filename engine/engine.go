// Package wampEngine owns the sessions, schedules publications, installs
// subscriptions and funnels everything that happens into the message log.
package wampEngine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	wamp "github.com/wamp3hub/wampytester"
	wampConfig "github.com/wamp3hub/wampytester/config"
	wampLogSink "github.com/wamp3hub/wampytester/logsink"
	wampSerializers "github.com/wamp3hub/wampytester/serializers"
	wampShared "github.com/wamp3hub/wampytester/shared"
	wampTransports "github.com/wamp3hub/wampytester/transports"
)

const (
	DEFAULT_JOIN_TIMEOUT = 10 * time.Second
	DEFAULT_LEAVE_GRACE  = 3 * time.Second
)

type Options struct {
	LogDir string
	// overrides the transport based connector
	Connector   Connector
	Serializer  wamp.Serializer
	JoinTimeout time.Duration
	LeaveGrace  time.Duration
	// builds the dial retry strategy of each join, nil dials once
	DialStrategy func() wampShared.RetryStrategy
	Logger       *slog.Logger
}

// TransportConnector joins through the transport picked by the router URL scheme
func TransportConnector(
	serializer wamp.Serializer,
	dialStrategy func() wampShared.RetryStrategy,
	logger *slog.Logger,
) Connector {
	return func(ctx context.Context, realm string, routerURL string) (*wamp.Session, error) {
		joinOptions := wampTransports.JoinOptions{
			Serializer:     serializer,
			LoggingHandler: logger.Handler(),
		}
		if dialStrategy != nil {
			joinOptions.DialStrategy = dialStrategy()
		}
		return wampTransports.Join(ctx, routerURL, realm, &joinOptions)
	}
}

type realmDirectory struct {
	mutex sync.RWMutex
	urls  map[string]string
}

func (directory *realmDirectory) set(realm string, routerURL string) {
	directory.mutex.Lock()
	defer directory.mutex.Unlock()
	directory.urls[realm] = routerURL
}

func (directory *realmDirectory) resolve(realm string) (string, bool) {
	directory.mutex.RLock()
	defer directory.mutex.RUnlock()
	routerURL, found := directory.urls[realm]
	return routerURL, found && len(routerURL) > 0
}

type Engine struct {
	sink          *wampLogSink.Sink
	registry      *Registry
	scheduler     *Scheduler
	subscriptions *SubscriptionManager
	dispatcher    *Dispatcher[Notification]
	directory     *realmDirectory
	metrics       *Metrics
	viewersMutex  sync.Mutex
	viewers       []Viewer
	observer      *wampShared.Observer[Removal]
	closeOnce     sync.Once
	leaveGrace    time.Duration
	logger        *slog.Logger
}

// New creates the log document and the background machinery.
// Nothing reaches the log or the viewers until Run or Drain is called.
func New(options *Options) (*Engine, error) {
	if options == nil {
		options = new(Options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if len(options.LogDir) == 0 {
		options.LogDir = wampConfig.DEFAULT_LOG_DIR
	}
	if options.Serializer == nil {
		options.Serializer = wampSerializers.DefaultSerializer
	}
	if options.JoinTimeout <= 0 {
		options.JoinTimeout = DEFAULT_JOIN_TIMEOUT
	}
	if options.LeaveGrace <= 0 {
		options.LeaveGrace = DEFAULT_LEAVE_GRACE
	}
	if options.Connector == nil {
		options.Connector = TransportConnector(options.Serializer, options.DialStrategy, options.Logger)
	}

	engine := Engine{
		dispatcher: NewDispatcher[Notification](),
		directory:  &realmDirectory{urls: make(map[string]string)},
		metrics:    newMetrics(),
		leaveGrace: options.LeaveGrace,
		logger:     options.Logger.With("name", "Engine"),
	}

	engine.sink = wampLogSink.New(&wampLogSink.Options{
		Logger: options.Logger,
		OnFailure: func(error) {
			engine.metrics.countError(KindSinkIO)
		},
	})
	_, e := engine.sink.Initialize(options.LogDir)
	if e != nil {
		return nil, newError(KindSinkIO, "", "", e)
	}

	engine.registry = NewRegistry(&RegistryOptions{
		Connector:   options.Connector,
		JoinTimeout: options.JoinTimeout,
		LeaveGrace:  options.LeaveGrace,
		Logger:      options.Logger,
		Sessions:    engine.metrics.sessions,
	})
	engine.scheduler = NewScheduler(&SchedulerOptions{
		Registry:   engine.registry,
		Resolve:    engine.directory.resolve,
		OnDispatch: engine.onDispatch,
		Pending:    engine.metrics.pending,
		Logger:     options.Logger,
	})
	engine.subscriptions = NewSubscriptionManager(&SubscriptionManagerOptions{
		Registry: engine.registry,
		Post:     engine.post,
		Received: func(realm string) {
			engine.metrics.received.WithLabelValues(realm).Inc()
		},
		Failed: engine.metrics.countError,
		Logger: options.Logger,
	})
	engine.observer = engine.registry.Removed.Observe(engine.onRemoval, nil)
	return &engine, nil
}

func (engine *Engine) LogPath() string {
	return engine.sink.Path()
}

func (engine *Engine) Sink() *wampLogSink.Sink {
	return engine.sink
}

func (engine *Engine) Metrics() *Metrics {
	return engine.metrics
}

func (engine *Engine) Registry() *Registry {
	return engine.registry
}

// Run is the foreground loop: it appends to the log, then informs viewers and callbacks.
// It returns when ctx is done or the engine is closed.
func (engine *Engine) Run(ctx context.Context) error {
	e := engine.dispatcher.Run(ctx, engine.deliver)
	if errors.Is(e, context.Canceled) {
		return nil
	}
	return e
}

// Drain delivers what is queued without blocking, for callers owning their own loop
func (engine *Engine) Drain() int {
	return engine.dispatcher.Drain(engine.deliver)
}

func (engine *Engine) post(notification Notification) {
	e := engine.dispatcher.Post(notification)
	if e != nil {
		engine.logger.Debug("notification after close", "realm", notification.Realm, "topic", notification.Topic)
	}
}

func (engine *Engine) deliver(notification Notification) {
	if notification.Direction != DirectionStatus {
		engine.sink.Append(
			wampLogSink.FormatTimestamp(notification.Timestamp),
			notification.Realm,
			notification.Topic,
			"",
			"",
			notification.Payload,
		)

		engine.viewersMutex.Lock()
		viewers := append([]Viewer(nil), engine.viewers...)
		engine.viewersMutex.Unlock()
		for _, viewer := range viewers {
			if notification.Direction == DirectionSent {
				viewer.OnSent(notification.Realm, notification.Topic, notification.Timestamp, notification.Payload)
			} else {
				viewer.OnReceived(
					notification.Realm, notification.Topic, notification.Timestamp,
					notification.Payload, notification.Failed,
				)
			}
		}
	}
	if notification.callback != nil {
		notification.callback(notification.Realm, notification.Topic, notification.callbackPayload)
	}
}

func errorPayload(e error, payload any) map[string]any {
	return map[string]any{"error": e.Error(), "payload": payload}
}

func (engine *Engine) onDispatch(dispatch Dispatch) {
	request := dispatch.Request
	if dispatch.Err != nil {
		kind, _ := KindOf(dispatch.Err)
		engine.metrics.countError(kind)
		engine.post(Notification{
			Direction: DirectionReceived,
			Realm:     request.Realm,
			Topic:     request.Topic,
			Timestamp: dispatch.Timestamp,
			Payload:   errorPayload(dispatch.Err, dispatch.Payload),
			Failed:    true,
		})
		return
	}
	engine.metrics.published.WithLabelValues(request.Realm).Inc()
	engine.post(Notification{
		Direction: DirectionSent,
		Realm:     request.Realm,
		Topic:     request.Topic,
		Timestamp: dispatch.Timestamp,
		Payload:   dispatch.Payload,
	})
}

// onRemoval reports publisher sessions that ended without a Stop
func (engine *Engine) onRemoval(removal Removal) {
	if removal.Explicit || removal.Handle.Role != RolePublisher {
		return
	}
	cause := removal.Err
	if cause == nil {
		cause = wamp.ErrorConnectionClosed
	}
	engine.metrics.countError(KindConnection)
	engine.post(Notification{
		Direction: DirectionReceived,
		Realm:     removal.Handle.Realm,
		Topic:     TOPIC_CONNECTION,
		Timestamp: time.Now(),
		Payload:   map[string]any{"error": cause.Error()},
		Failed:    true,
	})
}

func (engine *Engine) AddViewer(viewer Viewer) {
	engine.viewersMutex.Lock()
	defer engine.viewersMutex.Unlock()
	engine.viewers = append(engine.viewers, viewer)
}

// LoadRealms makes the router URLs of realms known to publish requests
func (engine *Engine) LoadRealms(realms *wampConfig.RealmsFile) {
	for name, realm := range realms.Realms {
		if len(realm.RouterURL) > 0 {
			engine.directory.set(name, realm.RouterURL)
		}
	}
}

// StartPublisherSession records the router of realm and joins it ahead of the first publish.
// A live session on another router is left first, its waiting requests become NoSession.
func (engine *Engine) StartPublisherSession(realm string, routerURL string) (*Handle, error) {
	if len(realm) == 0 {
		return nil, newError(KindConfiguration, "", "", errors.New("realm is required"))
	}
	e := wampConfig.ValidateRouterURL(routerURL)
	if e != nil {
		return nil, newError(KindConfiguration, realm, "", e)
	}
	engine.directory.set(realm, routerURL)
	current, found := engine.registry.Lookup(realm, RolePublisher)
	if found && current.RouterURL != routerURL && !current.State().Terminal() {
		engine.logger.Info(
			"router changed, replacing publisher session",
			"realm", realm, "from", current.RouterURL, "to", routerURL,
		)
		engine.registry.Replace(context.Background(), realm, RolePublisher)
	}
	return engine.registry.GetOrCreate(realm, routerURL, RolePublisher, nil, nil), nil
}

// StopAllPublishers leaves every publisher session, waiting requests become NoSession
func (engine *Engine) StopAllPublishers(ctx context.Context) {
	engine.registry.StopAll(ctx, RolePublisher)
}

func (engine *Engine) SubmitPublish(request *PublishRequest) error {
	e := engine.scheduler.Submit(request)
	if e != nil {
		kind, _ := KindOf(e)
		engine.metrics.countError(kind)
	}
	return e
}

func (engine *Engine) SubmitScenario(requests []*PublishRequest) error {
	var result []error
	for _, request := range requests {
		e := engine.SubmitPublish(request)
		if e != nil {
			result = append(result, e)
		}
	}
	return errors.Join(result...)
}

func (engine *Engine) StartSubscription(
	ctx context.Context,
	realm string,
	routerURL string,
	topics []string,
	callback SubscriptionCallback,
) error {
	e := engine.subscriptions.Start(ctx, realm, routerURL, topics, callback)
	if e != nil {
		engine.metrics.countError(KindConfiguration)
	}
	return e
}

func (engine *Engine) StopAllSubscriptions(ctx context.Context) {
	engine.subscriptions.StopAll(ctx)
}

// Subscriptions lists realms with a subscription and their topics
func (engine *Engine) Subscriptions() map[string][]string {
	result := make(map[string][]string)
	for _, realm := range engine.subscriptions.Realms() {
		topics, found := engine.subscriptions.Topics(realm)
		if found {
			result[realm] = topics
		}
	}
	return result
}

// PendingPublishes counts requests waiting for their fire time
func (engine *Engine) PendingPublishes() int {
	return engine.scheduler.Pending()
}

// ResetViewer clears every viewer that supports it, the log file is kept
func (engine *Engine) ResetViewer() {
	engine.viewersMutex.Lock()
	viewers := append([]Viewer(nil), engine.viewers...)
	engine.viewersMutex.Unlock()
	for _, viewer := range viewers {
		resettable, ok := viewer.(Resettable)
		if ok {
			resettable.Reset()
		}
	}
}

// Close leaves every session and stops the foreground loop after the last notification
func (engine *Engine) Close() error {
	engine.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*engine.leaveGrace)
		defer cancel()
		engine.subscriptions.StopAll(ctx)
		engine.registry.StopAll(ctx, RolePublisher)
		engine.scheduler.Close()
		engine.registry.Removed.Unobserve(engine.observer)
		engine.registry.Close(ctx)
		engine.dispatcher.Close()
		engine.logger.Info("engine closed", "log", engine.sink.Path())
	})
	return nil
}

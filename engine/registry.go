package wampEngine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	wamp "github.com/wamp3hub/wampytester"
	wampShared "github.com/wamp3hub/wampytester/shared"
)

var ErrorHandleStopped = errors.New("HandleStopped")

type Role int

const (
	RolePublisher Role = iota
	RoleSubscriber
)

func (role Role) String() string {
	if role == RoleSubscriber {
		return "subscriber"
	}
	return "publisher"
}

// Connector dials routerURL and joins realm
type Connector func(ctx context.Context, realm string, routerURL string) (*wamp.Session, error)

type handleKey struct {
	realm string
	role  Role
}

// Handle tracks one protocol session of a (realm, role) pair
type Handle struct {
	ID        string
	Realm     string
	Role      Role
	RouterURL string

	mutex      sync.Mutex
	state      wamp.SessionState
	joinedAt   time.Time
	lastError  error
	session    *wamp.Session
	explicit   bool
	onReady    []func(*Handle)
	onFailure  []func(*Handle, error)
	cancel     context.CancelFunc
	ready      chan struct{}
	readyOnce  sync.Once
	done       chan struct{}
	finishOnce sync.Once
	registry   *Registry
}

func (handle *Handle) State() wamp.SessionState {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.state
}

func (handle *Handle) JoinedAt() time.Time {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.joinedAt
}

func (handle *Handle) LastError() error {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.lastError
}

// Session is nil until the handle is Joined
func (handle *Handle) Session() *wamp.Session {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.session
}

// Done is closed once the handle left the registry
func (handle *Handle) Done() <-chan struct{} {
	return handle.done
}

// Wait blocks until the handle is Joined and returns its session
func (handle *Handle) Wait(ctx context.Context) (*wamp.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-handle.ready:
	}
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	if handle.state == wamp.StateJoined && handle.session != nil {
		return handle.session, nil
	}
	if handle.lastError != nil {
		return nil, handle.lastError
	}
	return nil, ErrorHandleStopped
}

func (handle *Handle) markReady() {
	handle.readyOnce.Do(func() { close(handle.ready) })
}

// Removal is emitted once for every handle leaving the registry
type Removal struct {
	Handle *Handle
	Err    error
	// requested through Replace or StopAll
	Explicit bool
}

type RegistryOptions struct {
	Connector   Connector
	JoinTimeout time.Duration
	LeaveGrace  time.Duration
	Logger      *slog.Logger
	Sessions    *prometheus.GaugeVec
}

// Registry owns at most one session handle per (realm, role)
type Registry struct {
	mutex       sync.Mutex
	handles     map[handleKey]*Handle
	connector   Connector
	joinTimeout time.Duration
	leaveGrace  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	sessions    *prometheus.GaugeVec
	Removed     *wampShared.Observable[Removal]
	logger      *slog.Logger
}

func NewRegistry(options *RegistryOptions) *Registry {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		handles:     make(map[handleKey]*Handle),
		connector:   options.Connector,
		joinTimeout: options.JoinTimeout,
		leaveGrace:  options.LeaveGrace,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    options.Sessions,
		Removed:     wampShared.NewObservable[Removal](),
		logger:      options.Logger.With("name", "SessionRegistry"),
	}
}

func (registry *Registry) Lookup(realm string, role Role) (*Handle, bool) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	handle, found := registry.handles[handleKey{realm, role}]
	return handle, found
}

func (registry *Registry) Handles(role Role) []*Handle {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	var result []*Handle
	for key, handle := range registry.handles {
		if key.role == role {
			result = append(result, handle)
		}
	}
	return result
}

// GetOrCreate returns the handle of (realm, role), starting a session when there is none.
// onReady runs once the handle is Joined, right away when it already is.
// onFailure runs when the handle ends before joining.
// Racing callers share the single Connecting handle.
func (registry *Registry) GetOrCreate(
	realm string,
	routerURL string,
	role Role,
	onReady func(*Handle),
	onFailure func(*Handle, error),
) *Handle {
	key := handleKey{realm, role}
	registry.mutex.Lock()
	handle, found := registry.handles[key]
	if found {
		handle.mutex.Lock()
		state := handle.state
		if state == wamp.StateConnecting {
			if onReady != nil {
				handle.onReady = append(handle.onReady, onReady)
			}
			if onFailure != nil {
				handle.onFailure = append(handle.onFailure, onFailure)
			}
		}
		handle.mutex.Unlock()

		if !state.Terminal() {
			registry.mutex.Unlock()
			if state == wamp.StateJoined && onReady != nil {
				onReady(handle)
			}
			return handle
		}
	}

	ctx, cancel := context.WithCancel(registry.ctx)
	handle = &Handle{
		ID:        wampShared.NewID(),
		Realm:     realm,
		Role:      role,
		RouterURL: routerURL,
		state:     wamp.StateConnecting,
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		registry:  registry,
	}
	if onReady != nil {
		handle.onReady = append(handle.onReady, onReady)
	}
	if onFailure != nil {
		handle.onFailure = append(handle.onFailure, onFailure)
	}
	registry.handles[key] = handle
	registry.mutex.Unlock()

	if registry.sessions != nil {
		registry.sessions.WithLabelValues(role.String()).Inc()
	}
	registry.logger.Debug(
		"session handle created",
		slog.Group("handle", "ID", handle.ID, "realm", realm, "role", role, "routerURL", routerURL),
	)
	go handle.connect(ctx)
	return handle
}

func (handle *Handle) connect(ctx context.Context) {
	registry := handle.registry
	logger := registry.logger.With(slog.Group("handle", "ID", handle.ID, "realm", handle.Realm, "role", handle.Role))

	joinCtx := ctx
	if registry.joinTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, registry.joinTimeout)
		defer cancel()
	}
	session, e := registry.connector(joinCtx, handle.Realm, handle.RouterURL)
	if e != nil {
		handle.mutex.Lock()
		explicit := handle.explicit
		handle.mutex.Unlock()
		if explicit {
			handle.finish(wamp.StateClosed, nil)
			return
		}
		logger.Warn("during join", "error", e)
		handle.finish(wamp.StateFailed, e)
		return
	}

	handle.mutex.Lock()
	if handle.explicit {
		handle.mutex.Unlock()
		leaveCtx, cancel := context.WithTimeout(context.Background(), registry.leaveGrace)
		session.Leave(leaveCtx, wamp.CloseRealm)
		cancel()
		handle.finish(wamp.StateClosed, nil)
		return
	}
	handle.state = wamp.StateJoined
	handle.session = session
	handle.joinedAt = time.Now()
	callbacks := handle.onReady
	handle.onReady = nil
	handle.onFailure = nil
	handle.mutex.Unlock()

	handle.markReady()
	logger.Info("session joined", "sessionID", session.ID)
	for _, callback := range callbacks {
		callback(handle)
	}

	<-session.Done()
	handle.mutex.Lock()
	explicit := handle.explicit
	handle.mutex.Unlock()
	if explicit {
		return
	}
	e = session.Err()
	if e == nil {
		e = wamp.ErrorConnectionClosed
	}
	logger.Warn("session ended", "state", session.State(), "error", e)
	handle.finish(session.State(), e)
}

// finish moves the handle to its terminal state, exactly once
func (handle *Handle) finish(state wamp.SessionState, e error) {
	handle.finishOnce.Do(func() {
		handle.mutex.Lock()
		handle.state = state
		if e != nil {
			handle.lastError = e
		}
		failures := handle.onFailure
		handle.onReady = nil
		handle.onFailure = nil
		explicit := handle.explicit
		handle.mutex.Unlock()

		registry := handle.registry
		registry.mutex.Lock()
		key := handleKey{handle.Realm, handle.Role}
		if registry.handles[key] == handle {
			delete(registry.handles, key)
		}
		registry.mutex.Unlock()
		if registry.sessions != nil {
			registry.sessions.WithLabelValues(handle.Role.String()).Dec()
		}

		handle.cancel()
		handle.markReady()
		close(handle.done)

		reason := e
		if reason == nil {
			reason = ErrorHandleStopped
		}
		for _, callback := range failures {
			callback(handle, reason)
		}
		registry.Removed.Next(Removal{handle, e, explicit})
	})
}

// stop leaves the session within the grace period, forcing the close on timeout
func (handle *Handle) stop(ctx context.Context) {
	registry := handle.registry
	handle.mutex.Lock()
	handle.explicit = true
	session := handle.session
	state := handle.state
	if state == wamp.StateJoined {
		handle.state = wamp.StateLeaving
	}
	handle.mutex.Unlock()

	graceCtx, cancel := context.WithTimeout(ctx, registry.leaveGrace)
	defer cancel()

	if session != nil {
		e := session.Leave(graceCtx, wamp.CloseRealm)
		if e != nil {
			registry.logger.Warn(
				"leave not acknowledged, connection closed",
				"error", e,
				slog.Group("handle", "ID", handle.ID, "realm", handle.Realm, "role", handle.Role),
			)
		}
		handle.finish(wamp.StateClosed, nil)
		return
	}

	// still connecting, the join is abandoned
	handle.cancel()
	select {
	case <-handle.done:
	case <-graceCtx.Done():
	}
	handle.finish(wamp.StateClosed, nil)
}

func (registry *Registry) detach(key handleKey) *Handle {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	handle, found := registry.handles[key]
	if !found {
		return nil
	}
	delete(registry.handles, key)
	return handle
}

// Replace removes the handle of (realm, role) after it left or the grace period ran out.
// The caller may create a fresh handle as soon as Replace returns.
func (registry *Registry) Replace(ctx context.Context, realm string, role Role) {
	handle := registry.detach(handleKey{realm, role})
	if handle == nil {
		return
	}
	registry.logger.Debug(
		"replacing session",
		slog.Group("handle", "ID", handle.ID, "realm", realm, "role", role),
	)
	handle.stop(ctx)
}

// StopAll leaves every handle of role concurrently
func (registry *Registry) StopAll(ctx context.Context, role Role) {
	registry.mutex.Lock()
	var handles []*Handle
	for key, handle := range registry.handles {
		if key.role == role {
			handles = append(handles, handle)
			delete(registry.handles, key)
		}
	}
	registry.mutex.Unlock()

	wg := new(sync.WaitGroup)
	for _, handle := range handles {
		wg.Add(1)
		go func(handle *Handle) {
			defer wg.Done()
			handle.stop(ctx)
		}(handle)
	}
	wg.Wait()
	registry.logger.Debug("stopped all sessions", "role", role, "count", len(handles))
}

func (registry *Registry) Close(ctx context.Context) {
	registry.StopAll(ctx, RolePublisher)
	registry.StopAll(ctx, RoleSubscriber)
	registry.cancel()
	registry.Removed.Complete()
}

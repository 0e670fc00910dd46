package wampEngine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	wamp "github.com/wamp3hub/wampytester"
	wampShared "github.com/wamp3hub/wampytester/shared"
)

// Dispatch is the outcome of one publish request
type Dispatch struct {
	Request *PublishRequest
	// decoded request payload
	Payload any
	// actual dispatch time, or the moment the request was dropped
	Timestamp time.Time
	Err       error
}

// RealmResolver maps a realm onto its router URL
type RealmResolver func(realm string) (string, bool)

type scheduledPublish struct {
	request *PublishRequest
	payload any
	fireAt  time.Time
	seq     uint64
	handle  *Handle
}

// timerQueue orders by fire time, submission order breaks ties
type timerQueue []*scheduledPublish

func (queue timerQueue) Len() int {
	return len(queue)
}

func (queue timerQueue) Less(i, j int) bool {
	if queue[i].fireAt.Equal(queue[j].fireAt) {
		return queue[i].seq < queue[j].seq
	}
	return queue[i].fireAt.Before(queue[j].fireAt)
}

func (queue timerQueue) Swap(i, j int) {
	queue[i], queue[j] = queue[j], queue[i]
}

func (queue *timerQueue) Push(v any) {
	*queue = append(*queue, v.(*scheduledPublish))
}

func (queue *timerQueue) Pop() any {
	old := *queue
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*queue = old[:n-1]
	return item
}

type SchedulerOptions struct {
	Registry   *Registry
	Resolve    RealmResolver
	OnDispatch func(Dispatch)
	Pending    prometheus.Gauge
	Logger     *slog.Logger
}

// Scheduler fires publish requests at their time through the publisher session of their realm.
// A timer heap releases due requests into one FIFO lane per realm,
// so requests of a realm leave in fire time order, then submission order.
type Scheduler struct {
	mutex      sync.Mutex
	queue      timerQueue
	seq        uint64
	closed     bool
	wake       chan struct{}
	lanes      map[string]*Dispatcher[*scheduledPublish]
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	registry   *Registry
	resolve    RealmResolver
	onDispatch func(Dispatch)
	pending    prometheus.Gauge
	observer   *wampShared.Observer[Removal]
	logger     *slog.Logger
}

func NewScheduler(options *SchedulerOptions) *Scheduler {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := Scheduler{
		wake:       make(chan struct{}, 1),
		lanes:      make(map[string]*Dispatcher[*scheduledPublish]),
		ctx:        ctx,
		cancel:     cancel,
		registry:   options.Registry,
		resolve:    options.Resolve,
		onDispatch: options.OnDispatch,
		pending:    options.Pending,
		logger:     options.Logger.With("name", "PublishScheduler"),
	}
	scheduler.observer = options.Registry.Removed.Observe(scheduler.onRemoval, nil)
	scheduler.wg.Add(1)
	go scheduler.loop()
	return &scheduler
}

// Submit validates request and schedules it.
// The publisher session is bound now, so a request outlives neither a Stop nor a disconnect.
func (scheduler *Scheduler) Submit(request *PublishRequest) error {
	e := request.Validate()
	if e != nil {
		return e
	}
	fireAt, e := request.FireAt(time.Now())
	if e != nil {
		return e
	}
	routerURL, found := scheduler.resolve(request.Realm)
	if !found {
		return newError(KindConfiguration, request.Realm, request.Topic, fmt.Errorf("unknown realm, no router URL"))
	}
	payload, e := wamp.DecodeJSON(request.Payload)
	if e != nil {
		return newError(KindConfiguration, request.Realm, request.Topic, e)
	}

	scheduler.mutex.Lock()
	if scheduler.closed {
		scheduler.mutex.Unlock()
		return newError(KindNoSession, request.Realm, request.Topic, ErrorHandleStopped)
	}
	scheduler.mutex.Unlock()

	handle := scheduler.registry.GetOrCreate(request.Realm, routerURL, RolePublisher, nil, nil)

	scheduler.mutex.Lock()
	scheduler.seq++
	item := scheduledPublish{
		request: request,
		payload: payload,
		fireAt:  fireAt,
		seq:     scheduler.seq,
		handle:  handle,
	}
	heap.Push(&scheduler.queue, &item)
	scheduler.mutex.Unlock()

	if scheduler.pending != nil {
		scheduler.pending.Inc()
	}
	scheduler.logger.Debug(
		"publish scheduled",
		slog.Group("request", "ID", request.ID, "realm", request.Realm, "topic", request.Topic, "mode", request.Mode),
		"fireAt", fireAt,
	)
	scheduler.notify()
	return nil
}

// Pending counts requests waiting for their fire time
func (scheduler *Scheduler) Pending() int {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return len(scheduler.queue)
}

func (scheduler *Scheduler) notify() {
	select {
	case scheduler.wake <- struct{}{}:
	default:
	}
}

func (scheduler *Scheduler) loop() {
	defer scheduler.wg.Done()
	for {
		now := time.Now()
		var due []*scheduledPublish
		wait := time.Duration(-1)

		scheduler.mutex.Lock()
		for len(scheduler.queue) > 0 && !scheduler.queue[0].fireAt.After(now) {
			due = append(due, heap.Pop(&scheduler.queue).(*scheduledPublish))
		}
		if len(scheduler.queue) > 0 {
			wait = scheduler.queue[0].fireAt.Sub(now)
		}
		scheduler.mutex.Unlock()

		for _, item := range due {
			lane := scheduler.lane(item.request.Realm)
			if lane == nil || lane.Post(item) != nil {
				scheduler.report(item, newError(KindNoSession, item.request.Realm, item.request.Topic, ErrorHandleStopped))
			}
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		select {
		case <-scheduler.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-scheduler.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (scheduler *Scheduler) lane(realm string) *Dispatcher[*scheduledPublish] {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	if scheduler.closed {
		return nil
	}
	lane, found := scheduler.lanes[realm]
	if !found {
		lane = NewDispatcher[*scheduledPublish]()
		scheduler.lanes[realm] = lane
		scheduler.wg.Add(1)
		go func() {
			defer scheduler.wg.Done()
			lane.Run(scheduler.ctx, scheduler.fire)
		}()
	}
	return lane
}

// fire waits for the bound session to join, then enqueues the PUBLISH
func (scheduler *Scheduler) fire(item *scheduledPublish) {
	request := item.request
	session, e := item.handle.Wait(scheduler.ctx)
	if e != nil {
		scheduler.report(item, newError(KindNoSession, request.Realm, request.Topic, e))
		return
	}
	e = session.Publish(request.Topic, item.payload)
	if errors.Is(e, wamp.ErrorNotReady) {
		scheduler.report(item, newError(KindNotReady, request.Realm, request.Topic, e))
		return
	}
	if e != nil {
		scheduler.report(item, newError(KindNoSession, request.Realm, request.Topic, e))
		return
	}
	scheduler.report(item, nil)
}

func (scheduler *Scheduler) report(item *scheduledPublish, e error) {
	if scheduler.pending != nil {
		scheduler.pending.Dec()
	}
	request := item.request
	logData := slog.Group("request", "ID", request.ID, "realm", request.Realm, "topic", request.Topic)
	if e != nil {
		scheduler.logger.Warn("publish dropped", "error", e, logData)
	} else {
		scheduler.logger.Debug("publish dispatched", logData)
	}
	if scheduler.onDispatch != nil {
		scheduler.onDispatch(Dispatch{request, item.payload, time.Now(), e})
	}
}

// onRemoval abandons every waiting request bound to the removed handle
func (scheduler *Scheduler) onRemoval(removal Removal) {
	if removal.Handle.Role != RolePublisher {
		return
	}
	scheduler.mutex.Lock()
	var abandoned []*scheduledPublish
	remaining := scheduler.queue[:0]
	for _, item := range scheduler.queue {
		if item.handle == removal.Handle {
			abandoned = append(abandoned, item)
		} else {
			remaining = append(remaining, item)
		}
	}
	scheduler.queue = remaining
	heap.Init(&scheduler.queue)
	scheduler.mutex.Unlock()

	cause := removal.Err
	if cause == nil {
		cause = ErrorHandleStopped
	}
	for _, item := range abandoned {
		scheduler.report(item, newError(KindNoSession, item.request.Realm, item.request.Topic, cause))
	}
}

// Close stops the timers, requests still waiting are reported as NoSession
func (scheduler *Scheduler) Close() {
	scheduler.registry.Removed.Unobserve(scheduler.observer)

	scheduler.mutex.Lock()
	if scheduler.closed {
		scheduler.mutex.Unlock()
		return
	}
	scheduler.closed = true
	abandoned := append([]*scheduledPublish(nil), scheduler.queue...)
	scheduler.queue = nil
	lanes := scheduler.lanes
	scheduler.mutex.Unlock()

	scheduler.cancel()
	scheduler.wg.Wait()

	drop := func(item *scheduledPublish) {
		scheduler.report(item, newError(KindNoSession, item.request.Realm, item.request.Topic, ErrorHandleStopped))
	}
	for _, item := range abandoned {
		drop(item)
	}
	for _, lane := range lanes {
		lane.Close()
		lane.Drain(drop)
	}
}

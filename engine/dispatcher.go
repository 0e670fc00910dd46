package wampEngine

import (
	"context"
	"errors"
	"sync"
)

var ErrorDispatcherClosed = errors.New("DispatcherClosed")

// Dispatcher hands items from any goroutine to a single consumer in submission order.
// The queue is unbounded, Post never blocks and never drops.
type Dispatcher[T any] struct {
	mutex  sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
	done   chan struct{}
}

func NewDispatcher[T any]() *Dispatcher[T] {
	return &Dispatcher[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (dispatcher *Dispatcher[T]) Post(item T) error {
	dispatcher.mutex.Lock()
	if dispatcher.closed {
		dispatcher.mutex.Unlock()
		return ErrorDispatcherClosed
	}
	dispatcher.items = append(dispatcher.items, item)
	dispatcher.mutex.Unlock()

	select {
	case dispatcher.signal <- struct{}{}:
	default:
	}
	return nil
}

func (dispatcher *Dispatcher[T]) take() []T {
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	items := dispatcher.items
	dispatcher.items = nil
	return items
}

// Drain runs handler on every queued item and returns how many ran
func (dispatcher *Dispatcher[T]) Drain(handler func(T)) int {
	items := dispatcher.take()
	for _, item := range items {
		handler(item)
	}
	return len(items)
}

// Run consumes items until ctx is done or the dispatcher is closed.
// Items posted before Close are still handled.
func (dispatcher *Dispatcher[T]) Run(ctx context.Context, handler func(T)) error {
	for {
		dispatcher.Drain(handler)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dispatcher.done:
			dispatcher.Drain(handler)
			return nil
		case <-dispatcher.signal:
		}
	}
}

func (dispatcher *Dispatcher[T]) Len() int {
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	return len(dispatcher.items)
}

func (dispatcher *Dispatcher[T]) Close() {
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	if !dispatcher.closed {
		dispatcher.closed = true
		close(dispatcher.done)
	}
}

package wampShared

import (
	"errors"
	"sync"
	"time"
)

var ErrorPendingNotFound = errors.New("PendingNotFound")

// PendingMap correlates outgoing requests with their replies
type PendingMap[K comparable, T any] struct {
	mutex     sync.Mutex
	completes map[K]Completable[T]
	cancels   map[K]Cancellable
}

func NewPendingMap[K comparable, T any]() *PendingMap[K, T] {
	return &PendingMap[K, T]{
		completes: make(map[K]Completable[T]),
		cancels:   make(map[K]Cancellable),
	}
}

func (pendingMap *PendingMap[K, T]) New(
	key K,
	timeout time.Duration,
) (Promise[T], Cancellable) {
	promise, complete, cancelPromise := NewPromise[T](timeout)

	pendingMap.mutex.Lock()
	pendingMap.completes[key] = complete
	pendingMap.cancels[key] = cancelPromise
	pendingMap.mutex.Unlock()

	cancel := func() {
		pendingMap.forget(key)
		cancelPromise()
	}
	return promise, cancel
}

func (pendingMap *PendingMap[K, T]) forget(key K) {
	pendingMap.mutex.Lock()
	delete(pendingMap.completes, key)
	delete(pendingMap.cancels, key)
	pendingMap.mutex.Unlock()
}

func (pendingMap *PendingMap[K, T]) Complete(key K, value T) error {
	pendingMap.mutex.Lock()
	complete, found := pendingMap.completes[key]
	delete(pendingMap.completes, key)
	delete(pendingMap.cancels, key)
	pendingMap.mutex.Unlock()

	if found {
		complete(value)
		return nil
	}
	return ErrorPendingNotFound
}

// CancelAll closes every pending promise without a value
func (pendingMap *PendingMap[K, T]) CancelAll() {
	pendingMap.mutex.Lock()
	cancels := pendingMap.cancels
	pendingMap.completes = make(map[K]Completable[T])
	pendingMap.cancels = make(map[K]Cancellable)
	pendingMap.mutex.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (pendingMap *PendingMap[K, T]) Size() int {
	pendingMap.mutex.Lock()
	defer pendingMap.mutex.Unlock()
	return len(pendingMap.completes)
}

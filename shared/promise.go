package wampShared

import (
	"sync"
	"time"
)

type Promise[T any] <-chan T

type Completable[T any] func(T)

type Cancellable func()

// NewPromise returns a single-value promise.
// The channel is closed without a value when cancelled or when timeout expires.
// A zero timeout means the promise never expires on its own.
func NewPromise[T any](timeout time.Duration) (Promise[T], Completable[T], Cancellable) {
	instance := make(chan T, 1)

	once := new(sync.Once)
	var timer *time.Timer

	settle := func(value *T) {
		once.Do(func() {
			if timer != nil {
				timer.Stop()
			}
			if value != nil {
				instance <- *value
			}
			close(instance)
		})
	}

	complete := func(value T) {
		settle(&value)
	}

	cancel := func() {
		settle(nil)
	}

	if timeout > 0 {
		timer = time.AfterFunc(timeout, cancel)
	}

	return instance, complete, cancel
}

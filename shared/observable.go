package wampShared

import "sync"

type nextFunction[T any] func(T)

type completeFunction func()

type Observer[T any] struct {
	next     nextFunction[T]
	complete completeFunction
}

type Observable[T any] struct {
	observers []*Observer[T]
	done      bool
	mutex     sync.Mutex
}

func NewObservable[T any]() *Observable[T] {
	return new(Observable[T])
}

func (object *Observable[T]) Observe(next nextFunction[T], complete completeFunction) *Observer[T] {
	observer := Observer[T]{next, complete}
	object.mutex.Lock()
	if object.done {
		object.mutex.Unlock()
		if complete != nil {
			complete()
		}
		return &observer
	}
	object.observers = append(object.observers, &observer)
	object.mutex.Unlock()
	return &observer
}

func (object *Observable[T]) Unobserve(observer *Observer[T]) {
	object.mutex.Lock()
	defer object.mutex.Unlock()
	for i, instance := range object.observers {
		if instance == observer {
			object.observers = append(object.observers[:i], object.observers[i+1:]...)
			return
		}
	}
}

func (object *Observable[T]) snapshot() []*Observer[T] {
	object.mutex.Lock()
	defer object.mutex.Unlock()
	return append([]*Observer[T](nil), object.observers...)
}

func (object *Observable[T]) Next(v T) {
	for _, instance := range object.snapshot() {
		if instance.next != nil {
			instance.next(v)
		}
	}
}

func (object *Observable[T]) Complete() {
	object.mutex.Lock()
	if object.done {
		object.mutex.Unlock()
		return
	}
	object.done = true
	observers := object.observers
	object.observers = nil
	object.mutex.Unlock()

	for _, instance := range observers {
		if instance.complete != nil {
			instance.complete()
		}
	}
}

func (object *Observable[T]) Iterator(buffer int) <-chan T {
	q := make(chan T, buffer)

	object.Observe(
		func(v T) {
			q <- v
		},
		func() {
			close(q)
		},
	)

	return q
}

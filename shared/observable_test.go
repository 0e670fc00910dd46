package wampShared_test

import (
	"sync"
	"testing"

	wampShared "github.com/wamp3hub/wampytester/shared"
)

func TestObservableHappyPath(t *testing.T) {
	wg := new(sync.WaitGroup)

	events := wampShared.NewObservable[string]()

	events.Observe(
		func(v string) {
			t.Logf("alpha: %s", v)
			wg.Done()
		},
		func() {
			t.Log("alpha: complete")
			wg.Done()
		},
	)

	events.Observe(
		func(v string) {
			t.Logf("beta: %s", v)
			wg.Done()
		},
		func() {
			t.Log("beta: complete")
			wg.Done()
		},
	)

	testData := []string{
		"Hi!",
		"How are you?",
		"Nice to meet you",
		"Test",
		"Goodbye",
	}

	wg.Add(len(testData) * 2)
	for _, v := range testData {
		events.Next(v)
	}
	wg.Wait()

	wg.Add(2)
	events.Complete()
	wg.Wait()
}

func TestObservableUnobserve(t *testing.T) {
	events := wampShared.NewObservable[int]()
	count := 0
	observer := events.Observe(func(int) { count++ }, nil)
	events.Next(1)
	events.Unobserve(observer)
	events.Next(2)
	if count != 1 {
		t.Errorf("expected 1 notification, got %d", count)
	}
}

func TestObservableIterator(t *testing.T) {
	events := wampShared.NewObservable[int]()
	q := events.Iterator(3)
	events.Next(1)
	events.Next(2)
	events.Complete()

	var received []int
	for v := range q {
		received = append(received, v)
	}
	if len(received) != 2 || received[0] != 1 || received[1] != 2 {
		t.Errorf("unexpected iterator output %v", received)
	}
}
